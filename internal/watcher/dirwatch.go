package watcher

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DirWatcher signals changes made to a directory by anyone, so archive
// lists can be refreshed and vanished documents pruned.
type DirWatcher struct {
	fsw     *fsnotify.Watcher
	dir     string
	log     zerolog.Logger
	changes chan struct{}
	stopCh  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// NewDirWatcher watches dir (not recursively).
func NewDirWatcher(dir string, log zerolog.Logger) (*DirWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return &DirWatcher{
		fsw:     fsw,
		dir:     dir,
		log:     log,
		changes: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}, nil
}

// Changes receives a value after one or more changes. Bursts coalesce into
// a single pending value.
func (d *DirWatcher) Changes() <-chan struct{} { return d.changes }

// Start begins delivering changes.
func (d *DirWatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

func (d *DirWatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case ev, ok := <-d.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) &&
				!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Write) {
				continue
			}
			d.log.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("save directory changed")
			select {
			case d.changes <- struct{}{}:
			default:
			}
		case err, ok := <-d.fsw.Errors:
			if !ok {
				return
			}
			d.log.Warn().Err(err).Str("dir", d.dir).Msg("directory watch error")
		case <-d.stopCh:
			return
		}
	}
}

// Stop ends the watch.
func (d *DirWatcher) Stop() error {
	var err error
	d.once.Do(func() {
		close(d.stopCh)
		err = d.fsw.Close()
		d.wg.Wait()
	})
	return err
}

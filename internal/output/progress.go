package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/apkextract/internal/progress"
)

// writerIsTTY reports whether w is a terminal. Writers without an Fd method,
// such as *bytes.Buffer, are never terminals.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

// ProgressBar displays a progress bar with percentage and description.
// Example: [=========>          ]  45% Saving apps: Maps
type ProgressBar struct {
	total       int
	current     int
	description string
	width       int
	mu          sync.Mutex
	writer      io.Writer
}

// NewProgress creates a new progress bar.
func NewProgress(total int, description string) *ProgressBar {
	return &ProgressBar{
		total:       total,
		description: description,
		width:       40,
		writer:      os.Stdout,
	}
}

// SetWidth sets the width of the bar in characters.
func (p *ProgressBar) SetWidth(width int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.width = width
}

// SetWriter sets the output writer.
func (p *ProgressBar) SetWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writer = w
}

// SetDescription replaces the text shown after the percentage. The bar is
// redrawn on the next update.
func (p *ProgressBar) SetDescription(description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.description = description
}

// Increment increments the progress by 1 and redraws the bar.
func (p *ProgressBar) Increment() {
	p.IncrementBy(1)
}

// IncrementBy increments the progress by n and redraws the bar.
func (p *ProgressBar) IncrementBy(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setLocked(p.current + n)
}

// SetCurrent sets the current progress value and redraws the bar.
func (p *ProgressBar) SetCurrent(current int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setLocked(current)
}

func (p *ProgressBar) setLocked(current int) {
	if current > p.total {
		current = p.total
	}
	if current < 0 {
		current = 0
	}
	p.current = current
	p.render()
}

// Finish completes the progress bar and moves to a new line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	wasDone := p.current == p.total
	p.current = p.total

	if writerIsTTY(p.writer) {
		p.render()
		fmt.Fprintln(p.writer)
		return
	}
	// Off a terminal render prints once at completion; the last update may
	// already have printed it.
	if !wasDone {
		p.render()
	}
}

// render draws the bar. Must be called with the lock held.
func (p *ProgressBar) render() {
	percentage, filled := 0, 0
	if p.total > 0 {
		percentage = (p.current * 100) / p.total
		filled = (p.current * p.width) / p.total
	}

	var bar strings.Builder
	bar.WriteByte('[')
	for i := 0; i < p.width; i++ {
		switch {
		case i < filled-1:
			bar.WriteByte('=')
		case i == filled-1:
			bar.WriteByte('>')
		default:
			bar.WriteByte(' ')
		}
	}
	bar.WriteByte(']')

	if writerIsTTY(p.writer) {
		fmt.Fprintf(p.writer, "\r%s %3d%% %s", bar.String(), percentage, p.description)
		return
	}
	if p.current == p.total {
		fmt.Fprintf(p.writer, "%s %3d%% %s\n", bar.String(), percentage, p.description)
	}
}

// describe formats a tracker state for a bar description.
func describe(s progress.State) string {
	if s.Process == "" {
		return s.Title
	}
	return s.Title + ": " + s.Process
}

// FollowTracker draws a bar for every task run on tracker until ctx is done
// or the returned stop function is called. A bar finishes when the tracker
// goes idle. stop may be called more than once.
func FollowTracker(ctx context.Context, tracker *progress.Tracker, w io.Writer) (stop func()) {
	ch, cancel := tracker.Subscribe()
	ctx, cancelCtx := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		var bar *ProgressBar
		finish := func() {
			if bar != nil {
				bar.Finish()
				bar = nil
			}
		}
		defer finish()

		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-ch:
				if !ok {
					return
				}
				if !s.Shown {
					finish()
					continue
				}
				if bar == nil || bar.total != s.Tasks {
					finish()
					bar = NewProgress(s.Tasks, describe(s))
					bar.SetWriter(w)
				}
				bar.SetDescription(describe(s))
				bar.SetCurrent(s.Progress)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancelCtx()
			cancel()
			<-done
		})
	}
}

// Spinner displays an animated spinner with a message.
// Example: |  Listing applications...
type Spinner struct {
	message    string
	running    bool
	chars      []string
	mu         sync.Mutex
	writer     io.Writer
	ticker     *time.Ticker
	done       chan struct{}
	timeout    time.Duration
	startTime  time.Time
	showTiming bool
}

// NewSpinner creates a spinner. Call WithTimeout before Start to show
// timing:
//
//	spinner := output.NewSpinner("Reading package list")
//	spinner.WithTimeout(30 * time.Second)
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		chars:   []string{"|", "/", "-", "\\"},
		writer:  os.Stdout,
		done:    make(chan struct{}),
	}
}

// WithTimeout makes the spinner show remaining time when timeout > 0 and
// elapsed time otherwise. It must be called before Start.
func (s *Spinner) WithTimeout(timeout time.Duration) *Spinner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = timeout
	s.showTiming = true
	return s
}

// SetWriter sets the output writer.
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
}

// Start begins the animation. Off a terminal the message is printed once
// and nothing animates.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.startTime = time.Now()

	if !writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "%s...\n", s.message)
		return
	}

	s.ticker = time.NewTicker(100 * time.Millisecond)
	go s.animate()
}

func (s *Spinner) animate() {
	idx := 0
	for {
		select {
		case <-s.ticker.C:
			s.mu.Lock()
			if !s.running {
				s.mu.Unlock()
				return
			}
			fmt.Fprintf(s.writer, "\r%s  %s", s.chars[idx], s.formatMessage())
			idx = (idx + 1) % len(s.chars)
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}

// formatMessage must be called with the lock held.
func (s *Spinner) formatMessage() string {
	if !s.showTiming {
		return s.message
	}

	elapsed := time.Since(s.startTime)
	if s.timeout > 0 {
		remaining := s.timeout - elapsed
		if remaining < 0 {
			remaining = 0
		}
		return fmt.Sprintf("%s (%ds remaining)", s.message, int(remaining.Seconds()))
	}
	return fmt.Sprintf("%s (%ds elapsed)", s.message, int(elapsed.Seconds()))
}

// Stop stops the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.done)

	if writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "\r%s\r", strings.Repeat(" ", len(s.message)+24))
	}
}

// UpdateMessage updates the message while the spinner runs.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// StopWithMessage stops the spinner and prints a final message.
func (s *Spinner) StopWithMessage(message string) {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.writer, message)
}

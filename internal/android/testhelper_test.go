package android

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// fakeRunner answers adb invocations from a table keyed by the joined
// argument list.
type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	fails   map[string]bool
	calls   []string
	fed     map[string][]byte
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs: make(map[string]string),
		fails:   make(map[string]bool),
		fed:     make(map[string][]byte),
	}
}

func (f *fakeRunner) on(cmd, output string) *fakeRunner {
	f.outputs[cmd] = output
	return f
}

func (f *fakeRunner) fail(cmd string) *fakeRunner {
	f.fails[cmd] = true
	return f
}

func (f *fakeRunner) record(args []string) (string, string, bool) {
	key := strings.Join(args, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	return key, f.outputs[key], f.fails[key]
}

func (f *fakeRunner) called(cmd string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == cmd {
			return true
		}
	}
	return false
}

func (f *fakeRunner) Output(ctx context.Context, args ...string) ([]byte, error) {
	key, out, failed := f.record(args)
	if failed {
		return []byte(out), fmt.Errorf("adb %s failed: exit status 1", key)
	}
	return []byte(out), nil
}

func (f *fakeRunner) Stream(ctx context.Context, args ...string) (io.ReadCloser, error) {
	key, out, failed := f.record(args)
	if failed {
		return nil, fmt.Errorf("adb %s failed", key)
	}
	return io.NopCloser(strings.NewReader(out)), nil
}

func (f *fakeRunner) Feed(ctx context.Context, r io.Reader, args ...string) ([]byte, error) {
	key, out, failed := f.record(args)
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.fed[key] = bytes.Clone(data)
	f.mu.Unlock()
	if failed {
		return []byte(out), fmt.Errorf("adb %s failed", key)
	}
	return []byte(out), nil
}

package output

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blackwell-systems/apkextract/internal/progress"
)

// syncBuffer is a bytes.Buffer safe for the spinner and tracker goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressBar_NonTTYPrintsOnCompletion(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(10, "Saving apps")
	p.SetWriter(buf)

	p.Increment()
	p.SetCurrent(5)
	if buf.Len() != 0 {
		t.Errorf("partial progress wrote %q to a non-terminal, want nothing", buf.String())
	}

	p.IncrementBy(5)
	out := buf.String()
	if !strings.Contains(out, "100%") || !strings.Contains(out, "Saving apps") {
		t.Errorf("completed bar = %q, want 100%% and description", out)
	}

	// Finish after completion must not print a second line.
	p.Finish()
	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Errorf("got %d lines after Finish(), want 1", n)
	}
}

func TestProgressBar_Render(t *testing.T) {
	tests := []struct {
		name           string
		current, total int
		want           string
	}{
		{"empty", 0, 0, "[          ]   0% x\n"},
		{"complete", 10, 10, "[=========>] 100% x\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			p := NewProgress(tt.total, "x")
			p.SetWriter(buf)
			p.SetWidth(10)
			p.current = tt.current
			p.render()
			if buf.String() != tt.want {
				t.Errorf("render() = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestProgressBar_Clamps(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(10, "Test")
	p.SetWriter(buf)

	p.IncrementBy(15)
	if p.current != 10 {
		t.Errorf("current = %d after overshoot, want 10", p.current)
	}
	p.SetCurrent(-3)
	if p.current != 0 {
		t.Errorf("current = %d after negative set, want 0", p.current)
	}
}

func TestProgressBar_FinishFromPartial(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(100, "Installing")
	p.SetWriter(buf)

	p.SetCurrent(75)
	p.Finish()

	out := buf.String()
	if !strings.Contains(out, "100%") {
		t.Errorf("Finish() = %q, want 100%%", out)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "Installing") {
		t.Errorf("Finish() = %q, want it to end with the description", out)
	}
}

func TestProgressBar_Concurrent(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(1000, "Concurrent")
	p.SetWriter(buf)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.Increment()
			}
		}()
	}
	wg.Wait()

	if p.current != 1000 {
		t.Errorf("current = %d after concurrent increments, want 1000", p.current)
	}
}

func TestFollowTracker(t *testing.T) {
	buf := &syncBuffer{}
	tr := progress.New()

	stop := FollowTracker(context.Background(), tr, buf)

	tr.Begin("Saving apps", 2)
	tr.SetProcess("Maps")
	tr.Advance()
	tr.SetProcess("Camera")
	tr.Advance()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(buf.String(), "100%") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	tr.Reset()
	stop()

	out := buf.String()
	if !strings.Contains(out, "100% Saving apps: Camera") {
		t.Errorf("output = %q, want a completed bar for the last item", out)
	}
	if n := strings.Count(out, "100%"); n != 1 {
		t.Errorf("got %d completion lines, want 1: %q", n, out)
	}
}

func TestDescribe(t *testing.T) {
	if got := describe(progress.State{Title: "Sharing apps"}); got != "Sharing apps" {
		t.Errorf("describe() = %q, want %q", got, "Sharing apps")
	}
	if got := describe(progress.State{Title: "Saving apps", Process: "Maps"}); got != "Saving apps: Maps" {
		t.Errorf("describe() = %q, want %q", got, "Saving apps: Maps")
	}
}

func TestSpinner_NonTTYPrintsOnce(t *testing.T) {
	buf := &syncBuffer{}
	s := NewSpinner("Reading package list")
	s.SetWriter(buf)

	s.Start()
	s.Start()
	time.Sleep(150 * time.Millisecond)
	s.StopWithMessage("Done")

	out := buf.String()
	if strings.Count(out, "Reading package list...") != 1 {
		t.Errorf("spinner output = %q, want the message exactly once", out)
	}
	if !strings.HasSuffix(out, "Done\n") {
		t.Errorf("spinner output = %q, want final message", out)
	}
}

func TestSpinner_MultipleStops(t *testing.T) {
	s := NewSpinner("Test")
	s.SetWriter(&syncBuffer{})
	s.Start()

	s.Stop()
	s.Stop()
	if s.running {
		t.Error("spinner still running after Stop()")
	}
}

func TestSpinner_FormatMessage(t *testing.T) {
	s := NewSpinner("Installing").WithTimeout(30 * time.Second)
	s.startTime = time.Now()
	if got := s.formatMessage(); !strings.Contains(got, "remaining") {
		t.Errorf("formatMessage() = %q, want remaining time", got)
	}

	s = NewSpinner("Listing").WithTimeout(0)
	s.startTime = time.Now().Add(-5 * time.Second)
	if got := s.formatMessage(); got != "Listing (5s elapsed)" {
		t.Errorf("formatMessage() = %q, want %q", got, "Listing (5s elapsed)")
	}
}

func BenchmarkProgressBar_Increment(b *testing.B) {
	p := NewProgress(b.N, "Benchmark")
	p.SetWriter(&bytes.Buffer{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Increment()
	}
}

func BenchmarkFormatRelativeTime(b *testing.B) {
	times := []time.Time{
		time.Now().Add(-30 * time.Second),
		time.Now().Add(-2 * time.Hour),
		time.Now().Add(-30 * 24 * time.Hour),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		formatRelativeTime(times[i%len(times)])
	}
}

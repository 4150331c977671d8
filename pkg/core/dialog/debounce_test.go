package dialog

import (
	"sync"
	"testing"
	"time"
)

// utteranceRecorder captures emitted utterances behind a mutex.
type utteranceRecorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *utteranceRecorder) record(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, text)
}

func (r *utteranceRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func TestDebouncerEmitsLastPartialAfterSilence(t *testing.T) {
	rec := &utteranceRecorder{}
	d := NewDebouncer(50*time.Millisecond, rec.record)

	// Cumulative restatements, spaced inside the window.
	for _, partial := range []string{"hi", "hi the", "hi there"} {
		d.Observe(partial)
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)

	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("expected exactly one utterance, got %v", got)
	}
	if got[0] != "hi there" {
		t.Errorf("expected last partial to win, got %q", got[0])
	}
	if d.Partial() != "" {
		t.Errorf("buffer not cleared after emit: %q", d.Partial())
	}
}

func TestDebouncerFlushCancelsTimerNoDoubleEmit(t *testing.T) {
	rec := &utteranceRecorder{}
	d := NewDebouncer(50*time.Millisecond, rec.record)

	d.Observe("partial text")
	d.Flush("final text")

	// Wait past the window; the cancelled timer must not fire a second
	// utterance.
	time.Sleep(100 * time.Millisecond)

	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("expected exactly one utterance, got %v", got)
	}
	if got[0] != "final text" {
		t.Errorf("flush should prefer the final event's text, got %q", got[0])
	}
}

func TestDebouncerFlushFallsBackToBuffer(t *testing.T) {
	rec := &utteranceRecorder{}
	d := NewDebouncer(time.Second, rec.record)

	d.Observe("buffered words")
	d.Flush("   ")

	got := rec.all()
	if len(got) != 1 || got[0] != "buffered words" {
		t.Errorf("expected buffered text on blank final, got %v", got)
	}
}

func TestDebouncerBlankNeverEmits(t *testing.T) {
	rec := &utteranceRecorder{}
	d := NewDebouncer(20*time.Millisecond, rec.record)

	d.Observe("")
	d.Observe("   ")
	d.Flush("")

	time.Sleep(60 * time.Millisecond)

	if got := rec.all(); len(got) != 0 {
		t.Errorf("blank input must not produce utterances, got %v", got)
	}
}

func TestDebouncerObserveResetsTimer(t *testing.T) {
	rec := &utteranceRecorder{}
	d := NewDebouncer(60*time.Millisecond, rec.record)

	d.Observe("one")
	time.Sleep(40 * time.Millisecond)
	d.Observe("one two")
	time.Sleep(40 * time.Millisecond)

	// Second partial reset the window, so nothing has fired yet.
	if got := rec.all(); len(got) != 0 {
		t.Fatalf("timer fired early: %v", got)
	}

	time.Sleep(60 * time.Millisecond)
	got := rec.all()
	if len(got) != 1 || got[0] != "one two" {
		t.Errorf("expected one utterance with latest text, got %v", got)
	}
}

func TestDebouncerCancelDropsBuffer(t *testing.T) {
	rec := &utteranceRecorder{}
	d := NewDebouncer(30*time.Millisecond, rec.record)

	d.Observe("doomed")
	d.Cancel()
	d.Cancel()

	time.Sleep(70 * time.Millisecond)

	if got := rec.all(); len(got) != 0 {
		t.Errorf("cancelled debouncer must not emit, got %v", got)
	}
	if d.Partial() != "" {
		t.Errorf("buffer should be cleared on cancel, got %q", d.Partial())
	}
}

func TestDebouncerDefaultWindow(t *testing.T) {
	d := NewDebouncer(0, func(string) {})
	if d.window != DefaultSilenceWindow {
		t.Errorf("expected default window %v, got %v", DefaultSilenceWindow, d.window)
	}
}

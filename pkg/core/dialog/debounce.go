package dialog

import (
	"strings"
	"sync"
	"time"
)

// DefaultSilenceWindow is how long the debouncer waits after the last partial
// before treating the buffered text as a complete utterance. The bridge only
// flags transcriptions final at call teardown, so pause boundaries have to be
// inferred locally.
const DefaultSilenceWindow = 1500 * time.Millisecond

// Debouncer converts a stream of cumulative transcription partials into
// discrete utterance-complete signals. Each non-blank partial overwrites the
// buffer (partials restate the whole utterance, they are not deltas) and
// resets a single timer; when the silence window elapses the buffered text is
// emitted and cleared. At most one timer is outstanding at any time.
type Debouncer struct {
	window      time.Duration
	onUtterance func(text string)

	mu      sync.Mutex
	partial string
	timer   *time.Timer
	gen     uint64
}

// NewDebouncer creates a debouncer that invokes onUtterance with each
// complete utterance. A non-positive window falls back to
// DefaultSilenceWindow. onUtterance runs on the timer goroutine (or the
// caller's goroutine for Flush) and must not block forever.
func NewDebouncer(window time.Duration, onUtterance func(text string)) *Debouncer {
	if window <= 0 {
		window = DefaultSilenceWindow
	}
	return &Debouncer{window: window, onUtterance: onUtterance}
}

// Observe records a partial transcription. Blank partials are ignored;
// non-blank partials replace the buffer and restart the silence timer.
func (d *Debouncer) Observe(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.partial = text
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() { d.fire(gen) })
}

// fire emits the buffered utterance when the silence window elapses. The
// generation check discards timers that lost a race with a later Observe,
// Flush, or Cancel.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	utterance := d.partial
	d.partial = ""
	d.timer = nil
	d.mu.Unlock()

	if strings.TrimSpace(utterance) == "" {
		return
	}
	d.onUtterance(utterance)
}

// Flush handles the terminal final-transcription event: the pending timer is
// cancelled and the final text (or the buffer when the final event carries
// none) is emitted immediately. Blank text emits nothing.
func (d *Debouncer) Flush(finalText string) {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	utterance := finalText
	if strings.TrimSpace(utterance) == "" {
		utterance = d.partial
	}
	d.partial = ""
	d.mu.Unlock()

	if strings.TrimSpace(utterance) == "" {
		return
	}
	d.onUtterance(utterance)
}

// Cancel stops the pending timer and clears the buffer without emitting.
// Safe to call repeatedly; used on call teardown.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.partial = ""
}

// Partial returns the currently buffered partial text.
func (d *Debouncer) Partial() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.partial
}

// Package progress provides progress reporting for long-running fleet runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Callback receives progress updates during a run. Concurrent executors
// report through the orchestrator, which is the only caller.
type Callback func(op string, current, total int, message string)

// Noop is a no-op callback for default behavior.
func Noop(op string, current, total int, message string) {}

// Tracker counts completed devices across batches.
type Tracker struct {
	Op    string
	Total int

	mu      sync.Mutex
	current int
	cb      Callback
}

// New creates a new progress Tracker.
func New(op string, total int, cb Callback) *Tracker {
	if cb == nil {
		cb = Noop
	}
	return &Tracker{Op: op, Total: total, cb: cb}
}

// Increment advances the progress and calls the callback.
func (t *Tracker) Increment(message string) {
	t.mu.Lock()
	t.current++
	cur := t.current
	t.mu.Unlock()
	t.cb(t.Op, cur, t.Total, message)
}

// Done marks the operation as complete.
func (t *Tracker) Done(message string) {
	t.mu.Lock()
	t.current = t.Total
	t.mu.Unlock()
	t.cb(t.Op, t.Total, t.Total, message)
}

// Current returns the current progress value.
func (t *Tracker) Current() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Terminal provides a terminal-based progress bar.
type Terminal struct {
	writer      io.Writer
	op          string
	total       int
	current     atomic.Int64
	lastLineLen atomic.Int64
	enabled     atomic.Bool
}

// NewTerminal creates a new terminal progress bar.
func NewTerminal(op string, total int, enabled bool) *Terminal {
	t := &Terminal{
		writer: os.Stderr,
		op:     op,
		total:  total,
	}
	t.enabled.Store(enabled)
	return t
}

// Callback returns a Callback function for this terminal.
func (t *Terminal) Callback() Callback {
	return func(op string, current, total int, message string) {
		if !t.enabled.Load() {
			return
		}
		t.current.Store(int64(current))
		t.render(message)
	}
}

func (t *Terminal) render(message string) {
	current := t.current.Load()
	total := int64(t.total)
	if total <= 0 {
		total = 1
	}

	percentage := float64(current) / float64(total) * 100

	barWidth := 30
	filled := int(float64(barWidth) * float64(current) / float64(total))
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)

	clear := "\r"
	if lastLen := t.lastLineLen.Load(); lastLen > 0 {
		clear = "\r" + strings.Repeat(" ", int(lastLen)) + "\r"
	}

	line := fmt.Sprintf("%s%s [%s] %d/%d (%.0f%%)", clear, t.op, bar, current, total, percentage)
	if message != "" {
		line += " " + message
	}

	fmt.Fprint(t.writer, line)
	t.lastLineLen.Store(int64(len(line)))
}

// Done marks the operation as complete and prints a final newline.
func (t *Terminal) Done(message string) {
	if !t.enabled.Load() {
		return
	}
	t.current.Store(int64(t.total))
	t.render(message)
	fmt.Fprintln(t.writer)
}

// SetEnabled enables or disables the progress bar.
func (t *Terminal) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

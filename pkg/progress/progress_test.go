package progress

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_NilCallbackDefaultsToNoop(t *testing.T) {
	p := New("bulk-update", 23, nil)
	assert.Equal(t, "bulk-update", p.Op)
	assert.Equal(t, 23, p.Total)
	assert.NotPanics(t, func() { p.Increment("device done") })
}

func TestTracker_Increment(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	cb := func(op string, current, total int, message string) {
		mu.Lock()
		seen = append(seen, current)
		mu.Unlock()
	}

	p := New("backup", 3, cb)
	p.Increment("a")
	p.Increment("b")
	p.Increment("c")

	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, 3, p.Current())
}

func TestTracker_ConcurrentIncrements(t *testing.T) {
	p := New("batch", 100, nil)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Increment("")
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, p.Current())
}

func TestTerminal_Callback(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal("deploy", 100, true)
	term.writer = &buf

	cb := term.Callback()
	cb("deploy", 50, 100, "halfway")

	out := buf.String()
	assert.Contains(t, out, "deploy")
	assert.Contains(t, out, "50/100")
	assert.Contains(t, out, "50%")
	assert.Contains(t, out, "halfway")
}

func TestTerminal_Disabled(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal("deploy", 10, false)
	term.writer = &buf

	term.Callback()("deploy", 5, 10, "")
	term.Done("done")

	assert.Empty(t, buf.String())
}

func TestTerminal_Done(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal("rollback", 5, true)
	term.writer = &buf

	cb := term.Callback()
	for i := 1; i <= 5; i++ {
		cb("rollback", i, 5, "")
	}
	buf.Reset()

	term.Done("complete")
	assert.Contains(t, buf.String(), "complete")
	assert.Contains(t, buf.String(), "\n")
}

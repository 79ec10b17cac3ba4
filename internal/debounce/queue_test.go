package debounce

import (
	"testing"
	"time"

	"github.com/friendsincode/slidify/internal/clock"
)

func TestQueueCoalescesBurst(t *testing.T) {
	m := clock.NewManual(time.Unix(0, 0))
	var flushes [][]int
	q := New(m, 500*time.Millisecond, func(items []int) { flushes = append(flushes, items) })

	q.Push(1)
	m.Advance(200 * time.Millisecond)
	q.Push(2)
	m.Advance(200 * time.Millisecond)
	q.Push(3)

	m.Advance(499 * time.Millisecond)
	if len(flushes) != 0 {
		t.Fatalf("flushed before quiet window elapsed: %v", flushes)
	}

	m.Advance(time.Millisecond)
	if len(flushes) != 1 {
		t.Fatalf("expected one flush, got %d", len(flushes))
	}
	if got := flushes[0]; len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("unexpected batch: %v", got)
	}
	if m.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", m.Pending())
	}
}

func TestQueueSeparateBursts(t *testing.T) {
	m := clock.NewManual(time.Unix(0, 0))
	count := 0
	q := New(m, time.Second, func(items []string) { count++ })

	q.Push("a")
	m.Advance(2 * time.Second)
	q.Push("b")
	m.Advance(2 * time.Second)

	if count != 2 {
		t.Fatalf("expected 2 flushes for separated bursts, got %d", count)
	}
}

func TestQueueFlushAndClose(t *testing.T) {
	m := clock.NewManual(time.Unix(0, 0))
	var got []int
	q := New(m, time.Second, func(items []int) { got = append(got, items...) })

	q.Push(7)
	q.Flush()
	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("expected immediate flush, got %v", got)
	}
	m.Advance(2 * time.Second)
	if len(got) != 1 {
		t.Fatalf("stale timer flushed again: %v", got)
	}

	q.Push(8)
	q.Close()
	q.Push(9)
	m.Advance(2 * time.Second)
	if len(got) != 1 {
		t.Fatalf("closed queue flushed: %v", got)
	}
	if q.Len() != 0 {
		t.Fatalf("closed queue retained items")
	}
}

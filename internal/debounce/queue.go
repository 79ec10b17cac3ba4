/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package debounce coalesces bursts of events into a single flush after a quiet window.
package debounce

import (
	"sync"
	"time"

	"github.com/friendsincode/slidify/internal/clock"
)

// Queue collects pushed items and hands them to the flush callback once no new
// item has arrived for the quiet window.
type Queue[T any] struct {
	sched clock.Scheduler
	quiet time.Duration
	flush func([]T)

	mu      sync.Mutex
	pending []T
	timer   clock.Timer
	gen     uint64
	closed  bool
}

// New creates a debounced queue. A zero quiet window flushes on the next scheduler turn.
func New[T any](sched clock.Scheduler, quiet time.Duration, flush func([]T)) *Queue[T] {
	if sched == nil {
		sched = clock.Real()
	}
	return &Queue[T]{sched: sched, quiet: quiet, flush: flush}
}

// Push adds an item and restarts the quiet window.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending = append(q.pending, item)
	if q.timer != nil {
		q.timer.Stop()
	}
	q.gen++
	gen := q.gen
	q.timer = q.sched.AfterFunc(q.quiet, func() { q.fire(gen) })
}

// Len returns the number of items waiting for the next flush.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush delivers pending items immediately.
func (q *Queue[T]) Flush() {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.gen++
	items := q.takeLocked()
	q.mu.Unlock()

	if len(items) > 0 {
		q.flush(items)
	}
}

// Close drops pending items and stops accepting new ones.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.pending = nil
	q.closed = true
	q.gen++
}

func (q *Queue[T]) fire(gen uint64) {
	q.mu.Lock()
	if gen != q.gen || q.closed {
		q.mu.Unlock()
		return
	}
	q.timer = nil
	items := q.takeLocked()
	q.mu.Unlock()

	if len(items) > 0 {
		q.flush(items)
	}
}

func (q *Queue[T]) takeLocked() []T {
	items := q.pending
	q.pending = nil
	return items
}

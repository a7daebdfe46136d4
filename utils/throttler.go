package utils

import (
	"errors"
	"math"
	"sync/atomic"
)

var ErrResourceBusy = errors.New("resource busy, try again")

// Throttler caps the number of jobs running at once and the number of jobs waiting for a free slot.
type Throttler struct {
	slots      chan struct{}
	waiting    atomic.Int32
	maxWaiting int32
}

func NewThrottler(concurrency uint) *Throttler {
	return &Throttler{
		slots:      make(chan struct{}, concurrency),
		maxWaiting: math.MaxInt32,
	}
}

// WithMaxQueueLen bounds the number of jobs waiting for a slot. Jobs beyond it fail with ErrResourceBusy.
func (t *Throttler) WithMaxQueueLen(maxQueueLen int32) *Throttler {
	t.maxWaiting = maxQueueLen
	return t
}

// Do runs job once a slot is free.
func (t *Throttler) Do(job func() error) error {
	if t.waiting.Add(1) > t.maxWaiting {
		t.waiting.Add(-1)
		return ErrResourceBusy
	}
	t.slots <- struct{}{}
	t.waiting.Add(-1)
	defer func() { <-t.slots }()
	return job()
}

// QueueLen returns the number of jobs waiting for a slot.
func (t *Throttler) QueueLen() int {
	return int(t.waiting.Load())
}

// JobsRunning returns the number of jobs holding a slot.
func (t *Throttler) JobsRunning() int {
	return len(t.slots)
}

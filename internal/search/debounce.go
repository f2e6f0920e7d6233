// Package search implements the input-coalescing policy for the
// search surface: rapid repeated queries from one caller collapse into
// a single upstream call per quiet period, and superseded pending
// calls are discarded without touching the network.
package search

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSuperseded is returned when a newer query from the same caller
// arrived while this one was waiting out the quiet period.
var ErrSuperseded = errors.New("search query superseded by a newer one")

// Debouncer delays per-key triggers until input pauses.
type Debouncer struct {
	mu    sync.Mutex
	quiet time.Duration
	seq   map[string]uint64
}

// New constructs a debouncer with the given quiet period. A zero or
// negative period disables coalescing.
func New(quiet time.Duration) *Debouncer {
	return &Debouncer{
		quiet: quiet,
		seq:   make(map[string]uint64),
	}
}

// Wait blocks until the quiet period elapses without a newer trigger
// for key. The most recent trigger wins and returns nil; every older
// pending trigger returns ErrSuperseded.
func (d *Debouncer) Wait(ctx context.Context, key string) error {
	if d == nil || d.quiet <= 0 {
		return nil
	}

	d.mu.Lock()
	d.seq[key]++
	mine := d.seq[key]
	d.mu.Unlock()

	timer := time.NewTimer(d.quiet)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seq[key] != mine {
		return ErrSuperseded
	}
	delete(d.seq, key)
	return nil
}

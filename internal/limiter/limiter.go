package limiter

import (
	"context"
)

// Limiter caps how many rasterizations run at once in this process.
// MuPDF renders at 300 DPI allocate a full page bitmap each, so the cap is
// effectively a memory bound.
type Limiter struct {
	max int
	sem chan struct{}
}

// New returns a limiter with max slots. max <= 0 means 2.
func New(max int) *Limiter {
	if max <= 0 {
		max = 2
	}
	return &Limiter{max: max, sem: make(chan struct{}, max)}
}

// Acquire blocks until a slot is free or ctx is done.
// The returned release func must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
		return l.release, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InFlight returns the number of held slots.
func (l *Limiter) InFlight() int { return len(l.sem) }

// Max returns the slot count.
func (l *Limiter) Max() int { return l.max }

func (l *Limiter) release() { <-l.sem }

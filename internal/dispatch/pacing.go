package dispatch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Pacing is the per-send delay window. Each worker draws a fresh delay for
// every recipient it pops.
type Pacing struct {
	Min time.Duration
	Max time.Duration
}

func (p Pacing) Validate() error {
	if p.Min < 0 {
		return fmt.Errorf("pacing min must be >= 0 (got %s)", p.Min)
	}
	if p.Max < p.Min {
		return fmt.Errorf("pacing max (%s) must be >= min (%s)", p.Max, p.Min)
	}
	return nil
}

// Draw returns a delay uniformly distributed in [Min, Max].
func (p Pacing) Draw() time.Duration {
	if p.Max <= p.Min {
		return max(p.Min, 0)
	}
	return p.Min + rand.N(p.Max-p.Min+1)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

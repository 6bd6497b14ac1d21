package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPacingDrawWithinBounds(t *testing.T) {
	t.Parallel()
	p := Pacing{Min: 60 * time.Second, Max: 70 * time.Second}
	for i := 0; i < 1000; i++ {
		d := p.Draw()
		assert.GreaterOrEqual(t, d, p.Min)
		assert.LessOrEqual(t, d, p.Max)
	}
}

func TestPacingDegenerateWindow(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 5*time.Second, Pacing{Min: 5 * time.Second, Max: 5 * time.Second}.Draw())
	assert.Equal(t, time.Duration(0), Pacing{}.Draw())
}

func TestPacingValidate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Pacing{}.Validate())
	assert.NoError(t, Pacing{Min: time.Second, Max: 2 * time.Second}.Validate())
	assert.Error(t, Pacing{Min: -time.Second}.Validate())
	assert.Error(t, Pacing{Min: 2 * time.Second, Max: time.Second}.Validate())
}

func TestSleepCtxCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
}

package adbvol

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffConfig configures an exponential retry delay.
type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
	Factor  float64       `yaml:"factor,omitempty"`
}

// exponential returns a backoff without jitter that never gives up.
// A Factor below 1 doubles the delay.
func (b BackoffConfig) exponential() *backoff.ExponentialBackOff {
	factor := b.Factor
	if factor < 1 {
		factor = 2
	}

	limit := b.Max
	if limit < b.Initial {
		limit = b.Initial
	}

	bo := &backoff.ExponentialBackOff{
		InitialInterval:     b.Initial,
		RandomizationFactor: 0,
		Multiplier:          factor,
		MaxInterval:         limit,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	bo.Reset()

	return bo
}

// sleepContext waits for d or until ctx is done. It reports whether the full delay elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

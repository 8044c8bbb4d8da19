// Package retry implements the exponential-backoff policy used when talking
// to the NuGet registry.
package retry

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// Policy describes when and for how long a failed request should be retried.
// MaxAttempts counts retries, not total attempts: 0 means the first failure
// is final.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultPolicy mirrors the default configuration values.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Factor:      2.0,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
	}
}

// Delay returns the backoff delay before retry number attempt (starting at 0):
// min(BaseDelay * Factor^attempt, MaxDelay). With Jitter enabled the delay is
// scaled by a uniform factor in [0.5, 1.0) so concurrent fetches don't retry
// in lockstep.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt))
	if max := float64(p.MaxDelay); d > max {
		d = max
	}
	if p.Jitter {
		d *= 0.5 + 0.5*rand.Float64()
	}
	return time.Duration(d)
}

// Sleep waits for the backoff delay of the given retry attempt, or returns
// early with ctx.Err() if the run is cancelled first.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Delay(attempt))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryableStatus reports whether an HTTP status code is worth retrying:
// 429 and any 5xx. Other 4xx responses are definitive failures.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

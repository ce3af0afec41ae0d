package verifier

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedBackend wraps any Verifier with a token bucket, for APIs
// with request quotas: a bucket of n tokens refilled uniformly over
// window, with callers blocking (rather than polling) until a token
// frees up. It stands in for original_source/x_rate_limiter.py's
// deque-based sliding window but is not a sliding window: a full bucket
// admits n requests at once and refills n more over the next window, so
// up to 2n requests can pass within one window length.
type RateLimitedBackend struct {
	inner   Verifier
	limiter *rate.Limiter
}

// NewRateLimitedBackend admits requests at a sustained rate of n per
// window with a burst of n, delegating actual verification to inner once
// a token is available.
func NewRateLimitedBackend(inner Verifier, n int, window time.Duration) *RateLimitedBackend {
	// n tokens per window, refilled continuously => rate.Limit is
	// tokens-per-second; burst equals n so a full bucket absorbs n
	// requests instantly after a long idle period.
	perSecond := rate.Limit(float64(n) / window.Seconds())
	return &RateLimitedBackend{
		inner:   inner,
		limiter: rate.NewLimiter(perSecond, n),
	}
}

// Verify blocks until the rate limiter admits the request, then delegates
// to the wrapped Verifier.
func (r *RateLimitedBackend) Verify(ctx context.Context, post Post) (bool, *VerificationError) {
	if err := r.limiter.Wait(ctx); err != nil {
		return false, &VerificationError{Code: ErrAPIError, Message: "rate limiter wait aborted: " + err.Error()}
	}
	return r.inner.Verify(ctx, post)
}

package transport

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limited throttles round trips through a token bucket so that a client
// never floods its issuer.
type Limited struct {
	next    Transport
	limiter *rate.Limiter
}

// NewLimited allows perSecond round trips per second with the given burst.
func NewLimited(next Transport, perSecond float64, burst int) *Limited {
	if burst <= 0 {
		burst = 1
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// RoundTrip waits for the limiter, then delegates
func (l *Limited) RoundTrip(ctx context.Context, req []byte) ([]byte, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return l.next.RoundTrip(ctx, req)
}

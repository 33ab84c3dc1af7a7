package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/todmy/docguard/pkg/models"
)

// NewLimiter builds the token bucket shared by every oracle client in a process.
// rps <= 0 disables throttling.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Limited throttles a Generator through a shared limiter
type Limited struct {
	next    Generator
	limiter *rate.Limiter
}

var _ Generator = (*Limited)(nil)

// WithLimiter wraps g so every call waits on limiter first
func WithLimiter(g Generator, limiter *rate.Limiter) *Limited {
	return &Limited{next: g, limiter: limiter}
}

// Generate waits for a token and delegates
func (l *Limited) Generate(ctx context.Context, req Request) (*Completion, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", models.ErrOracleUnavailable, err)
	}
	return l.next.Generate(ctx, req)
}

package ai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// rateLimitedService throttles an LLMService with a token bucket.
type rateLimitedService struct {
	next    LLMService
	limiter *rate.Limiter
}

// NewRateLimitedService wraps next so that at most rps calls per second
// (with the given burst) reach the provider. Waiting honors ctx.
func NewRateLimitedService(next LLMService, rps float64, burst int) LLMService {
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedService{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (s *rateLimitedService) Chat(ctx context.Context, messages []Message) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return s.next.Chat(ctx, messages)
}

package ynote

import (
	"context"
	"fmt"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

const rateLimitKey = "ynote"

// rateLimiter blocks callers until the configured request rate allows
// another call.
type rateLimiter struct {
	limiter *limiter.Limiter
}

func newRateLimiter(formatted string) (*rateLimiter, error) {
	if formatted == "" {
		return nil, nil
	}
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("rate limit %q: %w", formatted, err)
	}
	return &rateLimiter{limiter: limiter.New(memory.NewStore(), rate)}, nil
}

func (r *rateLimiter) Wait(ctx context.Context) error {
	for {
		lctx, err := r.limiter.Get(ctx, rateLimitKey)
		if err != nil {
			return err
		}
		if !lctx.Reached {
			return nil
		}

		wait := time.Until(time.Unix(lctx.Reset, 0))
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

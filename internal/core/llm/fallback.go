package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrEmptyResponse is wrapped in a KindEmpty ModelError when a model answers
// with nothing but whitespace.
var ErrEmptyResponse = errors.New("model returned an empty response")

// DefaultFallbackDelay is the pause before moving to the next model after a
// retryable failure.
const DefaultFallbackDelay = time.Second

// ExhaustedError is returned when every model in a chain failed with a
// retryable error. Last is the final model's error.
type ExhaustedError struct {
	Models []string
	Last   error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d models failed: %v", len(e.Models), e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// ModelChain tries an ordered list of models until one succeeds. A retryable
// failure or a blank answer waits Delay and moves on; any other failure stops
// the chain.
type ModelChain struct {
	Models []string
	Delay  time.Duration
	log    *zap.Logger
}

func NewModelChain(models []string, delay time.Duration, log *zap.Logger) *ModelChain {
	return &ModelChain{Models: models, Delay: delay, log: log.Named("model-chain")}
}

// Run calls fn with each model in order. It returns the first successful
// output together with the model that produced it.
func (c *ModelChain) Run(ctx context.Context, fn func(ctx context.Context, model string) (string, error)) (string, string, error) {
	if len(c.Models) == 0 {
		return "", "", errors.New("model chain is empty")
	}

	var lastErr error
	for i, model := range c.Models {
		out, err := fn(ctx, model)
		if err == nil && strings.TrimSpace(out) == "" {
			err = NewModelError(model, KindEmpty, ErrEmptyResponse)
		}
		if err == nil {
			return out, model, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			c.log.Warn("model failed, aborting chain", zap.String("model", model), zap.Error(err))
			return "", model, err
		}

		c.log.Warn("model throttled, trying next", zap.String("model", model), zap.Error(err))
		if i == len(c.Models)-1 {
			break
		}
		if err := sleep(ctx, c.Delay); err != nil {
			return "", model, err
		}
	}
	return "", "", &ExhaustedError{Models: c.Models, Last: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies a model failure.
type Kind int

const (
	KindOther Kind = iota
	KindQuota
	KindOverloaded
	KindBlocked
	KindEmpty
)

func (k Kind) String() string {
	switch k {
	case KindQuota:
		return "quota"
	case KindOverloaded:
		return "overloaded"
	case KindBlocked:
		return "blocked"
	case KindEmpty:
		return "empty"
	default:
		return "other"
	}
}

// ModelError is the only error type providers return. Retryable is set by the
// provider layer; fallback logic reads it and never inspects message text.
type ModelError struct {
	Model     string
	Kind      Kind
	Retryable bool
	Err       error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%s: %v", e.Model, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// NewModelError builds a ModelError with Retryable derived from the kind.
func NewModelError(model string, kind Kind, err error) *ModelError {
	return &ModelError{
		Model:     model,
		Kind:      kind,
		Retryable: kind == KindQuota || kind == KindOverloaded || kind == KindEmpty,
		Err:       err,
	}
}

// IsRetryable reports whether err is a ModelError that allows trying the next model.
func IsRetryable(err error) bool {
	var me *ModelError
	return errors.As(err, &me) && me.Retryable
}

// classify maps a genai client error onto a ModelError.
func classify(model string, err error) *ModelError {
	if err == nil {
		return nil
	}
	var me *ModelError
	if errors.As(err, &me) {
		return me
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return NewModelError(model, KindBlocked, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewModelError(model, KindOther, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return NewModelError(model, KindQuota, err)
		case http.StatusServiceUnavailable:
			return NewModelError(model, KindOverloaded, err)
		}
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.ResourceExhausted:
			return NewModelError(model, KindQuota, err)
		case codes.Unavailable:
			return NewModelError(model, KindOverloaded, err)
		}
	}

	return NewModelError(model, KindOther, err)
}

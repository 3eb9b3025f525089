package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/core/llm"
)

func TestModelChainFallsBackOnQuota(t *testing.T) {
	chain := llm.NewModelChain([]string{"m0", "m1", "m2"}, 0, zap.NewNop())

	var called []string
	out, model, err := chain.Run(context.Background(), func(_ context.Context, m string) (string, error) {
		called = append(called, m)
		if m == "m0" {
			return "", llm.NewModelError(m, llm.KindQuota, errors.New("quota exceeded"))
		}
		return "answer from " + m, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "answer from m1", out)
	assert.Equal(t, "m1", model)
	assert.Equal(t, []string{"m0", "m1"}, called)
}

func TestModelChainAbortsOnOtherError(t *testing.T) {
	chain := llm.NewModelChain([]string{"m0", "m1"}, 0, zap.NewNop())

	var called []string
	_, _, err := chain.Run(context.Background(), func(_ context.Context, m string) (string, error) {
		called = append(called, m)
		return "", llm.NewModelError(m, llm.KindOther, errors.New("bad request"))
	})

	require.Error(t, err)
	assert.False(t, llm.IsRetryable(err))
	assert.Equal(t, []string{"m0"}, called)
}

func TestModelChainExhausted(t *testing.T) {
	chain := llm.NewModelChain([]string{"m0", "m1", "m2"}, 0, zap.NewNop())

	_, _, err := chain.Run(context.Background(), func(_ context.Context, m string) (string, error) {
		return "", llm.NewModelError(m, llm.KindOverloaded, errors.New("overloaded "+m))
	})

	var exhausted *llm.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Models, 3)
	assert.Contains(t, exhausted.Last.Error(), "overloaded m2")
}

func TestModelChainUntypedErrorIsNotRetried(t *testing.T) {
	chain := llm.NewModelChain([]string{"m0", "m1"}, 0, zap.NewNop())

	calls := 0
	_, _, err := chain.Run(context.Background(), func(context.Context, string) (string, error) {
		calls++
		return "", errors.New("429 Too Many Requests")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestModelChainSkipsBlankAnswers(t *testing.T) {
	chain := llm.NewModelChain([]string{"m0", "m1"}, 0, zap.NewNop())

	out, model, err := chain.Run(context.Background(), func(_ context.Context, m string) (string, error) {
		if m == "m0" {
			return " \n ", nil
		}
		return "real answer", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "real answer", out)
	assert.Equal(t, "m1", model)
}

func TestModelChainAllBlank(t *testing.T) {
	chain := llm.NewModelChain([]string{"m0", "m1"}, 0, zap.NewNop())

	_, _, err := chain.Run(context.Background(), func(context.Context, string) (string, error) {
		return "", nil
	})

	var exhausted *llm.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
	var me *llm.ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, llm.KindEmpty, me.Kind)
	assert.Equal(t, "m1", me.Model)
}

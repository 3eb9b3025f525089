package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/core"
	"github.com/markdave123-py/documind/internal/core/llm"
)

const (
	summaryInputChars = 5000
	summaryMaxTokens  = 200
	summaryPrompt     = "You are a document summarizer. Generate exactly 3 concise sentences that capture the key information of the document. Do not include any preamble, just output the 3 sentences directly."
)

// SummaryService writes the short abstract stored on a processed document.
type SummaryService struct {
	llm   core.LLMProvider
	chain *llm.ModelChain
	log   *zap.Logger
}

var _ core.Summarizer = (*SummaryService)(nil)

func NewSummaryService(provider core.LLMProvider, chain *llm.ModelChain, log *zap.Logger) *SummaryService {
	return &SummaryService{llm: provider, chain: chain, log: log.Named("summary")}
}

// Summarize joins the chunks with newlines, keeps the first 5000 characters and
// asks the model chain for three sentences. An empty input yields "".
func (s *SummaryService) Summarize(ctx context.Context, chunks []string) (string, error) {
	text := truncateRunes(strings.Join(chunks, "\n"), summaryInputChars)
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	temp := float32(0.3)
	opts := core.GenerateOptions{MaxTokens: summaryMaxTokens, Temperature: &temp}

	out, model, err := s.chain.Run(ctx, func(ctx context.Context, model string) (string, error) {
		return s.llm.Generate(ctx, model, summaryPrompt, "Summarize this document:\n\n"+text, opts)
	})
	if err != nil {
		return "", err
	}

	s.log.Debug("summary generated", zap.String("model", model), zap.Int("chars", len(out)))
	return strings.TrimSpace(out), nil
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

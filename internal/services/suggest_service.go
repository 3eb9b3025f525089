package services

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/core"
)

const (
	suggestionCount      = 3
	suggestContextChunks = 3
	suggestContextLimit  = 2000
	suggestMaxTokens     = 150
	suggestTemperature   = float32(0.7)
	suggestCacheTTL      = 10 * time.Minute
)

var (
	paddingQuestions = []string{
		"What is the main topic of this document?",
		"What are the key findings?",
		"What conclusions can be drawn?",
	}
	fallbackQuestions = []string{
		"What is this document about?",
		"Summarize the key points",
		"What are the main conclusions?",
	}
	noProviderQuestions = []string{
		"What is the main topic of this document?",
		"Summarize the key findings",
		"What are the most important takeaways?",
	}
)

const suggestPrompt = `Based on the following document content, generate exactly 3 short, specific questions a reader might ask about it.
Return only the questions, one per line, without numbering or bullets.`

// SuggestService proposes starter questions for a document. It never fails:
// any problem yields a fixed set of questions.
type SuggestService struct {
	chunks core.ChunkStore
	llm    core.LLMProvider
	model  string
	cache  *cache.Cache
	log    *zap.Logger
}

// NewSuggestService builds the service. provider may be nil when no API key
// is configured.
func NewSuggestService(chunks core.ChunkStore, provider core.LLMProvider, model string, log *zap.Logger) *SuggestService {
	return &SuggestService{
		chunks: chunks,
		llm:    provider,
		model:  model,
		cache:  cache.New(suggestCacheTTL, 2*suggestCacheTTL),
		log:    log.Named("suggest"),
	}
}

// Suggest returns exactly three questions. The summary is used as context
// when given, otherwise the document's leading chunks.
func (s *SuggestService) Suggest(ctx context.Context, userID, docID, summary string) []string {
	if s.llm == nil {
		return clone(noProviderQuestions)
	}

	key := userID + "/" + docID
	if v, ok := s.cache.Get(key); ok {
		return clone(v.([]string))
	}

	questions, ok := s.generate(ctx, userID, docID, summary)
	if !ok {
		return clone(fallbackQuestions)
	}
	s.cache.SetDefault(key, questions)
	return clone(questions)
}

// Forget drops cached suggestions for a document.
func (s *SuggestService) Forget(userID, docID string) {
	s.cache.Delete(userID + "/" + docID)
}

func (s *SuggestService) generate(ctx context.Context, userID, docID, summary string) ([]string, bool) {
	log := s.log.With(zap.String("document_id", docID))

	docContext := strings.TrimSpace(summary)
	if docContext == "" {
		chunks, err := s.chunks.ListChunks(ctx, docID, userID, suggestContextChunks)
		if err != nil {
			log.Warn("load chunks for suggestions", zap.Error(err))
			return nil, false
		}
		parts := make([]string, 0, len(chunks))
		for _, c := range chunks {
			parts = append(parts, c.Content)
		}
		docContext = truncateRunes(strings.Join(parts, "\n"), suggestContextLimit)
	}
	if strings.TrimSpace(docContext) == "" {
		return nil, false
	}

	temp := suggestTemperature
	out, err := s.llm.Generate(ctx, s.model, suggestPrompt, docContext, core.GenerateOptions{
		MaxTokens:   suggestMaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		log.Warn("suggest questions", zap.String("model", s.model), zap.Error(err))
		return nil, false
	}
	return parseQuestions(out), true
}

// parseQuestions keeps lines that look like questions and pads the result
// to exactly three entries.
func parseQuestions(raw string) []string {
	out := make([]string, 0, suggestionCount)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 5 && strings.HasSuffix(line, "?") {
			out = append(out, line)
			if len(out) == suggestionCount {
				return out
			}
		}
	}
	for i := 0; len(out) < suggestionCount; i++ {
		out = append(out, paddingQuestions[i])
	}
	return out
}

func clone(in []string) []string {
	return append([]string(nil), in...)
}

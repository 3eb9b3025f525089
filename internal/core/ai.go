package core

import "context"

// Message is one turn of a conversation sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions tunes a single model call. Zero values leave provider defaults.
type GenerateOptions struct {
	MaxTokens   int32
	Temperature *float32
}

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider calls a named model. Implementations report failures as
// *llm.ModelError so callers can decide on fallback without reading text.
type LLMProvider interface {
	Generate(ctx context.Context, model, systemPrompt, userPrompt string, opts GenerateOptions) (string, error)
	Chat(ctx context.Context, model, systemPrompt string, messages []Message, opts GenerateOptions) (string, error)
}

// Summarizer produces a short abstract of a document from its leading chunks.
type Summarizer interface {
	Summarize(ctx context.Context, chunks []string) (string, error)
}

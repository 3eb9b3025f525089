package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/documind/internal/core"
	"github.com/markdave123-py/documind/internal/models"
)

// GeminiLLM serves any Gemini model from one shared client.
type GeminiLLM struct {
	client *genai.Client
}

var _ core.LLMProvider = (*GeminiLLM)(nil)

func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	return genai.NewClient(ctx, option.WithAPIKey(apiKey))
}

func NewGeminiLLM(client *genai.Client) *GeminiLLM {
	return &GeminiLLM{client: client}
}

func (g *GeminiLLM) model(name, systemPrompt string, opts core.GenerateOptions) *genai.GenerativeModel {
	m := g.client.GenerativeModel(name)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}
	if opts.MaxTokens > 0 {
		m.SetMaxOutputTokens(opts.MaxTokens)
	}
	if opts.Temperature != nil {
		m.SetTemperature(*opts.Temperature)
	}
	return m
}

func (g *GeminiLLM) Generate(ctx context.Context, model, systemPrompt, userPrompt string, opts core.GenerateOptions) (string, error) {
	m := g.model(model, systemPrompt, opts)

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", classify(model, err)
	}
	return responseText(resp), nil
}

// Chat replays the conversation as history and sends its final turn.
func (g *GeminiLLM) Chat(ctx context.Context, model, systemPrompt string, messages []core.Message, opts core.GenerateOptions) (string, error) {
	if len(messages) == 0 {
		return "", NewModelError(model, KindOther, fmt.Errorf("empty conversation"))
	}
	m := g.model(model, systemPrompt, opts)

	cs := m.StartChat()
	for _, msg := range messages[:len(messages)-1] {
		cs.History = append(cs.History, &genai.Content{
			Role:  geminiRole(msg.Role),
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(messages[len(messages)-1].Content))
	if err != nil {
		return "", classify(model, err)
	}
	return responseText(resp), nil
}

func geminiRole(role string) string {
	if role == models.RoleAssistant {
		return "model"
	}
	return "user"
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

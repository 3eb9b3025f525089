package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/documind/internal/core"
	"github.com/markdave123-py/documind/internal/core/llm"
	"github.com/markdave123-py/documind/internal/core/retrieval"
	"github.com/markdave123-py/documind/internal/models"
)

const (
	// dedupWindow is how far back an identical user message suppresses a second insert.
	dedupWindow = 30 * time.Second
	// assistantOffset orders a reply after the question it answers.
	assistantOffset = time.Second

	msgDocNotFound     = "Document not found or access denied"
	msgNoContent       = "No content found. The document may not have been processed yet."
	msgAIUnavailable   = "AI service is temporarily unavailable. Please try again in a minute."
	msgMessagesMissing = "Messages array is required"
	msgDocIDMissing    = "docId is required"
)

// AnswerRequest is one chat turn: the conversation so far, ending with the
// user's newest message.
type AnswerRequest struct {
	DocID    string         `json:"docId"`
	Messages []core.Message `json:"messages"`
}

// Answer is the model reply and how it was produced.
type Answer struct {
	Content string `json:"content"`
	Model   string `json:"-"`
	Method  string `json:"-"`
}

// ChatService answers questions about one document and keeps its chat log.
type ChatService struct {
	db        core.DbClient
	retriever *retrieval.Retriever
	llm       core.LLMProvider
	chain     *llm.ModelChain
	budget    int
	now       func() time.Time
	log       *zap.Logger
}

func NewChatService(
	db core.DbClient,
	retriever *retrieval.Retriever,
	provider core.LLMProvider,
	chain *llm.ModelChain,
	budget int,
	log *zap.Logger,
) *ChatService {
	return &ChatService{
		db:        db,
		retriever: retriever,
		llm:       provider,
		chain:     chain,
		budget:    budget,
		now:       time.Now,
		log:       log.Named("chat"),
	}
}

// Answer grounds the conversation in the document, runs it through the model
// chain and records the exchange. Persisting is best effort; a stored or
// skipped exchange returns the same answer.
func (s *ChatService) Answer(ctx context.Context, userID string, req AnswerRequest) (*Answer, error) {
	if userID == "" {
		return nil, core.NewError(core.ErrAuth, "Unauthorized", nil)
	}
	msgs := conversation(req.Messages)
	if len(msgs) == 0 {
		return nil, core.Validation(msgMessagesMissing)
	}
	if strings.TrimSpace(req.DocID) == "" {
		return nil, core.Validation(msgDocIDMissing)
	}
	if !validID(req.DocID) {
		return nil, core.NotFound(msgDocNotFound)
	}

	var (
		doc   *models.Document
		count int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		doc, err = s.db.GetDocument(gctx, req.DocID, userID)
		return err
	})
	g.Go(func() error {
		var err error
		count, err = s.db.CountChunks(gctx, req.DocID, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return nil, core.NotFound(msgDocNotFound)
	}
	if count == 0 {
		return nil, core.NotFound(msgNoContent)
	}

	query := latestUserMessage(msgs)
	res, err := s.retriever.Retrieve(ctx, doc, query, s.budget)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	if s.llm == nil {
		return nil, core.NewError(core.ErrUnavailable, msgAIUnavailable, nil)
	}

	system := buildSystemPrompt(doc, res.Context)
	content, model, err := s.chain.Run(ctx, func(ctx context.Context, model string) (string, error) {
		return s.llm.Chat(ctx, model, system, msgs, core.GenerateOptions{})
	})
	if err != nil {
		return nil, modelFailure(ctx, err)
	}

	s.log.Info("answered",
		zap.String("document_id", doc.ID), zap.String("model", model),
		zap.String("method", res.Method), zap.Int("context_chars", len(res.Context)))

	s.recordExchange(ctx, doc.ID, userID, query, content)
	return &Answer{Content: content, Model: model, Method: res.Method}, nil
}

// modelFailure maps a chain error to what the caller sees. An exhausted chain
// is a rate limit; any other model error is reported as unavailable.
func modelFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	msg := msgAIUnavailable
	var me *llm.ModelError
	if errors.As(err, &me) && me.Err != nil && me.Err.Error() != "" {
		msg = me.Err.Error()
	}

	var exhausted *llm.ExhaustedError
	if errors.As(err, &exhausted) {
		return core.NewError(core.ErrRateLimited, msg, err)
	}
	return core.NewError(core.ErrUnavailable, msg, err)
}

// recordExchange stores the question and reply unless the same question was
// stored in the last 30 seconds. The reply is stamped one second after the
// question.
func (s *ChatService) recordExchange(ctx context.Context, docID, userID, question, reply string) {
	ctx = context.WithoutCancel(ctx)
	now := s.now()
	log := s.log.With(zap.String("document_id", docID))

	dup, err := s.db.RecentUserMessageExists(ctx, docID, userID, question, now.Add(-dedupWindow))
	if err != nil {
		log.Warn("dedup check failed", zap.Error(err))
	}
	if dup {
		log.Info("skipped duplicate chat message insert")
		return
	}

	err = s.db.InsertChatMessages(ctx, []models.ChatMessage{
		{ID: uuid.NewString(), DocumentID: docID, UserID: userID, Role: models.RoleUser, Content: question, CreatedAt: now},
		{ID: uuid.NewString(), DocumentID: docID, UserID: userID, Role: models.RoleAssistant, Content: reply, CreatedAt: now.Add(assistantOffset)},
	})
	if err != nil {
		log.Error("failed to save chat messages", zap.Error(err))
	}
}

// History returns a document's messages in display order with consecutive
// repeats removed.
func (s *ChatService) History(ctx context.Context, userID, docID string) ([]models.ChatMessage, error) {
	if !validID(docID) {
		return nil, core.NotFound(msgDocNotFound)
	}
	msgs, err := s.db.ListChatMessages(ctx, docID, userID)
	if err != nil {
		return nil, err
	}
	models.SortChatMessages(msgs)
	return models.DedupConsecutive(msgs), nil
}

func (s *ChatService) ClearHistory(ctx context.Context, userID, docID string) error {
	if !validID(docID) {
		return core.NotFound(msgDocNotFound)
	}
	return s.db.DeleteChatMessages(ctx, docID, userID)
}

// AllHistory groups every message of the user by document, most recently
// active conversation first.
func (s *ChatService) AllHistory(ctx context.Context, userID string) ([]models.ChatHistoryGroup, error) {
	msgs, err := s.db.ListUserChatMessages(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return []models.ChatHistoryGroup{}, nil
	}
	models.SortChatMessages(msgs)

	seen := make(map[string]bool)
	var ids []string
	for _, m := range msgs {
		if m.DocumentID != "" && !seen[m.DocumentID] {
			seen[m.DocumentID] = true
			ids = append(ids, m.DocumentID)
		}
	}

	names, err := s.db.DocumentNames(ctx, userID, ids)
	if err != nil {
		s.log.Warn("load document names", zap.Error(err))
		names = nil
	}
	return models.GroupByDocument(msgs, names), nil
}

// SaveMessage stores a single message the client already rendered.
func (s *ChatService) SaveMessage(ctx context.Context, userID, docID, role, content string) (*models.ChatMessage, error) {
	if role != models.RoleUser && role != models.RoleAssistant {
		return nil, core.Validation("role must be user or assistant")
	}
	if strings.TrimSpace(content) == "" {
		return nil, core.Validation("content is required")
	}
	if !validID(docID) {
		return nil, core.NotFound(msgDocNotFound)
	}

	doc, err := s.db.GetDocument(ctx, docID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, core.NotFound(msgDocNotFound)
	}

	msg := models.ChatMessage{
		ID:         uuid.NewString(),
		DocumentID: docID,
		UserID:     userID,
		Role:       role,
		Content:    content,
		CreatedAt:  s.now(),
	}
	if err := s.db.InsertChatMessages(ctx, []models.ChatMessage{msg}); err != nil {
		return nil, err
	}
	return &msg, nil
}

// conversation drops empty turns and anything before the first user turn.
func conversation(in []core.Message) []core.Message {
	out := make([]core.Message, 0, len(in))
	for _, m := range in {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if len(out) == 0 && m.Role != models.RoleUser {
			continue
		}
		role := models.RoleUser
		if m.Role == models.RoleAssistant {
			role = models.RoleAssistant
		}
		out = append(out, core.Message{Role: role, Content: m.Content})
	}
	return out
}

func latestUserMessage(msgs []core.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleUser {
			return msgs[i].Content
		}
	}
	return msgs[len(msgs)-1].Content
}

func buildSystemPrompt(doc *models.Document, docContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are DocuMind, an intelligent AI document assistant. You are chatting about the document: \"%s\".\n\n", doc.FileName)

	b.WriteString("DOCUMENT DETAILS:\n")
	fmt.Fprintf(&b, "- File name: %s\n", doc.FileName)
	fmt.Fprintf(&b, "- Type: %s\n", models.FormatLabel(doc.FileType))
	fmt.Fprintf(&b, "- Size: %s\n", humanSize(doc.FileSize))
	if doc.PageCount != nil {
		unit := "Pages"
		if doc.FileType == models.FileTypePPTX {
			unit = "Slides"
		}
		fmt.Fprintf(&b, "- %s: %d\n", unit, *doc.PageCount)
	}
	if doc.Summary != nil && *doc.Summary != "" {
		fmt.Fprintf(&b, "- Summary: %s\n", *doc.Summary)
	}

	b.WriteString(`
RULES:
1. Answer based ONLY on the provided document content below. Do not use external knowledge.
2. If the answer is not found in the document, say: "I cannot find that information in this document."
3. Be concise, clear, and helpful.
4. Format your responses with markdown for readability.
5. When quoting from the document, use blockquotes.

DOCUMENT CONTENT:
`)
	b.WriteString(docContext)
	return b.String()
}

func humanSize(n int64) string {
	return units.CustomSize("%.4g %s", float64(n), 1024.0, []string{"B", "KB", "MB", "GB", "TB"})
}

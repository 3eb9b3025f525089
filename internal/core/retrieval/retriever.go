package retrieval

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/core"
	"github.com/markdave123-py/documind/internal/models"
)

// Retrieval methods reported with every result.
const (
	MethodHybrid   = "hybrid"
	MethodSemantic = "semantic"
	MethodFullScan = "full-scan"
)

const (
	DefaultTopK   = 10
	KeywordWeight = 1.0
	FuzzyWeight   = 0.5
	DefaultBudget = 28000
)

const chunkSeparator = "\n\n"

// ChunkReader is the read side of chunk storage used for retrieval.
type ChunkReader interface {
	HybridSearch(ctx context.Context, query, documentID, userID string, topK int, keywordWeight, fuzzyWeight float64) ([]models.ScoredChunk, error)
	SemanticSearch(ctx context.Context, documentID, userID string, queryVec []float32, limit int) ([]models.ScoredChunk, error)
	ListChunks(ctx context.Context, documentID, userID string, limit int) ([]models.DocumentChunk, error)
}

// Result is the context assembled for one question.
//
// Context: rendered chunk text, never longer than the budget in characters.
// Method:  which path produced the chunks.
// Chunks:  the chunks that made it into Context, in rendered order.
type Result struct {
	Context string
	Method  string
	Chunks  []models.DocumentChunk
}

// Retriever picks the document text handed to the model for a question.
type Retriever struct {
	chunks   ChunkReader
	embedder core.EmbeddingProvider
	topK     int
	log      *zap.Logger
}

// NewRetriever builds a retriever. embedder may be nil, which disables the
// semantic path.
func NewRetriever(chunks ChunkReader, embedder core.EmbeddingProvider, log *zap.Logger) *Retriever {
	return &Retriever{chunks: chunks, embedder: embedder, topK: DefaultTopK, log: log.Named("retriever")}
}

// Retrieve ranks the document's chunks against query with the server-side
// hybrid search. When that errors or finds nothing it tries vector search if
// embeddings are enabled, then falls back to every chunk in index order.
// All paths stop before the chunk that would push Context past budget.
func (r *Retriever) Retrieve(ctx context.Context, doc *models.Document, query string, budget int) (*Result, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}
	log := r.log.With(zap.String("document_id", doc.ID))
	query = strings.TrimSpace(query)

	if query != "" {
		hits, err := r.chunks.HybridSearch(ctx, query, doc.ID, doc.UserID, r.topK, KeywordWeight, FuzzyWeight)
		switch {
		case err != nil:
			log.Warn("hybrid search failed, falling back", zap.Error(err))
		case len(hits) > 0:
			return render(doc, unwrapScored(hits), MethodHybrid, budget), nil
		}

		if hits, ok := r.semantic(ctx, doc, query, log); ok {
			return render(doc, unwrapScored(hits), MethodSemantic, budget), nil
		}
	}

	all, err := r.chunks.ListChunks(ctx, doc.ID, doc.UserID, 0)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	return render(doc, all, MethodFullScan, budget), nil
}

func (r *Retriever) semantic(ctx context.Context, doc *models.Document, query string, log *zap.Logger) ([]models.ScoredChunk, bool) {
	if r.embedder == nil {
		return nil, false
	}

	vecs, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		log.Warn("query embedding failed", zap.Error(err))
		return nil, false
	}

	hits, err := r.chunks.SemanticSearch(ctx, doc.ID, doc.UserID, vecs[0], r.topK)
	if err != nil {
		log.Warn("semantic search failed", zap.Error(err))
		return nil, false
	}
	return hits, len(hits) > 0
}

func unwrapScored(hits []models.ScoredChunk) []models.DocumentChunk {
	out := make([]models.DocumentChunk, len(hits))
	for i, h := range hits {
		out[i] = h.DocumentChunk
	}
	return out
}

// render joins chunks until the next one would exceed budget characters.
// Presentation chunks with a slide number are prefixed "[Slide N]: ".
func render(doc *models.Document, chunks []models.DocumentChunk, method string, budget int) *Result {
	slides := doc.FileType == models.FileTypePPTX

	var (
		b    strings.Builder
		size int
		used []models.DocumentChunk
	)
	for _, c := range chunks {
		piece := c.Content
		if slides && c.PageNumber != nil {
			piece = fmt.Sprintf("[Slide %d]: %s", *c.PageNumber, c.Content)
		}

		add := utf8.RuneCountInString(piece)
		if b.Len() > 0 {
			add += len(chunkSeparator)
		}
		if size+add > budget {
			break
		}

		if b.Len() > 0 {
			b.WriteString(chunkSeparator)
		}
		b.WriteString(piece)
		size += add
		used = append(used, c)
	}

	return &Result{Context: b.String(), Method: method, Chunks: used}
}

package core

import (
	"context"
	"io"
	"time"

	"github.com/markdave123-py/documind/internal/models"
)

// DocumentStore persists document rows. Every call is scoped by owner.
// Getters return (nil, nil) when no row matches.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id, userID string) (*models.Document, error)
	ListDocuments(ctx context.Context, userID string) ([]models.Document, error)
	DocumentNameExists(ctx context.Context, userID, fileName string) (bool, error)
	UpdateDocumentStatus(ctx context.Context, id, userID, status string, message *string) error
	SetPageCount(ctx context.Context, id, userID string, pageCount int) error
	SetSummary(ctx context.Context, id, userID, summary string) error
	RenameDocument(ctx context.Context, id, userID, fileName string) error
	SetArchived(ctx context.Context, id, userID string, archived bool) error
	SetStarred(ctx context.Context, id, userID string, starred bool) error
	SetProject(ctx context.Context, id, userID string, projectID *string) error
	TouchLastOpened(ctx context.Context, id, userID string, at time.Time) error
	DeleteDocument(ctx context.Context, id, userID string) error
	DeleteAllDocuments(ctx context.Context, userID string) error
	StorageUsed(ctx context.Context, userID string) (int64, error)
	DocumentNames(ctx context.Context, userID string, ids []string) (map[string]string, error)
}

// ChunkStore persists document chunks.
type ChunkStore interface {
	// UpsertChunks is idempotent per (document_id, chunk_index).
	UpsertChunks(ctx context.Context, chunks []models.DocumentChunk) error
	ListChunks(ctx context.Context, documentID, userID string, limit int) ([]models.DocumentChunk, error)
	CountChunks(ctx context.Context, documentID, userID string) (int, error)
	HybridSearch(ctx context.Context, query, documentID, userID string, topK int, keywordWeight, fuzzyWeight float64) ([]models.ScoredChunk, error)
	SemanticSearch(ctx context.Context, documentID, userID string, queryVec []float32, limit int) ([]models.ScoredChunk, error)
	SetChunkEmbeddings(ctx context.Context, documentID, userID string, vectors map[int][]float32) error
}

// ChatStore persists chat messages.
type ChatStore interface {
	InsertChatMessages(ctx context.Context, msgs []models.ChatMessage) error
	RecentUserMessageExists(ctx context.Context, documentID, userID, content string, since time.Time) (bool, error)
	ListChatMessages(ctx context.Context, documentID, userID string) ([]models.ChatMessage, error)
	ListUserChatMessages(ctx context.Context, userID string) ([]models.ChatMessage, error)
	DeleteChatMessages(ctx context.Context, documentID, userID string) error
}

// ProjectStore persists projects.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *models.Project) error
	ListProjects(ctx context.Context, userID string) ([]models.Project, error)
	ProjectExists(ctx context.Context, id, userID string) (bool, error)
	DeleteProject(ctx context.Context, id, userID string) error
	DeleteAllProjects(ctx context.Context, userID string) error
}

// RunStore persists ingestion checkpoints.
type RunStore interface {
	SaveIngestionRun(ctx context.Context, run *models.IngestionRun) error
	GetIngestionRun(ctx context.Context, documentID string) (*models.IngestionRun, error)
	ListUnfinishedRuns(ctx context.Context) ([]models.IngestionRun, error)
}

// DbClient defines all persistence operations the services need.
// It abstracts Postgres so higher layers never depend on a specific DB.
type DbClient interface {
	DocumentStore
	ChunkStore
	ChatStore
	ProjectStore
	RunStore
	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error)
	GetFile(ctx context.Context, key string) ([]byte, error)
	DeleteFiles(ctx context.Context, keys ...string) error
}

// EventPublisher emits the event that schedules ingestion of an upload.
type EventPublisher interface {
	PublishUpload(ctx context.Context, evt models.UploadEvent) error
}

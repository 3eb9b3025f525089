package models

import (
	"time"
)

// Document lifecycle states.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Supported document formats.
const (
	FileTypePDF  = "pdf"
	FileTypeDOCX = "docx"
	FileTypePPTX = "pptx"
)

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Document represents a user-uploaded file and its ingestion state.
type Document struct {
	ID            string     `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	FileName      string     `db:"file_name" json:"file_name"`
	FilePath      string     `db:"file_path" json:"file_path"` // blob store key
	FileSize      int64      `db:"file_size" json:"file_size"`
	FileType      string     `db:"file_type" json:"file_type"` // pdf | docx | pptx
	MimeType      string     `db:"mime_type" json:"mime_type"`
	Status        string     `db:"status" json:"status"`
	StatusMessage *string    `db:"status_message" json:"status_message"`
	PageCount     *int       `db:"page_count" json:"page_count"`
	Summary       *string    `db:"summary" json:"summary"`
	IsArchived    bool       `db:"is_archived" json:"is_archived"`
	IsStarred     bool       `db:"is_starred" json:"is_starred"`
	ProjectID     *string    `db:"project_id" json:"project_id"`
	LastOpenedAt  *time.Time `db:"last_opened_at" json:"last_opened_at"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// DocumentChunk represents one text chunk from a document.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Content    string    `db:"content" json:"content"`
	PageNumber *int      `db:"page_number" json:"page_number"` // slide number for presentations
	Embedding  []float32 `db:"embedding" json:"-"`             // pgvector column, optional
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ScoredChunk is a chunk returned by a ranked search.
type ScoredChunk struct {
	DocumentChunk
	Score float64 `db:"score" json:"score"`
}

// ChatMessage represents an individual chat message (user or assistant).
type ChatMessage struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Role       string    `db:"role" json:"role"`       // "user" or "assistant"
	Content    string    `db:"content" json:"content"` // message text
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ChatHistoryGroup is every message a user exchanged about one document.
type ChatHistoryGroup struct {
	DocumentID    string        `json:"document_id"`
	DocumentName  string        `json:"document_name"`
	Messages      []ChatMessage `json:"messages"`
	LastMessageAt time.Time     `json:"last_message_at"`
}

// Project groups documents for a user.
type Project struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	DocCount  int       `db:"doc_count" json:"doc_count"`
}

// StorageUsage reports the bytes a user has uploaded against their quota.
type StorageUsage struct {
	UsedBytes  int64 `json:"used_bytes"`
	TotalBytes int64 `json:"total_bytes"`
}

// UploadEvent is published when an upload is accepted and triggers ingestion.
type UploadEvent struct {
	DocID    string `json:"docId"`
	UserID   string `json:"userId"`
	FilePath string `json:"filePath"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

// CanTransition reports whether a document may move from one status to another.
// Status only moves forward: queued -> processing -> completed | failed.
// A failure may be recorded directly from queued when the first step cannot run.
// Repeating processing or completed is allowed so a replayed run converges.
func CanTransition(from, to string) bool {
	switch from {
	case StatusQueued:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusProcessing || to == StatusCompleted || to == StatusFailed
	case StatusCompleted:
		return to == StatusCompleted
	default:
		return false
	}
}

// FormatLabel is the human name of a file type used in user-facing messages.
func FormatLabel(fileType string) string {
	switch fileType {
	case FileTypePDF:
		return "PDF"
	case FileTypeDOCX:
		return "Word document"
	case FileTypePPTX:
		return "PowerPoint presentation"
	default:
		return "document"
	}
}

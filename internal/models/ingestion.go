package models

import "time"

// Ingestion run states.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// IngestionRun is the persisted checkpoint of one document's pipeline.
type IngestionRun struct {
	DocumentID     string         `db:"document_id" json:"document_id"`
	UserID         string         `db:"user_id" json:"user_id"`
	State          string         `db:"state" json:"state"`
	CompletedSteps []string       `db:"completed_steps" json:"completed_steps"`
	Attempts       int            `db:"attempts" json:"attempts"`
	LastError      *string        `db:"last_error" json:"last_error"`
	Event          UploadEvent    `db:"event" json:"event"`
	Payload        *IngestPayload `db:"payload" json:"payload"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// IngestPayload carries step output needed by later steps.
type IngestPayload struct {
	PageCount int           `json:"page_count"`
	Chunks    []ChunkRecord `json:"chunks"`
}

// ChunkRecord is a chunk produced by extraction, before it is stored.
type ChunkRecord struct {
	Content    string `json:"content"`
	PageNumber *int   `json:"page_number,omitempty"`
}

// HasCompleted reports whether the named step already ran to completion.
func (r *IngestionRun) HasCompleted(step string) bool {
	for _, s := range r.CompletedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// MarkCompleted records a finished step once.
func (r *IngestionRun) MarkCompleted(step string) {
	if !r.HasCompleted(step) {
		r.CompletedSteps = append(r.CompletedSteps, step)
	}
}

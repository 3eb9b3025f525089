package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/markdave123-py/documind/internal/models"
)

// SaveIngestionRun upserts the checkpoint for a document.
func (c *DatabaseClient) SaveIngestionRun(ctx context.Context, run *models.IngestionRun) error {
	if run == nil {
		return errors.New("nil ingestion run")
	}
	steps, err := json.Marshal(nonNil(run.CompletedSteps))
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	event, err := json.Marshal(run.Event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	var payload []byte
	if run.Payload != nil {
		if payload, err = json.Marshal(run.Payload); err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}

	const q = `
		INSERT INTO ingestion_runs
			(document_id, user_id, state, completed_steps, attempts, last_error, event, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (document_id) DO UPDATE SET
			state = EXCLUDED.state,
			completed_steps = EXCLUDED.completed_steps,
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			payload = EXCLUDED.payload,
			updated_at = now()
		RETURNING created_at, updated_at
	`
	return c.db.QueryRowContext(ctx, q,
		run.DocumentID, run.UserID, run.State, steps, run.Attempts, run.LastError, event, payload,
	).Scan(&run.CreatedAt, &run.UpdatedAt)
}

func (c *DatabaseClient) GetIngestionRun(ctx context.Context, documentID string) (*models.IngestionRun, error) {
	const q = `
		SELECT document_id, user_id, state, completed_steps, attempts, last_error, event, payload, created_at, updated_at
		FROM ingestion_runs WHERE document_id = $1
	`
	run, err := scanRun(c.db.QueryRowContext(ctx, q, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListUnfinishedRuns returns runs a previous process left pending or running.
func (c *DatabaseClient) ListUnfinishedRuns(ctx context.Context) ([]models.IngestionRun, error) {
	const q = `
		SELECT document_id, user_id, state, completed_steps, attempts, last_error, event, payload, created_at, updated_at
		FROM ingestion_runs
		WHERE state IN ('pending', 'running')
		ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.IngestionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func scanRun(row rowScanner) (*models.IngestionRun, error) {
	var (
		run                   models.IngestionRun
		steps, event, payload []byte
	)
	if err := row.Scan(
		&run.DocumentID, &run.UserID, &run.State, &steps, &run.Attempts, &run.LastError,
		&event, &payload, &run.CreatedAt, &run.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(steps, &run.CompletedSteps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	if err := json.Unmarshal(event, &run.Event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if len(payload) > 0 {
		run.Payload = &models.IngestPayload{}
		if err := json.Unmarshal(payload, run.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	return &run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/documind/internal/models"
)

// InsertChatMessages writes a turn atomically so a user message is never
// stored without its reply.
func (c *DatabaseClient) InsertChatMessages(ctx context.Context, msgs []models.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO chat_messages (id, document_id, user_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`
	for i := range msgs {
		m := &msgs[i]
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		var createdAt *time.Time
		if !m.CreatedAt.IsZero() {
			createdAt = &m.CreatedAt
		}
		if _, err := tx.ExecContext(ctx, q, m.ID, m.DocumentID, m.UserID, m.Role, m.Content, createdAt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) RecentUserMessageExists(ctx context.Context, documentID, userID, content string, since time.Time) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM chat_messages
			WHERE document_id = $1 AND user_id = $2 AND role = 'user'
			  AND content = $3 AND created_at >= $4
		)
	`
	var exists bool
	err := c.db.QueryRowContext(ctx, q, documentID, userID, content, since).Scan(&exists)
	return exists, err
}

func (c *DatabaseClient) ListChatMessages(ctx context.Context, documentID, userID string) ([]models.ChatMessage, error) {
	const q = `
		SELECT id, document_id, user_id, role, content, created_at
		FROM chat_messages
		WHERE document_id = $1 AND user_id = $2
		ORDER BY created_at ASC, CASE role WHEN 'user' THEN 0 ELSE 1 END
	`
	return c.queryMessages(ctx, q, documentID, userID)
}

func (c *DatabaseClient) ListUserChatMessages(ctx context.Context, userID string) ([]models.ChatMessage, error) {
	const q = `
		SELECT id, document_id, user_id, role, content, created_at
		FROM chat_messages
		WHERE user_id = $1
		ORDER BY created_at ASC, CASE role WHEN 'user' THEN 0 ELSE 1 END
	`
	return c.queryMessages(ctx, q, userID)
}

func (c *DatabaseClient) DeleteChatMessages(ctx context.Context, documentID, userID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE document_id = $1 AND user_id = $2`, documentID, userID)
	return err
}

func (c *DatabaseClient) queryMessages(ctx context.Context, q string, args ...any) ([]models.ChatMessage, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

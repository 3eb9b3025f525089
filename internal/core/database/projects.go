package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/markdave123-py/documind/internal/models"
)

func (c *DatabaseClient) CreateProject(ctx context.Context, p *models.Project) error {
	if p == nil {
		return errors.New("nil project")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO projects (id, user_id, name)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	return c.db.QueryRowContext(ctx, q, p.ID, p.UserID, p.Name).Scan(&p.CreatedAt)
}

func (c *DatabaseClient) ListProjects(ctx context.Context, userID string) ([]models.Project, error) {
	const q = `
		SELECT p.id, p.user_id, p.name, p.created_at, count(d.id)
		FROM projects p
		LEFT JOIN documents d ON d.project_id = p.id AND d.user_id = p.user_id
		WHERE p.user_id = $1
		GROUP BY p.id
		ORDER BY p.created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt, &p.DocCount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) ProjectExists(ctx context.Context, id, userID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1 AND user_id = $2)`
	var exists bool
	err := c.db.QueryRowContext(ctx, q, id, userID).Scan(&exists)
	return exists, err
}

// DeleteProject detaches the project's documents and removes it in one transaction.
func (c *DatabaseClient) DeleteProject(ctx context.Context, id, userID string) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET project_id = NULL, updated_at = now() WHERE project_id = $1 AND user_id = $2`,
		id, userID,
	); err != nil {
		_ = tx.Rollback()
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := expectRow(res, "Project not found."); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (c *DatabaseClient) DeleteAllProjects(ctx context.Context, userID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM projects WHERE user_id = $1`, userID)
	return err
}

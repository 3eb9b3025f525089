package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/documind/internal/config"
	"github.com/markdave123-py/documind/internal/core"
	"github.com/markdave123-py/documind/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxOpenConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureMigrated(ctx, dsn); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// buildDSN appends CA verification params when a root cert is configured.
func buildDSN(cfg *config.Config) (string, error) {
	if cfg.DatabaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL is empty")
	}
	if cfg.SslCertPath == "" {
		return cfg.DatabaseURL, nil
	}
	if _, err := os.Stat(cfg.SslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
	}
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", cfg.SslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

const documentColumns = `
	id, user_id, file_name, file_path, file_size, file_type, mime_type, status, status_message,
	page_count, summary, is_archived, is_starred, project_id, last_opened_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID, &d.UserID, &d.FileName, &d.FilePath, &d.FileSize, &d.FileType, &d.MimeType, &d.Status,
		&d.StatusMessage, &d.PageCount, &d.Summary, &d.IsArchived, &d.IsStarred, &d.ProjectID,
		&d.LastOpenedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, user_id, file_name, file_path, file_size, file_type, mime_type, status, project_id, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING created_at, updated_at
	`
	now := doc.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return c.db.QueryRowContext(ctx, q,
		doc.ID, doc.UserID, doc.FileName, doc.FilePath, doc.FileSize, doc.FileType, doc.MimeType,
		doc.Status, doc.ProjectID, now,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
}

func (c *DatabaseClient) GetDocument(ctx context.Context, id, userID string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND user_id = $2`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (c *DatabaseClient) ListDocuments(ctx context.Context, userID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DocumentNameExists(ctx context.Context, userID, fileName string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM documents WHERE user_id = $1 AND file_name = $2)`
	var exists bool
	err := c.db.QueryRowContext(ctx, q, userID, fileName).Scan(&exists)
	return exists, err
}

// UpdateDocumentStatus only applies forward transitions; a row whose current
// status cannot move to the requested one is left untouched and reported.
func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id, userID, status string, message *string) error {
	var from []string
	for _, s := range []string{models.StatusQueued, models.StatusProcessing, models.StatusCompleted, models.StatusFailed} {
		if models.CanTransition(s, status) {
			from = append(from, s)
		}
	}
	if len(from) == 0 {
		return fmt.Errorf("no status can move to %q", status)
	}

	const q = `
		UPDATE documents
		SET status = $3, status_message = $4, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND status = ANY($5)
	`
	res, err := c.db.ExecContext(ctx, q, id, userID, status, message, from)
	if err != nil {
		return err
	}
	return expectRow(res, fmt.Sprintf("document %s cannot move to %s", id, status))
}

func (c *DatabaseClient) SetPageCount(ctx context.Context, id, userID string, pageCount int) error {
	return c.execDocument(ctx, `UPDATE documents SET page_count = $3, updated_at = now() WHERE id = $1 AND user_id = $2`, id, userID, pageCount)
}

func (c *DatabaseClient) SetSummary(ctx context.Context, id, userID, summary string) error {
	return c.execDocument(ctx, `UPDATE documents SET summary = $3, updated_at = now() WHERE id = $1 AND user_id = $2`, id, userID, summary)
}

func (c *DatabaseClient) RenameDocument(ctx context.Context, id, userID, fileName string) error {
	return c.execDocument(ctx, `UPDATE documents SET file_name = $3, updated_at = now() WHERE id = $1 AND user_id = $2`, id, userID, fileName)
}

func (c *DatabaseClient) SetArchived(ctx context.Context, id, userID string, archived bool) error {
	return c.execDocument(ctx, `UPDATE documents SET is_archived = $3, updated_at = now() WHERE id = $1 AND user_id = $2`, id, userID, archived)
}

func (c *DatabaseClient) SetStarred(ctx context.Context, id, userID string, starred bool) error {
	return c.execDocument(ctx, `UPDATE documents SET is_starred = $3, updated_at = now() WHERE id = $1 AND user_id = $2`, id, userID, starred)
}

func (c *DatabaseClient) SetProject(ctx context.Context, id, userID string, projectID *string) error {
	return c.execDocument(ctx, `UPDATE documents SET project_id = $3, updated_at = now() WHERE id = $1 AND user_id = $2`, id, userID, projectID)
}

func (c *DatabaseClient) TouchLastOpened(ctx context.Context, id, userID string, at time.Time) error {
	return c.execDocument(ctx, `UPDATE documents SET last_opened_at = $3 WHERE id = $1 AND user_id = $2`, id, userID, at)
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id, userID string) error {
	return c.execDocument(ctx, `DELETE FROM documents WHERE id = $1 AND user_id = $2`, id, userID)
}

func (c *DatabaseClient) DeleteAllDocuments(ctx context.Context, userID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE user_id = $1`, userID)
	return err
}

func (c *DatabaseClient) StorageUsed(ctx context.Context, userID string) (int64, error) {
	var used int64
	err := c.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(file_size), 0) FROM documents WHERE user_id = $1`, userID).Scan(&used)
	return used, err
}

func (c *DatabaseClient) DocumentNames(ctx context.Context, userID string, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := c.db.QueryContext(ctx, `SELECT id, file_name FROM documents WHERE user_id = $1 AND id::text = ANY($2)`, userID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

func (c *DatabaseClient) execDocument(ctx context.Context, q, id, userID string, args ...any) error {
	res, err := c.db.ExecContext(ctx, q, append([]any{id, userID}, args...)...)
	if err != nil {
		return err
	}
	return expectRow(res, "Document not found or access denied.")
}

func expectRow(res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.NotFound(notFound)
	}
	return nil
}

package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/documind/internal/models"
)

// UpsertChunks writes one batch in a single transaction. Re-running a batch
// after a partial failure rewrites the same (document_id, chunk_index) rows.
func (c *DatabaseClient) UpsertChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, user_id, chunk_index, content, page_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (document_id, chunk_index)
		DO UPDATE SET content = EXCLUDED.content, page_number = EXCLUDED.page_number
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.UserID, ch.ChunkIndex, ch.Content, ch.PageNumber,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("chunk %d: %w", ch.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

// ListChunks returns chunks in chunk_index order. limit <= 0 returns all.
func (c *DatabaseClient) ListChunks(ctx context.Context, documentID, userID string, limit int) ([]models.DocumentChunk, error) {
	q := `
		SELECT id, document_id, user_id, chunk_index, content, page_number, created_at
		FROM document_chunks
		WHERE document_id = $1 AND user_id = $2
		ORDER BY chunk_index ASC
	`
	args := []any{documentID, userID}
	if limit > 0 {
		q += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.UserID, &ch.ChunkIndex, &ch.Content, &ch.PageNumber, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountChunks(ctx context.Context, documentID, userID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT count(*) FROM document_chunks WHERE document_id = $1 AND user_id = $2`,
		documentID, userID,
	).Scan(&n)
	return n, err
}

// HybridSearch calls the hybrid_search_chunks SQL function.
func (c *DatabaseClient) HybridSearch(ctx context.Context, query, documentID, userID string, topK int, keywordWeight, fuzzyWeight float64) ([]models.ScoredChunk, error) {
	const q = `
		SELECT id, chunk_index, content, page_number, score
		FROM hybrid_search_chunks($1, $2, $3, $4, $5, $6)
	`
	rows, err := c.db.QueryContext(ctx, q, query, documentID, userID, topK, keywordWeight, fuzzyWeight)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		sc := models.ScoredChunk{DocumentChunk: models.DocumentChunk{DocumentID: documentID, UserID: userID}}
		if err := rows.Scan(&sc.ID, &sc.ChunkIndex, &sc.Content, &sc.PageNumber, &sc.Score); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// SemanticSearch finds the chunks closest to a query embedding by cosine distance.
func (c *DatabaseClient) SemanticSearch(ctx context.Context, documentID, userID string, queryVec []float32, limit int) ([]models.ScoredChunk, error) {
	const q = `
		SELECT id, chunk_index, content, page_number, 1 - (embedding <=> $3) AS score
		FROM document_chunks
		WHERE document_id = $1 AND user_id = $2 AND embedding IS NOT NULL
		ORDER BY embedding <=> $3
		LIMIT $4
	`
	rows, err := c.db.QueryContext(ctx, q, documentID, userID, pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		sc := models.ScoredChunk{DocumentChunk: models.DocumentChunk{DocumentID: documentID, UserID: userID}}
		if err := rows.Scan(&sc.ID, &sc.ChunkIndex, &sc.Content, &sc.PageNumber, &sc.Score); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// SetChunkEmbeddings stores vectors keyed by chunk_index.
func (c *DatabaseClient) SetChunkEmbeddings(ctx context.Context, documentID, userID string, vectors map[int][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		UPDATE document_chunks SET embedding = $4
		WHERE document_id = $1 AND user_id = $2 AND chunk_index = $3
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for idx, vec := range vectors {
		if _, err := stmt.ExecContext(ctx, documentID, userID, idx, pgvector.NewVector(vec)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MunnymanCommunications/gemdesign/internal/models"
)

// DocumentsRepository reads the documents table for usage display and
// report listings. Document creation belongs to the generation pipeline;
// this service never writes here.
type DocumentsRepository struct {
	pool *pgxpool.Pool
}

func NewDocumentsRepository(pool *pgxpool.Pool) *DocumentsRepository {
	return &DocumentsRepository{pool: pool}
}

// CountByUser returns how many documents a user has generated.
func (r *DocumentsRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM entitlement.documents WHERE user_id = $1`
	var count int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// ListByUserAndKind returns a user's documents of one kind, newest first.
func (r *DocumentsRepository) ListByUserAndKind(ctx context.Context, userID, kind string, limit int) ([]*models.Document, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, user_id, kind, title, storage_path, created_at
		FROM entitlement.documents
		WHERE user_id = $1 AND kind = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, userID, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		d := &models.Document{}
		if err := rows.Scan(&d.ID, &d.UserID, &d.Kind, &d.Title, &d.StoragePath, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

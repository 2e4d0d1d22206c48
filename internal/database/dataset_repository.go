package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
)

// ErrDatasetNotFound is returned when no archived dataset has the requested id
var ErrDatasetNotFound = errors.New("dataset not found")

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

const datasetSchema = `
	CREATE TABLE IF NOT EXISTS datasets (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		headers JSONB NOT NULL,
		rows JSONB NOT NULL,
		row_count INTEGER NOT NULL,
		imported_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)
`

// DatasetRepository archives imported datasets in PostgreSQL
type DatasetRepository struct {
	pool DatabasePool
}

// NewDatasetRepository creates a new dataset repository
func NewDatasetRepository(pool DatabasePool) *DatasetRepository {
	return &DatasetRepository{pool: pool}
}

// EnsureSchema creates the datasets table when it does not exist
func (r *DatasetRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, datasetSchema); err != nil {
		return fmt.Errorf("failed to create datasets table: %w", err)
	}
	return nil
}

// Save inserts ds or replaces the stored copy with the same id
func (r *DatasetRepository) Save(ctx context.Context, ds *models.Dataset) error {
	if ds == nil {
		return errors.New("dataset is required")
	}
	headers, err := json.Marshal(ds.Headers)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}
	rows, err := json.Marshal(ds.Rows)
	if err != nil {
		return fmt.Errorf("failed to encode rows: %w", err)
	}

	query := `
		INSERT INTO datasets (id, name, headers, rows, row_count, imported_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			headers = EXCLUDED.headers,
			rows = EXCLUDED.rows,
			row_count = EXCLUDED.row_count,
			imported_at = EXCLUDED.imported_at
	`
	if _, err := r.pool.Exec(ctx, query, ds.ID, ds.Name, headers, rows, ds.Len(), ds.ImportedAt); err != nil {
		return fmt.Errorf("failed to save dataset: %w", err)
	}
	return nil
}

// Get loads the full dataset with the given id
func (r *DatasetRepository) Get(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	query := `
		SELECT id, name, headers, rows, imported_at
		FROM datasets
		WHERE id = $1
	`

	var (
		ds              models.Dataset
		headers, rawRow []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(&ds.ID, &ds.Name, &headers, &rawRow, &ds.ImportedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDatasetNotFound
		}
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	if err := json.Unmarshal(headers, &ds.Headers); err != nil {
		return nil, fmt.Errorf("failed to decode headers: %w", err)
	}
	if err := json.Unmarshal(rawRow, &ds.Rows); err != nil {
		return nil, fmt.Errorf("failed to decode rows: %w", err)
	}
	return &ds, nil
}

// List returns the archived datasets without their rows, newest first
func (r *DatasetRepository) List(ctx context.Context, limit int) ([]models.DatasetSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, name, headers, row_count, imported_at
		FROM datasets
		ORDER BY imported_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	summaries := make([]models.DatasetSummary, 0)
	for rows.Next() {
		var (
			s       models.DatasetSummary
			headers []byte
		)
		if err := rows.Scan(&s.ID, &s.Name, &headers, &s.RowCount, &s.ImportedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		if err := json.Unmarshal(headers, &s.Headers); err != nil {
			return nil, fmt.Errorf("failed to decode headers: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating datasets: %w", err)
	}
	return summaries, nil
}

// Delete removes the dataset with the given id
func (r *DatasetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM datasets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDatasetNotFound
	}
	return nil
}

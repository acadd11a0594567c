// Package repository provides persistence implementations for the document
// server using a PostgreSQL database.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/budgetvault/BudgetVault/internal/models"
)

// ErrNotFound reports that no document exists for a budget identity.
var ErrNotFound = errors.New("document not found")

// PostgresDocumentRepository stores one encrypted document per budget
// identity. The snapshot column holds the full JSON document; the store
// never inspects the ciphertext inside it.
type PostgresDocumentRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresDocumentRepository creates a repository using the provided *sql.DB.
// db must be a valid connection to a PostgreSQL instance.
func NewPostgresDocumentRepository(db *sql.DB) *PostgresDocumentRepository {
	return &PostgresDocumentRepository{DB: db}
}

// GetDocument fetches the document for the given budget identity.
//
//	ctx:      context for cancellation and deadlines
//	budgetID: budget identity the document is keyed by
//
// Returns ErrNotFound when the budget has never been written.
func (r *PostgresDocumentRepository) GetDocument(ctx context.Context, budgetID string) (*models.RemoteDocument, error) {
	var snapshot []byte
	err := r.DB.QueryRowContext(ctx, `
		SELECT snapshot FROM budgets WHERE budget_id = $1
	`, budgetID).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetDocument failed: %w", err)
	}

	var doc models.RemoteDocument
	if err := json.Unmarshal(snapshot, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &doc, nil
}

// UpsertDocument writes the document for the budget identity, replacing any
// previous row. Version, timestamp and the cleared flag are denormalized
// into their own columns so the pruner and diagnostics can query them
// without decoding snapshots.
func (r *PostgresDocumentRepository) UpsertDocument(ctx context.Context, budgetID string, doc *models.RemoteDocument) error {
	snapshot, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO budgets (budget_id, snapshot, version, last_updated, cleared)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (budget_id) DO UPDATE SET
			snapshot = EXCLUDED.snapshot,
			version = EXCLUDED.version,
			last_updated = EXCLUDED.last_updated,
			cleared = EXCLUDED.cleared
	`, budgetID, snapshot, doc.Version, doc.LastUpdated, doc.Cleared)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// DeleteClearedBefore removes cleared reset markers older than the cutoff
// (unix milliseconds). Returns the number of rows removed.
func (r *PostgresDocumentRepository) DeleteClearedBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM budgets WHERE cleared = true AND last_updated < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete cleared documents: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return rows, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/budgetvault/BudgetVault/internal/models"
)

// PostgresPresenceRepository tracks which authors have written to a budget
// and when, backing the active-users view.
type PostgresPresenceRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresPresenceRepository creates a repository using the provided *sql.DB.
func NewPostgresPresenceRepository(db *sql.DB) *PostgresPresenceRepository {
	return &PostgresPresenceRepository{DB: db}
}

// TouchAuthor records that the author just wrote to the budget, updating the
// last-seen timestamp (unix milliseconds) on repeat writes.
func (r *PostgresPresenceRepository) TouchAuthor(ctx context.Context, budgetID string, author models.Author, seenAt int64) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO budget_authors (budget_id, author_id, user_name, user_color, device_fingerprint, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (budget_id, author_id) DO UPDATE SET
			user_name = EXCLUDED.user_name,
			user_color = EXCLUDED.user_color,
			device_fingerprint = EXCLUDED.device_fingerprint,
			last_seen = EXCLUDED.last_seen
	`, budgetID, author.ID, author.UserName, author.UserColor, author.DeviceFingerprint, seenAt)
	if err != nil {
		return fmt.Errorf("touch author: %w", err)
	}
	return nil
}

// ActiveAuthors lists authors seen on the budget since the given timestamp
// (unix milliseconds), most recent first.
func (r *PostgresPresenceRepository) ActiveAuthors(ctx context.Context, budgetID string, since int64) ([]models.Author, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT author_id, user_name, user_color, device_fingerprint, last_seen
		FROM budget_authors
		WHERE budget_id = $1 AND last_seen >= $2
		ORDER BY last_seen DESC
	`, budgetID, since)
	if err != nil {
		return nil, fmt.Errorf("ActiveAuthors: %w", err)
	}
	defer rows.Close()

	var authors []models.Author
	for rows.Next() {
		var a models.Author
		var lastSeen int64
		if err := rows.Scan(&a.ID, &a.UserName, &a.UserColor, &a.DeviceFingerprint, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		a.LastSeen = millisToRFC3339(lastSeen)
		authors = append(authors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return authors, nil
}

func millisToRFC3339(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

// Package remote defines the contract with the remote document store and
// provides the HTTP/WebSocket adapter the sync engine talks through. The
// store holds exactly one document per budget identity and assigns
// monotonic timestamps on write.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/budgetvault/BudgetVault/internal/models"
)

// ErrNotFound reports that the remote document has never been created.
// This is not a failure: it signals "this device is first to write".
var ErrNotFound = errors.New("remote document not found")

// StatusError is a non-2xx response from the document store.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("store %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("store %d: %s", e.StatusCode, e.Message)
}

// Store is the remote document store as the engine sees it: keyed get,
// whole-document set with optional merge, and a change-notification feed.
type Store interface {
	// Get fetches the document for a budget identity. Returns ErrNotFound
	// when the document has never been written.
	Get(ctx context.Context, budgetID string) (*models.RemoteDocument, error)
	// Set writes the document. With merge true the store preserves fields
	// absent from doc instead of blindly replacing them.
	Set(ctx context.Context, budgetID string, doc *models.RemoteDocument, merge bool) error
	// Watch opens a live feed of document updates. The channel closes when
	// ctx is cancelled or the feed fails.
	Watch(ctx context.Context, budgetID string) (<-chan models.RemoteDocument, error)
}

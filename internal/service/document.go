// Package service provides business logic for the document server: document
// storage with server-assigned monotonic timestamps, live-update fan-out and
// author presence, delegating persistence to repository interfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/budgetvault/BudgetVault/internal/models"
	"github.com/budgetvault/BudgetVault/internal/repository"
)

// wireActivityCap bounds the activity slice stored on the document. Clients
// merge these slices into their own larger local feeds.
const wireActivityCap = 10

// DocumentRepository defines the persistence operations needed by the DocumentService.
type DocumentRepository interface {
	// GetDocument fetches the document for a budget identity, returning an
	// error satisfying errors.Is(err, repository.ErrNotFound) when absent.
	GetDocument(ctx context.Context, budgetID string) (*models.RemoteDocument, error)
	// UpsertDocument writes the document, replacing any previous row.
	UpsertDocument(ctx context.Context, budgetID string, doc *models.RemoteDocument) error
}

// Broadcaster pushes a stored document to every live watcher of the budget.
type Broadcaster interface {
	Broadcast(budgetID string, doc models.RemoteDocument)
}

// DocumentService implements the write path of the sync protocol. Every
// accepted write gets a server-assigned timestamp strictly greater than the
// previous document's, so clients can rely on LastUpdated ordering even when
// device clocks disagree.
type DocumentService struct {
	repo DocumentRepository
	hub  Broadcaster

	nowMillis func() int64
}

// NewDocumentService constructs a DocumentService. hub may be nil when no
// live feed is wired (tests, batch tools).
func NewDocumentService(repo DocumentRepository, hub Broadcaster) *DocumentService {
	return &DocumentService{
		repo:      repo,
		hub:       hub,
		nowMillis: func() int64 { return time.Now().UnixMilli() },
	}
}

// Get returns the stored document for the budget identity.
func (s *DocumentService) Get(ctx context.Context, budgetID string) (*models.RemoteDocument, error) {
	return s.repo.GetDocument(ctx, budgetID)
}

// Save stores the incoming document and returns the stored version. With
// merge set, fields absent from the incoming document are preserved from the
// stored one instead of being dropped, and the activity slices are unioned.
// The server owns LastUpdated and Version unconditionally.
func (s *DocumentService) Save(ctx context.Context, budgetID string, incoming *models.RemoteDocument, merge bool) (*models.RemoteDocument, error) {
	prev, err := s.repo.GetDocument(ctx, budgetID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load previous document: %w", err)
	}

	doc := *incoming
	if merge && prev != nil && !prev.Cleared {
		if doc.EncryptedPayload == nil {
			doc.EncryptedPayload = prev.EncryptedPayload
		}
		if doc.Author == nil {
			doc.Author = prev.Author
		}
		doc.Activity = unionActivity(doc.Activity, prev.Activity)
	} else if len(doc.Activity) > wireActivityCap {
		doc.Activity = doc.Activity[:wireActivityCap]
	}

	doc.LastUpdated = s.nowMillis()
	doc.Version = 1
	if prev != nil {
		if doc.LastUpdated <= prev.LastUpdated {
			doc.LastUpdated = prev.LastUpdated + 1
		}
		doc.Version = prev.Version + 1
	}

	if err := s.repo.UpsertDocument(ctx, budgetID, &doc); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	if s.hub != nil {
		s.hub.Broadcast(budgetID, doc)
	}
	return &doc, nil
}

// Clear overwrites the document with a cleared marker. Watchers receive the
// marker and know the history was wiped on purpose rather than corrupted.
func (s *DocumentService) Clear(ctx context.Context, budgetID, reason string, author *models.Author) (*models.RemoteDocument, error) {
	marker := &models.RemoteDocument{
		Cleared:       true,
		ClearedAt:     time.UnixMilli(s.nowMillis()).UTC().Format(time.RFC3339Nano),
		ClearedReason: reason,
		Author:        author,
	}
	return s.Save(ctx, budgetID, marker, false)
}

// unionActivity merges the incoming and stored activity slices, incoming
// first, deduplicated by record ID and capped for the wire.
func unionActivity(incoming, stored []models.ActivityRecord) []models.ActivityRecord {
	seen := make(map[string]struct{}, len(incoming)+len(stored))
	out := make([]models.ActivityRecord, 0, wireActivityCap)
	for _, batch := range [][]models.ActivityRecord{incoming, stored} {
		for _, rec := range batch {
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			seen[rec.ID] = struct{}{}
			out = append(out, rec)
			if len(out) == wireActivityCap {
				return out
			}
		}
	}
	return out
}

package service

import (
	"context"
	"time"

	"github.com/budgetvault/BudgetVault/internal/models"
)

// defaultPresenceWindow is how recently an author must have written to count
// as active.
const defaultPresenceWindow = time.Hour

// PresenceRepository defines the persistence operations needed by the PresenceService.
type PresenceRepository interface {
	// TouchAuthor records a write by the author at seenAt (unix milliseconds).
	TouchAuthor(ctx context.Context, budgetID string, author models.Author, seenAt int64) error
	// ActiveAuthors lists authors seen since the given timestamp, most recent first.
	ActiveAuthors(ctx context.Context, budgetID string, since int64) ([]models.Author, error)
}

// PresenceService tracks which household members are actively writing to a
// budget. It exists for the "who else is editing" view, not access control.
type PresenceService struct {
	repo   PresenceRepository
	window time.Duration

	nowMillis func() int64
}

// NewPresenceService constructs a PresenceService. A non-positive window
// falls back to the default.
func NewPresenceService(repo PresenceRepository, window time.Duration) *PresenceService {
	if window <= 0 {
		window = defaultPresenceWindow
	}
	return &PresenceService{
		repo:      repo,
		window:    window,
		nowMillis: func() int64 { return time.Now().UnixMilli() },
	}
}

// RecordWrite notes that the author just wrote. A nil author (anonymous
// tooling) is ignored.
func (s *PresenceService) RecordWrite(ctx context.Context, budgetID string, author *models.Author) error {
	if author == nil || author.ID == "" {
		return nil
	}
	return s.repo.TouchAuthor(ctx, budgetID, *author, s.nowMillis())
}

// Active lists the authors seen inside the presence window.
func (s *PresenceService) Active(ctx context.Context, budgetID string) ([]models.Author, error) {
	since := s.nowMillis() - s.window.Milliseconds()
	return s.repo.ActiveAuthors(ctx, budgetID, since)
}

package engine

import (
	"context"
	"fmt"

	"github.com/budgetvault/BudgetVault/internal/models"
)

// Decision is the user's answer to a sync conflict. Resolution is binary by
// design: whole-snapshot keep-local or adopt-remote, never a field-level
// merge of two encrypted blobs.
type Decision int

const (
	// KeepLocal pushes the local snapshot, overwriting the remote one.
	KeepLocal Decision = iota
	// AdoptRemote replaces the local snapshot with the remote one.
	AdoptRemote
)

// Conflict describes a remote write that landed past the caller's baseline
// timestamp. RemoteAuthor tells the user who to talk to before deciding.
type Conflict struct {
	LocalTimestamp int64
	RemoteUpdated  int64
	RemoteAuthor   *models.Author
}

// Resolve applies the user's decision. KeepLocal saves local to the remote
// store and returns it; AdoptRemote loads the remote snapshot and returns
// that (nil when the remote document vanished in the meantime, in which case
// local simply wins by default on the next save).
func (e *SyncEngine) Resolve(ctx context.Context, d Decision, local models.BudgetData) (*models.BudgetData, error) {
	switch d {
	case KeepLocal:
		if err := e.Save(ctx, local); err != nil {
			return nil, fmt.Errorf("resolve keep-local: %w", err)
		}
		return &local, nil
	case AdoptRemote:
		data, _, err := e.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve adopt-remote: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown conflict decision %d", d)
	}
}

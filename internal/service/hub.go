package service

import (
	"sync"

	"github.com/budgetvault/BudgetVault/internal/models"
)

// watcherBuffer is the per-subscriber channel depth. A watcher that falls
// this far behind starts losing intermediate updates, which is acceptable:
// only the latest document matters.
const watcherBuffer = 8

// WatcherHub fans stored documents out to live watch subscribers, keyed by
// budget identity. Safe for concurrent use.
type WatcherHub struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan models.RemoteDocument
	nextID int
}

// NewWatcherHub returns an empty hub.
func NewWatcherHub() *WatcherHub {
	return &WatcherHub{subs: make(map[string]map[int]chan models.RemoteDocument)}
}

// Subscribe registers a watcher for the budget and returns its update
// channel plus a cancel function. The channel closes on cancel.
func (h *WatcherHub) Subscribe(budgetID string) (<-chan models.RemoteDocument, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan models.RemoteDocument, watcherBuffer)
	if h.subs[budgetID] == nil {
		h.subs[budgetID] = make(map[int]chan models.RemoteDocument)
	}
	h.subs[budgetID][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[budgetID][id]; ok {
			delete(h.subs[budgetID], id)
			if len(h.subs[budgetID]) == 0 {
				delete(h.subs, budgetID)
			}
			close(sub)
		}
	}
	return ch, cancel
}

// Broadcast delivers doc to every watcher of the budget without blocking:
// a full watcher channel drops the update rather than stalling the writer.
func (h *WatcherHub) Broadcast(budgetID string, doc models.RemoteDocument) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[budgetID] {
		select {
		case ch <- doc:
		default:
		}
	}
}

// Watchers reports the number of live subscribers for the budget.
func (h *WatcherHub) Watchers(budgetID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[budgetID])
}

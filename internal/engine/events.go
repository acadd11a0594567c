package engine

import (
	"go.uber.org/zap"

	"github.com/budgetvault/BudgetVault/internal/models"
)

// Event kinds emitted by the engine. UI layers subscribe to these instead of
// polling engine state.
const (
	EventSyncStart      = "sync_start"
	EventSyncSuccess    = "sync_success"
	EventSyncError      = "sync_error"
	EventRealtimeUpdate = "realtime_update"
	EventNetworkBlocked = "network_blocked"
)

// Operations a lifecycle event can belong to, so listeners can tell a failed
// save from a failed load or queue drain.
const (
	OpSave  = "save"
	OpLoad  = "load"
	OpDrain = "drain"
)

// Event is one engine notification. Operation is set on the sync lifecycle
// kinds; Data and Doc only on realtime_update; Err only on the failure kinds.
type Event struct {
	Kind      string
	Operation string
	Err       error
	Data      *models.BudgetData
	Doc       *models.RemoteDocument
}

// Listener receives engine events. Listeners are invoked synchronously in
// registration order; a panicking listener is isolated and logged, it never
// takes the engine down.
type Listener func(Event)

type listenerEntry struct {
	id int
	fn Listener
}

// AddListener registers fn and returns its unsubscribe function. Calling the
// unsubscribe function more than once is harmless.
func (e *SyncEngine) AddListener(fn Listener) (unsubscribe func()) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.nextListenerID++
	id := e.nextListenerID
	e.listeners = append(e.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		e.listenersMu.Lock()
		defer e.listenersMu.Unlock()
		for i, entry := range e.listeners {
			if entry.id == id {
				e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

func (e *SyncEngine) emit(ev Event) {
	e.listenersMu.Lock()
	entries := append([]listenerEntry(nil), e.listeners...)
	e.listenersMu.Unlock()

	for _, entry := range entries {
		e.invoke(entry.fn, ev)
	}
}

func (e *SyncEngine) invoke(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event listener panicked",
				zap.Any("panic", r),
				zap.String("event", ev.Kind))
		}
	}()
	fn(ev)
}

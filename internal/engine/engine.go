// Package engine implements the multi-device sync engine: a small state
// machine that encrypts budget snapshots, pushes them to the remote
// document store with bounded retries, queues writes while offline, applies
// realtime updates monotonically and surfaces conflicts for a binary
// keep-local / adopt-remote decision.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/budgetvault/BudgetVault/internal/activity"
	"github.com/budgetvault/BudgetVault/internal/crypto"
	"github.com/budgetvault/BudgetVault/internal/models"
	"github.com/budgetvault/BudgetVault/internal/queue"
	"github.com/budgetvault/BudgetVault/internal/remote"
)

// Engine lifecycle states.
const (
	StateUninitialized = "uninitialized"
	StateIdle          = "idle"
	StateSyncing       = "syncing"
	StateOffline       = "offline"
)

var (
	// ErrNotInitialized is returned by operations invoked before Start.
	ErrNotInitialized = errors.New("sync engine not initialized")
	// ErrBlocked wraps a write failure classified as a client-side network
	// block. The operation was queued, not retried.
	ErrBlocked = errors.New("network blocked")
	// ErrRetriesExhausted wraps a transient write failure that survived the
	// full backoff schedule.
	ErrRetriesExhausted = errors.New("sync retries exhausted")
)

const (
	defaultRetryDelay    = time.Second
	defaultMaxRetries    = 3
	defaultDebounceDelay = time.Second
)

// Session is the identity a device syncs under. The key encrypts every
// payload; the budget ID routes all devices sharing a secret to the same
// remote document.
type Session struct {
	Key      []byte
	BudgetID string
	Author   models.Author
}

// SyncEngine coordinates saves, loads, the offline queue and the realtime
// feed for one session. All exported methods are safe for concurrent use.
type SyncEngine struct {
	store  remote.Store
	logger *zap.Logger

	queue    *queue.OfflineQueue
	activity *activity.Log

	stateMu           sync.Mutex
	state             string
	online            bool
	key               []byte
	budgetID          string
	author            models.Author
	lastSyncTimestamp int64
	activeUsers       map[string]models.Author
	watchCancel       context.CancelFunc

	// opMu serializes save, load, drain and reset so the remote document is
	// mutated by one in-flight operation at a time.
	opMu sync.Mutex

	listenersMu    sync.Mutex
	listeners      []listenerEntry
	nextListenerID int

	debounceMu    sync.Mutex
	debounce      *time.Timer
	debounceDelay time.Duration

	retryDelay       time.Duration
	maxRetryAttempts int
	isBlocked        func(error) bool
	wait             func(ctx context.Context, d time.Duration) error
	nowMillis        func() int64
}

// New builds an engine over the given store. Call Start before any sync
// operation.
func New(store remote.Store, logger *zap.Logger) *SyncEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncEngine{
		store:            store,
		logger:           logger,
		queue:            queue.New(),
		activity:         activity.NewLog(),
		state:            StateUninitialized,
		activeUsers:      make(map[string]models.Author),
		debounceDelay:    defaultDebounceDelay,
		retryDelay:       defaultRetryDelay,
		maxRetryAttempts: defaultMaxRetries,
		isBlocked:        IsNetworkBlockingError,
		wait:             waitWithContext,
		nowMillis:        func() int64 { return time.Now().UnixMilli() },
	}
}

// Start binds the engine to a session, moves it to idle and opens the
// realtime feed. A failed feed dial degrades the session to poll-only
// rather than failing Start.
func (e *SyncEngine) Start(ctx context.Context, s Session) error {
	if len(s.Key) == 0 {
		return fmt.Errorf("start session: missing encryption key")
	}
	if s.BudgetID == "" {
		return fmt.Errorf("start session: missing budget id")
	}

	e.stateMu.Lock()
	if e.state != StateUninitialized {
		e.stateMu.Unlock()
		return fmt.Errorf("start session: engine already started")
	}
	e.key = s.Key
	e.budgetID = s.BudgetID
	e.author = s.Author
	e.state = StateIdle
	e.online = true
	wctx, cancel := context.WithCancel(context.Background())
	e.watchCancel = cancel
	e.stateMu.Unlock()

	updates, err := e.store.Watch(wctx, s.BudgetID)
	if err != nil {
		e.logger.Warn("realtime feed unavailable, continuing without it",
			zap.String("budgetID", s.BudgetID), zap.Error(err))
		return nil
	}
	go func() {
		for doc := range updates {
			e.handleRemoteUpdate(doc)
		}
	}()
	e.logger.Info("sync session started",
		zap.String("budgetID", s.BudgetID), zap.String("user", s.Author.UserName))
	return nil
}

// Stop tears the session down: the realtime feed is cancelled, any pending
// auto-sync is dropped and all session state is cleared. The engine returns
// to uninitialized and can be started again.
func (e *SyncEngine) Stop() {
	e.debounceMu.Lock()
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	e.debounceMu.Unlock()

	e.stateMu.Lock()
	if e.watchCancel != nil {
		e.watchCancel()
		e.watchCancel = nil
	}
	e.state = StateUninitialized
	e.online = false
	e.key = nil
	e.budgetID = ""
	e.author = models.Author{}
	e.lastSyncTimestamp = 0
	e.activeUsers = make(map[string]models.Author)
	e.stateMu.Unlock()

	e.queue.Clear()
	e.activity.Clear()
}

// Save encrypts data and pushes it to the remote document. While offline the
// operation is queued and Save returns nil; the queue drains on the next
// offline-to-online transition. Online failures are retried with exponential
// backoff unless classified as a network block.
func (e *SyncEngine) Save(ctx context.Context, data models.BudgetData) error {
	e.stateMu.Lock()
	if e.state == StateUninitialized {
		e.stateMu.Unlock()
		return ErrNotInitialized
	}
	online := e.online
	author := e.author
	e.stateMu.Unlock()

	if !online {
		e.enqueueSave(data, author)
		return nil
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.setState(StateSyncing)
	e.emit(Event{Kind: EventSyncStart, Operation: OpSave})

	err := e.saveWithRetry(ctx, data, author)
	switch {
	case err == nil:
		e.stateMu.Lock()
		e.lastSyncTimestamp = e.nowMillis()
		e.state = StateIdle
		e.stateMu.Unlock()
		e.recordActivity(models.ActivityDataSave, map[string]any{
			"envelopes":    len(data.Envelopes),
			"transactions": len(data.Transactions),
		})
		e.emit(Event{Kind: EventSyncSuccess, Operation: OpSave})
		return nil

	case errors.Is(err, ErrBlocked):
		e.stateMu.Lock()
		e.online = false
		e.state = StateOffline
		e.stateMu.Unlock()
		e.enqueueSave(data, author)
		e.emit(Event{Kind: EventNetworkBlocked, Operation: OpSave, Err: err})
		return err

	default:
		e.setState(StateIdle)
		e.emit(Event{Kind: EventSyncError, Operation: OpSave, Err: err})
		return err
	}
}

// saveWithRetry attempts the remote write, backing off retryDelay*2^attempt
// between transient failures. A blocked error aborts immediately.
func (e *SyncEngine) saveWithRetry(ctx context.Context, data models.BudgetData, author models.Author) error {
	for attempt := 0; ; attempt++ {
		err := e.writeDocument(ctx, data, author)
		if err == nil {
			return nil
		}
		if e.isBlocked(err) {
			return fmt.Errorf("%w: %v", ErrBlocked, err)
		}
		if attempt >= e.maxRetryAttempts {
			return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempt+1, err)
		}
		delay := e.retryDelay * (1 << attempt)
		e.logger.Warn("save failed, backing off",
			zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))
		if werr := e.wait(ctx, delay); werr != nil {
			return werr
		}
	}
}

// writeDocument encrypts at the moment of transmission so queued operations
// always go out under the session's current key.
func (e *SyncEngine) writeDocument(ctx context.Context, data models.BudgetData, author models.Author) error {
	e.stateMu.Lock()
	key := e.key
	budgetID := e.budgetID
	e.stateMu.Unlock()

	env, err := crypto.Encrypt(key, data)
	if err != nil {
		return err
	}
	author.LastSeen = time.Now().UTC().Format(time.RFC3339Nano)
	doc := &models.RemoteDocument{
		EncryptedPayload: env,
		LastUpdated:      e.nowMillis(),
		Author:           &author,
		Activity:         e.activity.TrimForUpload(),
	}
	return e.store.Set(ctx, budgetID, doc, true)
}

func (e *SyncEngine) enqueueSave(data models.BudgetData, author models.Author) {
	op := queue.Operation{
		ID:         uuid.NewString(),
		Kind:       queue.KindSave,
		Payload:    data,
		Author:     author,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if e.queue.Enqueue(op) {
		e.logger.Warn("offline queue full, oldest operation evicted",
			zap.Int("capacity", queue.DefaultCapacity))
	}
	e.logger.Info("save queued for later sync",
		zap.String("op", op.ID), zap.Int("queued", e.queue.Size()))
}

// Load fetches and decrypts the remote document. A missing or cleared
// document returns (nil, nil, nil): the caller is the first writer. A
// decryption failure is returned as-is (errors.Is crypto.ErrDecryption) and
// leaves the sync cursor untouched; it is never retried.
func (e *SyncEngine) Load(ctx context.Context) (*models.BudgetData, *models.RemoteDocument, error) {
	e.stateMu.Lock()
	if e.state == StateUninitialized {
		e.stateMu.Unlock()
		return nil, nil, ErrNotInitialized
	}
	key := e.key
	budgetID := e.budgetID
	e.stateMu.Unlock()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.setState(StateSyncing)
	e.emit(Event{Kind: EventSyncStart, Operation: OpLoad})

	data, doc, err := e.loadDocument(ctx, key, budgetID)
	e.setState(StateIdle)
	if err != nil {
		e.emit(Event{Kind: EventSyncError, Operation: OpLoad, Err: err})
		return nil, nil, err
	}
	e.emit(Event{Kind: EventSyncSuccess, Operation: OpLoad})
	return data, doc, nil
}

func (e *SyncEngine) loadDocument(ctx context.Context, key []byte, budgetID string) (*models.BudgetData, *models.RemoteDocument, error) {
	doc, err := e.store.Get(ctx, budgetID)
	if errors.Is(err, remote.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load remote document: %w", err)
	}
	if doc.Cleared {
		e.logger.Info("remote document was reset, starting fresh",
			zap.String("reason", doc.ClearedReason))
		return nil, nil, nil
	}
	if doc.EncryptedPayload == nil {
		return nil, doc, nil
	}

	var data models.BudgetData
	if err := crypto.Decrypt(key, doc.EncryptedPayload, &data); err != nil {
		return nil, nil, err
	}

	e.activity.Merge(doc.Activity)
	e.stateMu.Lock()
	e.lastSyncTimestamp = doc.LastUpdated
	if doc.Author != nil {
		e.activeUsers[doc.Author.ID] = *doc.Author
	}
	e.stateMu.Unlock()
	return &data, doc, nil
}

// SetOnline flips connectivity. The offline queue drains synchronously on
// the offline-to-online edge and only on that edge; repeated SetOnline(true)
// calls while already online do nothing.
func (e *SyncEngine) SetOnline(ctx context.Context, online bool) {
	e.stateMu.Lock()
	if e.state == StateUninitialized || e.online == online {
		e.stateMu.Unlock()
		return
	}
	e.online = online
	if online {
		e.state = StateIdle
	} else {
		e.state = StateOffline
	}
	e.stateMu.Unlock()

	if online {
		e.drainQueue(ctx)
	}
}

func (e *SyncEngine) drainQueue(ctx context.Context) {
	if e.queue.Size() == 0 {
		return
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.setState(StateSyncing)
	e.emit(Event{Kind: EventSyncStart, Operation: OpDrain})

	results := e.queue.Drain(ctx, func(ctx context.Context, op queue.Operation) error {
		return e.writeDocument(ctx, op.Payload, op.Author)
	})

	var firstErr error
	blocked := false
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = r.Err
		}
		if e.isBlocked(r.Err) {
			blocked = true
		}
		if r.Permanent {
			e.logger.Error("queued save dropped after retries",
				zap.String("op", r.Op.ID), zap.Error(r.Err))
		}
	}

	switch {
	case blocked:
		e.stateMu.Lock()
		e.online = false
		e.state = StateOffline
		e.stateMu.Unlock()
		e.emit(Event{Kind: EventNetworkBlocked, Operation: OpDrain, Err: firstErr})
	case firstErr != nil:
		e.setState(StateIdle)
		e.emit(Event{Kind: EventSyncError, Operation: OpDrain, Err: firstErr})
	default:
		e.stateMu.Lock()
		e.lastSyncTimestamp = e.nowMillis()
		e.state = StateIdle
		e.stateMu.Unlock()
		e.emit(Event{Kind: EventSyncSuccess, Operation: OpDrain})
	}
}

// handleRemoteUpdate applies one realtime document. Updates are applied
// monotonically: anything at or below the last synced timestamp is dropped,
// so out-of-order feed deliveries cannot roll the session backwards.
func (e *SyncEngine) handleRemoteUpdate(doc models.RemoteDocument) {
	if doc.Cleared {
		e.logger.Info("ignoring cleared marker on realtime feed",
			zap.String("reason", doc.ClearedReason))
		return
	}
	e.stateMu.Lock()
	last := e.lastSyncTimestamp
	key := e.key
	e.stateMu.Unlock()

	if key == nil || doc.LastUpdated <= last || doc.EncryptedPayload == nil {
		return
	}

	var data models.BudgetData
	if err := crypto.Decrypt(key, doc.EncryptedPayload, &data); err != nil {
		// Foreign or corrupt payload. Do not advance the sync cursor.
		e.logger.Warn("cannot decrypt realtime update", zap.Error(err))
		return
	}

	e.stateMu.Lock()
	if doc.LastUpdated <= e.lastSyncTimestamp {
		e.stateMu.Unlock()
		return
	}
	e.lastSyncTimestamp = doc.LastUpdated
	if doc.Author != nil {
		e.activeUsers[doc.Author.ID] = *doc.Author
	}
	e.stateMu.Unlock()

	e.activity.Merge(doc.Activity)
	e.emit(Event{Kind: EventRealtimeUpdate, Data: &data, Doc: &doc})
}

// CheckConflict reports whether the remote document moved past the given
// baseline timestamp (unix milliseconds); callers normally pass
// LastSyncTime. Detection is coarse on purpose: any newer remote write
// counts, and resolution is a whole-snapshot decision.
func (e *SyncEngine) CheckConflict(ctx context.Context, localTimestamp int64) (*Conflict, error) {
	e.stateMu.Lock()
	if e.state == StateUninitialized {
		e.stateMu.Unlock()
		return nil, ErrNotInitialized
	}
	budgetID := e.budgetID
	e.stateMu.Unlock()

	doc, err := e.store.Get(ctx, budgetID)
	if errors.Is(err, remote.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check conflict: %w", err)
	}
	if doc.Cleared || doc.LastUpdated <= localTimestamp {
		return nil, nil
	}
	return &Conflict{
		LocalTimestamp: localTimestamp,
		RemoteUpdated:  doc.LastUpdated,
		RemoteAuthor:   doc.Author,
	}, nil
}

// ResetRemote replaces the remote document with a cleared marker. The marker
// tells every watching device the history was intentionally wiped, which
// keeps their realtime handlers from treating the wipe as budget data.
func (e *SyncEngine) ResetRemote(ctx context.Context, reason string) error {
	e.stateMu.Lock()
	if e.state == StateUninitialized {
		e.stateMu.Unlock()
		return ErrNotInitialized
	}
	budgetID := e.budgetID
	author := e.author
	e.stateMu.Unlock()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	marker := &models.RemoteDocument{
		Cleared:       true,
		ClearedAt:     time.Now().UTC().Format(time.RFC3339Nano),
		ClearedReason: reason,
		Author:        &author,
	}
	// Full overwrite: a merge would leave the old payload behind.
	if err := e.store.Set(ctx, budgetID, marker, false); err != nil {
		return fmt.Errorf("write cleared marker: %w", err)
	}

	e.queue.Clear()
	e.activity.Clear()
	e.stateMu.Lock()
	e.lastSyncTimestamp = 0
	e.stateMu.Unlock()
	e.recordActivity(models.ActivityResetRemote, map[string]any{"reason": reason})
	e.logger.Info("remote document reset", zap.String("reason", reason))
	return nil
}

// ScheduleAutoSync arms (or re-arms) the debounced auto-save. Rapid edits
// coalesce into a single Save that fires debounceDelay after the last call.
func (e *SyncEngine) ScheduleAutoSync(ctx context.Context, data models.BudgetData) {
	e.debounceMu.Lock()
	defer e.debounceMu.Unlock()
	if e.debounce != nil {
		e.debounce.Stop()
	}
	e.debounce = time.AfterFunc(e.debounceDelay, func() {
		if err := e.Save(ctx, data); err != nil {
			e.logger.Warn("auto-sync save failed", zap.Error(err))
		}
	})
}

// State returns the current lifecycle state.
func (e *SyncEngine) State() string {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

// Online reports current connectivity as the engine sees it.
func (e *SyncEngine) Online() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.online
}

// LastSyncTime returns the unix-millisecond timestamp of the last applied
// sync, zero before the first one.
func (e *SyncEngine) LastSyncTime() int64 {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.lastSyncTimestamp
}

// ActiveUsers lists the authors seen on remote writes this session.
func (e *SyncEngine) ActiveUsers() []models.Author {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	users := make([]models.Author, 0, len(e.activeUsers))
	for _, u := range e.activeUsers {
		users = append(users, u)
	}
	return users
}

// Activity exposes the session's merged activity feed.
func (e *SyncEngine) Activity() *activity.Log {
	return e.activity
}

// QueueSize reports the number of pending offline operations.
func (e *SyncEngine) QueueSize() int {
	return e.queue.Size()
}

func (e *SyncEngine) setState(s string) {
	e.stateMu.Lock()
	e.state = s
	e.stateMu.Unlock()
}

func (e *SyncEngine) recordActivity(kind string, details map[string]any) {
	e.stateMu.Lock()
	author := e.author
	e.stateMu.Unlock()
	e.activity.Append(models.ActivityRecord{
		ID:        uuid.NewString(),
		Type:      kind,
		UserName:  author.UserName,
		UserColor: author.UserColor,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Details:   details,
	})
}

func waitWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

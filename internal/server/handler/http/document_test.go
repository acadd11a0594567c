package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/budgetvault/BudgetVault/internal/models"
	"github.com/budgetvault/BudgetVault/internal/repository"
	"github.com/budgetvault/BudgetVault/internal/service"
)

// memoryDocumentRepo backs the handlers with a map instead of Postgres.
type memoryDocumentRepo struct {
	mu   sync.Mutex
	docs map[string]*models.RemoteDocument
}

func newMemoryDocumentRepo() *memoryDocumentRepo {
	return &memoryDocumentRepo{docs: make(map[string]*models.RemoteDocument)}
}

func (m *memoryDocumentRepo) GetDocument(_ context.Context, budgetID string) (*models.RemoteDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[budgetID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *memoryDocumentRepo) UpsertDocument(_ context.Context, budgetID string, doc *models.RemoteDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *doc
	m.docs[budgetID] = &cp
	return nil
}

type memoryPresenceRepo struct {
	mu      sync.Mutex
	touched []models.Author
}

func (m *memoryPresenceRepo) TouchAuthor(_ context.Context, _ string, author models.Author, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, author)
	return nil
}

func (m *memoryPresenceRepo) ActiveAuthors(context.Context, string, int64) ([]models.Author, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Author(nil), m.touched...), nil
}

func newTestRouter(t *testing.T) (http.Handler, *memoryDocumentRepo, *memoryPresenceRepo) {
	t.Helper()
	docRepo := newMemoryDocumentRepo()
	presRepo := &memoryPresenceRepo{}
	hub := service.NewWatcherHub()
	docs := service.NewDocumentService(docRepo, hub)
	presence := service.NewPresenceService(presRepo, time.Hour)
	logger := zap.NewNop()
	return NewRouter(
		NewDocumentHandler(docs, presence, hub, logger),
		NewPresenceHandler(presence, logger),
		logger,
	), docRepo, presRepo
}

func putDocument(t *testing.T, router http.Handler, budgetID string, doc models.RemoteDocument) models.RemoteDocument {
	t.Helper()
	body, err := json.Marshal(doc)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, "/api/budgets/"+budgetID+"?merge=true", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var stored models.RemoteDocument
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stored))
	return stored
}

func TestGet_NotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/budgets/nobody", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	assert.Equal(t, "not_found", payload["code"])
}

func TestPutThenGet(t *testing.T) {
	router, _, presRepo := newTestRouter(t)

	stored := putDocument(t, router, "house", models.RemoteDocument{
		EncryptedPayload: &models.EncryptedEnvelope{Ciphertext: []byte{1}, IV: []byte{2}},
		Author:           &models.Author{ID: "u1", UserName: "pat"},
	})
	assert.Equal(t, int64(1), stored.Version)
	assert.NotZero(t, stored.LastUpdated)

	req := httptest.NewRequest(http.MethodGet, "/api/budgets/house", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var got models.RemoteDocument
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, stored.LastUpdated, got.LastUpdated)
	assert.Equal(t, "pat", got.Author.UserName)

	presRepo.mu.Lock()
	defer presRepo.mu.Unlock()
	require.Len(t, presRepo.touched, 1, "a write touches presence")
}

func TestPut_MergePreservesPayload(t *testing.T) {
	router, _, _ := newTestRouter(t)

	first := putDocument(t, router, "house", models.RemoteDocument{
		EncryptedPayload: &models.EncryptedEnvelope{Ciphertext: []byte{1}, IV: []byte{2}},
	})
	second := putDocument(t, router, "house", models.RemoteDocument{
		Activity: []models.ActivityRecord{{ID: "a1", Type: models.ActivityDataSave}},
	})

	assert.Equal(t, first.EncryptedPayload, second.EncryptedPayload)
	assert.Greater(t, second.LastUpdated, first.LastUpdated)
	assert.Equal(t, int64(2), second.Version)
}

func TestPut_MalformedBody(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPut, "/api/budgets/house", bytes.NewReader([]byte("{broken")))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPut_RejectsNonJSONContentType(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPut, "/api/budgets/house", bytes.NewReader([]byte("x")))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
}

func TestClear(t *testing.T) {
	router, docRepo, _ := newTestRouter(t)
	putDocument(t, router, "house", models.RemoteDocument{
		EncryptedPayload: &models.EncryptedEnvelope{Ciphertext: []byte{1}, IV: []byte{2}},
	})

	body, _ := json.Marshal(clearRequest{Reason: "fresh start", Author: &models.Author{ID: "u1"}})
	req := httptest.NewRequest(http.MethodPost, "/api/budgets/house/clear", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var marker models.RemoteDocument
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &marker))
	assert.True(t, marker.Cleared)
	assert.Equal(t, "fresh start", marker.ClearedReason)

	stored, err := docRepo.GetDocument(context.Background(), "house")
	require.NoError(t, err)
	assert.Nil(t, stored.EncryptedPayload)
}

func TestPresence(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/budgets/house/presence", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String(), "no writers yet")

	putDocument(t, router, "house", models.RemoteDocument{
		EncryptedPayload: &models.EncryptedEnvelope{Ciphertext: []byte{1}, IV: []byte{2}},
		Author:           &models.Author{ID: "u1", UserName: "pat"},
	})

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/budgets/house/presence", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var authors []models.Author
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &authors))
	require.Len(t, authors, 1)
	assert.Equal(t, "pat", authors[0].UserName)
}

func TestWatch_SnapshotThenLiveUpdates(t *testing.T) {
	router, _, _ := newTestRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	putDocument(t, router, "house", models.RemoteDocument{
		EncryptedPayload: &models.EncryptedEnvelope{Ciphertext: []byte{1}, IV: []byte{2}},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, srv.URL+"/api/budgets/house/watch", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var snapshot models.RemoteDocument
	require.NoError(t, wsjson.Read(ctx, conn, &snapshot))
	assert.Equal(t, int64(1), snapshot.Version, "current document arrives first")

	second := putDocument(t, router, "house", models.RemoteDocument{
		EncryptedPayload: &models.EncryptedEnvelope{Ciphertext: []byte{3}, IV: []byte{4}},
	})

	var update models.RemoteDocument
	require.NoError(t, wsjson.Read(ctx, conn, &update))
	assert.Equal(t, second.LastUpdated, update.LastUpdated)
	assert.Equal(t, int64(2), update.Version)
}

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/budgetvault/BudgetVault/internal/models"
)

func TestGet_ReturnsDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/budgets/b1", r.URL.Path)
		json.NewEncoder(w).Encode(models.RemoteDocument{LastUpdated: 42, Version: 3})
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, zap.NewNop())
	doc, err := store.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), doc.LastUpdated)
	assert.Equal(t, int64(3), doc.Version)
}

func TestGet_MissingDocumentIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, zap.NewNop())
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_ServerErrorCarriesStatusAndCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"code": "unavailable", "message": "backend down"})
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, zap.NewNop())
	_, err := store.Get(context.Background(), "b1")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "unavailable", se.Code)
	assert.Equal(t, "backend down", se.Message)
}

func TestSet_SendsDocumentWithMergeFlag(t *testing.T) {
	var gotMerge string
	var gotDoc models.RemoteDocument
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotMerge = r.URL.Query().Get("merge")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotDoc))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, zap.NewNop())
	err := store.Set(context.Background(), "b1", &models.RemoteDocument{LastUpdated: 7}, true)
	require.NoError(t, err)
	assert.Equal(t, "true", gotMerge)
	assert.Equal(t, int64(7), gotDoc.LastUpdated)
}

func TestSet_RejectionIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, zap.NewNop())
	err := store.Set(context.Background(), "b1", &models.RemoteDocument{}, false)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
}

// Package cache persists the client's encrypted snapshot and key-derivation
// salt between runs, so a device can come up offline and re-derive its key
// without talking to the server.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/budgetvault/BudgetVault/internal/models"
)

// Entry is what survives a restart. The snapshot stays encrypted at rest;
// only the salt is stored in the clear, which is safe since PBKDF2 salts are
// not secrets.
type Entry struct {
	Salt              []byte                    `json:"salt"`
	EncryptedSnapshot *models.EncryptedEnvelope `json:"encryptedSnapshot,omitempty"`
	LastSyncTime      int64                     `json:"lastSyncTime"`
}

// File is a JSON-backed cache at a fixed path.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a cache stored at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Load reads the cache. A missing file yields an empty entry, not an error:
// first run on a device is the normal case.
func (f *File) Load() (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return &Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("parse cache: %w", err)
	}
	return &e, nil
}

// Save writes the entry atomically: a temp file in the same directory is
// renamed over the target so a crash mid-write never leaves a torn cache.
func (f *File) Save(e *Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cache-*")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}

// Clear removes the cache file. Missing is fine.
func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

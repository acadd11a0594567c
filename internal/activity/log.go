// Package activity keeps the bounded, deduplicated, time-ordered record of
// what changed, who changed it and when. It backs the team-activity feed
// and conflict surfacing.
package activity

import (
	"sort"
	"sync"
	"time"

	"github.com/budgetvault/BudgetVault/internal/models"
)

const (
	// MaxRecords bounds the merged log.
	MaxRecords = 50
	// UploadRecords is how many records ride along on a remote write.
	UploadRecords = 10
)

// Log is the per-session activity feed, newest first. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	records []models.ActivityRecord
	max     int
}

// NewLog returns an empty log bounded at MaxRecords.
func NewLog() *Log {
	return &Log{max: MaxRecords}
}

// Append inserts a locally produced record at the head and trims to the cap.
func (l *Log) Append(rec models.ActivityRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append([]models.ActivityRecord{rec}, l.records...)
	if len(l.records) > l.max {
		l.records = l.records[:l.max]
	}
}

// Merge folds a remote batch into the log: records whose ID is already
// present are dropped, the genuinely new ones are concatenated ahead of the
// current set, and the union is re-sorted descending by timestamp and
// trimmed. Merging the same batch twice is a no-op. Ties in timestamp keep
// the concatenation order (new batch first), not any ordering by ID.
func (l *Log) Merge(remote []models.ActivityRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := make(map[string]struct{}, len(l.records))
	for _, r := range l.records {
		existing[r.ID] = struct{}{}
	}

	var fresh []models.ActivityRecord
	for _, r := range remote {
		if _, dup := existing[r.ID]; dup {
			continue
		}
		existing[r.ID] = struct{}{}
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		return
	}

	merged := append(fresh, l.records...)
	sort.SliceStable(merged, func(i, j int) bool {
		return parseStamp(merged[i].Timestamp).After(parseStamp(merged[j].Timestamp))
	})
	if len(merged) > l.max {
		merged = merged[:l.max]
	}
	l.records = merged
}

// Recent returns a copy of the log, newest first.
func (l *Log) Recent() []models.ActivityRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.ActivityRecord(nil), l.records...)
}

// TrimForUpload returns the newest records that accompany a remote write,
// at most UploadRecords of them.
func (l *Log) TrimForUpload() []models.ActivityRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.records)
	if n > UploadRecords {
		n = UploadRecords
	}
	return append([]models.ActivityRecord(nil), l.records[:n]...)
}

// Len reports the current number of records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Clear empties the log. Used by the remote reset flow.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
}

func parseStamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

package activity

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/budgetvault/BudgetVault/internal/models"
)

func rec(id string, ts time.Time) models.ActivityRecord {
	return models.ActivityRecord{
		ID:        id,
		Type:      models.ActivityDataSave,
		UserName:  "pat",
		Timestamp: ts.Format(time.RFC3339Nano),
	}
}

func TestAppend_NewestFirstAndBounded(t *testing.T) {
	l := NewLog()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < MaxRecords+10; i++ {
		l.Append(rec(fmt.Sprintf("a%d", i), base.Add(time.Duration(i)*time.Second)))
	}

	got := l.Recent()
	require.Len(t, got, MaxRecords)
	assert.Equal(t, fmt.Sprintf("a%d", MaxRecords+9), got[0].ID, "newest record leads")
}

func TestMerge_DedupesAndSortsDescending(t *testing.T) {
	l := NewLog()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	l.Append(rec("local-1", base.Add(2*time.Second)))
	l.Append(rec("local-2", base.Add(5*time.Second)))

	l.Merge([]models.ActivityRecord{
		rec("remote-1", base.Add(4*time.Second)),
		rec("local-1", base.Add(2*time.Second)), // duplicate id, dropped
		rec("remote-2", base.Add(7*time.Second)),
	})

	got := l.Recent()
	require.Len(t, got, 4)
	assert.Equal(t, []string{"remote-2", "local-2", "remote-1", "local-1"},
		[]string{got[0].ID, got[1].ID, got[2].ID, got[3].ID})
}

func TestMerge_Idempotent(t *testing.T) {
	l := NewLog()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	batch := []models.ActivityRecord{
		rec("r1", base.Add(time.Second)),
		rec("r2", base.Add(3*time.Second)),
	}

	l.Merge(batch)
	once := l.Recent()
	l.Merge(batch)
	twice := l.Recent()

	assert.Equal(t, once, twice, "merging the same batch twice must change nothing")
}

func TestMerge_TimestampTieKeepsMergeOrder(t *testing.T) {
	l := NewLog()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	l.Append(rec("local", ts))
	l.Merge([]models.ActivityRecord{rec("remote", ts)})

	got := l.Recent()
	require.Len(t, got, 2)
	// The incoming batch is concatenated ahead of the existing set and the
	// sort is stable, so on equal timestamps the remote record leads.
	assert.Equal(t, "remote", got[0].ID)
	assert.Equal(t, "local", got[1].ID)
}

func TestMerge_TruncatesToCap(t *testing.T) {
	l := NewLog()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	var batch []models.ActivityRecord
	for i := 0; i < MaxRecords+20; i++ {
		batch = append(batch, rec(fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Minute)))
	}
	l.Merge(batch)

	got := l.Recent()
	require.Len(t, got, MaxRecords)
	assert.Equal(t, fmt.Sprintf("r%d", MaxRecords+19), got[0].ID)
}

func TestTrimForUpload(t *testing.T) {
	l := NewLog()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		l.Append(rec(fmt.Sprintf("a%d", i), base.Add(time.Duration(i)*time.Second)))
	}

	up := l.TrimForUpload()
	require.Len(t, up, UploadRecords)
	assert.Equal(t, "a29", up[0].ID)
}

func TestClear(t *testing.T) {
	l := NewLog()
	l.Append(rec("a", time.Now()))
	l.Clear()
	assert.Zero(t, l.Len())
}

package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := OpenArchive(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestRecordAndReadCycles(t *testing.T) {
	a := openTestArchive(t)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	require.NoError(t, a.RecordCycle(CycleRecord{
		CycleCount: 1, Action: "post", Reason: "low tier weighted choice",
		TargetID: "post-1", Karma: 100, Delta: 5, RecordedAt: now,
	}))
	require.NoError(t, a.RecordCycle(CycleRecord{
		CycleCount: 2, Action: "skip", Reason: "rate limited", Failed: false, RecordedAt: now.Add(10 * time.Minute),
	}))
	require.NoError(t, a.RecordCycle(CycleRecord{
		CycleCount: 3, Action: "comment", Reason: "create failed", Failed: true, RecordedAt: now.Add(20 * time.Minute),
	}))

	recs, err := a.RecentCycles(2)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Newest first.
	assert.Equal(t, 3, recs[0].CycleCount)
	assert.True(t, recs[0].Failed)
	assert.Equal(t, 2, recs[1].CycleCount)
	assert.False(t, recs[1].Failed)
}

func TestRecentCyclesDefaultLimit(t *testing.T) {
	a := openTestArchive(t)
	now := time.Now()

	for i := 1; i <= 25; i++ {
		require.NoError(t, a.RecordCycle(CycleRecord{CycleCount: i, Action: "skip", RecordedAt: now}))
	}

	recs, err := a.RecentCycles(0)
	require.NoError(t, err)
	assert.Len(t, recs, 20)
}

func TestRecordTrendsBatch(t *testing.T) {
	a := openTestArchive(t)
	now := time.Now()

	require.NoError(t, a.RecordTrends([]TrendRecord{
		{Keyword: "benchmarks", MentionCount: 5, Momentum: 100, OpportunityScore: 85, RecordedAt: now},
		{Keyword: "alignment", MentionCount: 3, Momentum: 50, OpportunityScore: 45, RecordedAt: now},
	}))
	require.NoError(t, a.RecordTrends(nil), "empty batch is a no-op")
}

func TestNilArchiveIsNoOp(t *testing.T) {
	var a *Archive
	assert.NoError(t, a.RecordCycle(CycleRecord{}))
	assert.NoError(t, a.RecordTrends([]TrendRecord{{Keyword: "x"}}))
	assert.NoError(t, a.Close())

	recs, err := a.RecentCycles(5)
	assert.NoError(t, err)
	assert.Nil(t, recs)
}

package intel

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestOrchestrator(t *testing.T, m *fakeMetrics, tr *fakeTrends, c *fakeCompetitors, o *fakeOpportunities) (*Orchestrator, *Cache) {
	t.Helper()
	cache, err := NewCache(nil, 60*time.Second, 5*time.Minute)
	require.NoError(t, err)
	if m == nil {
		m = &fakeMetrics{}
	}
	if tr == nil {
		tr = &fakeTrends{}
	}
	if c == nil {
		c = &fakeCompetitors{}
	}
	if o == nil {
		o = &fakeOpportunities{}
	}
	return NewOrchestrator(cache, nil, m, tr, c, o, 5*time.Minute, 2*time.Minute), cache
}

func TestRefreshBuildsSnapshot(t *testing.T) {
	metrics := &fakeMetrics{out: PlatformMetrics{PostsSampled: 50, ActiveAgents: 12}}
	trends := &fakeTrends{out: []TrendingTopic{{Keyword: "benchmarks", MentionCount: 7}}}
	competitors := &fakeCompetitors{out: []CompetitorProfile{{Username: "rival_bot", Karma: 5000}}}
	opps := &fakeOpportunities{out: []EngagementOpportunity{{TargetID: "p1", Score: 90}}}

	orch, cache := newTestOrchestrator(t, metrics, trends, competitors, opps)
	orch.SetClock(func() time.Time { return testNow })

	snap, err := orch.GetSnapshot(context.Background(), false)
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, 50, snap.PlatformMetrics.PostsSampled)
	assert.Equal(t, "benchmarks", snap.TrendingTopics[0].Keyword)
	assert.Equal(t, "rival_bot", snap.TopAgents[0].Username)
	assert.Equal(t, "p1", snap.Opportunities[0].TargetID)
	assert.Equal(t, testNow, snap.GeneratedAt)
	assert.Equal(t, testNow.Add(5*time.Minute), snap.NextRefreshAt)

	// History was appended as part of the refresh.
	assert.Len(t, cache.MetricsHistory(), 1)
	assert.Len(t, cache.CompetitorHistory("rival_bot"), 1)
}

func TestGetSnapshotServesCacheWithoutCollecting(t *testing.T) {
	metrics := &fakeMetrics{}
	orch, _ := newTestOrchestrator(t, metrics, nil, nil, nil)

	_, err := orch.GetSnapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.callCount())

	// Fresh cache: no second collection.
	_, err = orch.GetSnapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.callCount())

	// Force bypasses the cache.
	_, err = orch.GetSnapshot(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.callCount())
}

func TestCollectorFailureYieldsPartialSnapshot(t *testing.T) {
	metrics := &fakeMetrics{out: PlatformMetrics{PostsSampled: 50}}
	competitors := &fakeCompetitors{err: fmt.Errorf("profile service down")}

	orch, _ := newTestOrchestrator(t, metrics, nil, competitors, nil)

	snap, err := orch.GetSnapshot(context.Background(), false)
	require.NoError(t, err, "one failed collector is not fatal")
	require.NotNil(t, snap)
	assert.Equal(t, 50, snap.PlatformMetrics.PostsSampled)
	assert.Empty(t, snap.TopAgents, "failed collector contributes its zero value")
}

func TestConcurrentRefreshCollapses(t *testing.T) {
	block := make(chan struct{})
	metrics := &fakeMetrics{block: block}
	orch, _ := newTestOrchestrator(t, metrics, nil, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = orch.Refresh(context.Background())
		}()
	}

	// Let the guarded callers bounce off, then release the one in flight.
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	assert.Equal(t, 1, metrics.callCount(), "only one collection pass runs")
}

func TestRefreshOpportunitiesReplacesOnlyOpportunities(t *testing.T) {
	trends := &fakeTrends{out: []TrendingTopic{{Keyword: "benchmarks"}}}
	opps := &fakeOpportunities{out: []EngagementOpportunity{{TargetID: "p1", Score: 80}}}
	orch, cache := newTestOrchestrator(t, nil, trends, nil, opps)
	orch.SetClock(func() time.Time { return testNow })

	require.NoError(t, orch.Refresh(context.Background()))

	opps.mu.Lock()
	opps.out = []EngagementOpportunity{{TargetID: "p2", Score: 95}}
	opps.mu.Unlock()
	orch.SetClock(func() time.Time { return testNow.Add(2 * time.Minute) })

	require.NoError(t, orch.RefreshOpportunities(context.Background()))

	snap := cache.LastSnapshot()
	require.NotNil(t, snap)
	assert.Equal(t, "p2", snap.Opportunities[0].TargetID)
	assert.Equal(t, "benchmarks", snap.TrendingTopics[0].Keyword, "other sections untouched")
	assert.Equal(t, testNow.Add(2*time.Minute), snap.GeneratedAt)
}

func TestRefreshOpportunitiesSkippedWithoutSnapshot(t *testing.T) {
	opps := &fakeOpportunities{}
	orch, cache := newTestOrchestrator(t, nil, nil, nil, opps)

	require.NoError(t, orch.RefreshOpportunities(context.Background()))
	assert.Equal(t, 0, opps.callCount(), "no snapshot to patch, nothing collected")
	assert.Nil(t, cache.LastSnapshot())
}

func TestStartRunsImmediateRefresh(t *testing.T) {
	metrics := &fakeMetrics{}
	orch, _ := newTestOrchestrator(t, metrics, nil, nil, nil)

	orch.Start(context.Background())
	defer orch.Stop()

	require.Eventually(t, func() bool {
		return metrics.callCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStopWithoutStartIsSafe(t *testing.T) {
	orch, _ := newTestOrchestrator(t, nil, nil, nil, nil)
	orch.Stop()
	orch.Stop()
}

func TestStopHaltsWorker(t *testing.T) {
	orch, _ := newTestOrchestrator(t, nil, nil, nil, nil)
	orch.Start(context.Background())
	orch.Stop()
	// goleak verifies the worker goroutine exited.
}

func TestLastGeneratedAt(t *testing.T) {
	orch, _ := newTestOrchestrator(t, nil, nil, nil, nil)
	assert.True(t, orch.LastGeneratedAt().IsZero())

	orch.SetClock(func() time.Time { return testNow })
	require.NoError(t, orch.Refresh(context.Background()))
	assert.Equal(t, testNow, orch.LastGeneratedAt())
}

package intel

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"moltbot/internal/logging"
	"moltbot/internal/store"
)

// Collector interfaces let tests substitute instrumented fakes for the real
// feed-backed collectors.
type (
	metricsSource interface {
		Collect(ctx context.Context) (PlatformMetrics, error)
	}
	trendSource interface {
		Detect(ctx context.Context) ([]TrendingTopic, error)
	}
	competitorSource interface {
		Track(ctx context.Context) ([]CompetitorProfile, error)
	}
	opportunitySource interface {
		Find(ctx context.Context) ([]EngagementOpportunity, error)
	}
)

// Orchestrator owns the intelligence snapshot lifecycle: serving cached
// snapshots, running full refreshes (all four collectors in parallel), and two
// background timers - a full refresh and a cheaper opportunity-only refresh.
type Orchestrator struct {
	cache   *Cache
	archive *store.Archive

	metrics       metricsSource
	trends        trendSource
	competitors   competitorSource
	opportunities opportunitySource

	fullEvery time.Duration
	oppEvery  time.Duration

	mu         sync.Mutex
	refreshing bool

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool

	now func() time.Time
}

// NewOrchestrator wires the collectors to the cache. archive may be nil.
func NewOrchestrator(
	cache *Cache,
	archive *store.Archive,
	metrics metricsSource,
	trends trendSource,
	competitors competitorSource,
	opportunities opportunitySource,
	fullEvery, oppEvery time.Duration,
) *Orchestrator {
	return &Orchestrator{
		cache:         cache,
		archive:       archive,
		metrics:       metrics,
		trends:        trends,
		competitors:   competitors,
		opportunities: opportunities,
		fullEvery:     fullEvery,
		oppEvery:      oppEvery,
		now:           time.Now,
	}
}

// SetClock overrides the clock source. Intended for tests.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// GetSnapshot returns the current intelligence snapshot, refreshing first if
// the cache is stale or force is set.
func (o *Orchestrator) GetSnapshot(ctx context.Context, force bool) (*Snapshot, error) {
	if !force {
		if snap, ok := o.cache.Snapshot(); ok {
			return snap, nil
		}
	}
	if err := o.Refresh(ctx); err != nil {
		return nil, err
	}
	snap := o.cache.LastSnapshot()
	return snap, nil
}

// Refresh runs a full collection pass. Concurrent calls collapse: if a refresh
// is already in flight the second caller returns immediately and the snapshot
// it reads afterwards may predate the in-flight pass.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	o.mu.Lock()
	if o.refreshing {
		o.mu.Unlock()
		logging.IntelDebug("refresh already in flight, skipping")
		return nil
	}
	o.refreshing = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.refreshing = false
		o.mu.Unlock()
	}()

	timer := logging.StartTimer(logging.CategoryIntel, "full refresh")
	defer timer.StopWithThreshold(30 * time.Second)

	var (
		metrics PlatformMetrics
		topics  []TrendingTopic
		agents  []CompetitorProfile
		opps    []EngagementOpportunity
	)

	// Each collector that fails contributes its zero value; one bad feed must
	// not block the rest of the snapshot.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := o.metrics.Collect(gctx)
		if err != nil {
			logging.IntelWarn("metrics collection failed: %v", err)
			return nil
		}
		metrics = m
		return nil
	})
	g.Go(func() error {
		t, err := o.trends.Detect(gctx)
		if err != nil {
			logging.IntelWarn("trend detection failed: %v", err)
			return nil
		}
		topics = t
		return nil
	})
	g.Go(func() error {
		a, err := o.competitors.Track(gctx)
		if err != nil {
			logging.IntelWarn("competitor tracking failed: %v", err)
			return nil
		}
		agents = a
		return nil
	})
	g.Go(func() error {
		found, err := o.opportunities.Find(gctx)
		if err != nil {
			logging.IntelWarn("opportunity search failed: %v", err)
			return nil
		}
		opps = found
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	now := o.now()
	snap := &Snapshot{
		PlatformMetrics: metrics,
		TrendingTopics:  topics,
		TopAgents:       agents,
		Opportunities:   opps,
		GeneratedAt:     now,
		NextRefreshAt:   now.Add(o.fullEvery),
	}
	if err := o.cache.SetSnapshot(snap); err != nil {
		return err
	}
	if err := o.cache.AppendHistory(metrics, topics, agents); err != nil {
		logging.IntelWarn("history append failed: %v", err)
	}
	o.archiveTrends(topics, now)

	logging.Intel("refreshed: %d topics, %d agents, %d opportunities",
		len(topics), len(agents), len(opps))
	return nil
}

// RefreshOpportunities replaces only the opportunity list in the current
// snapshot. Skipped when no snapshot exists yet; the next full refresh covers
// that case.
func (o *Orchestrator) RefreshOpportunities(ctx context.Context) error {
	prev := o.cache.LastSnapshot()
	if prev == nil {
		logging.IntelDebug("no snapshot yet, skipping opportunity refresh")
		return nil
	}

	opps, err := o.opportunities.Find(ctx)
	if err != nil {
		return err
	}

	next := *prev // shallow clone; slices other than opportunities are shared
	next.Opportunities = opps
	next.GeneratedAt = o.now()
	if err := o.cache.SetSnapshot(&next); err != nil {
		return err
	}
	logging.Intel("opportunity refresh: %d opportunities", len(opps))
	return nil
}

// LastGeneratedAt returns when the most recent snapshot was generated, zero
// if none exists yet.
func (o *Orchestrator) LastGeneratedAt() time.Time {
	if snap := o.cache.LastSnapshot(); snap != nil {
		return snap.GeneratedAt
	}
	return time.Time{}
}

func (o *Orchestrator) archiveTrends(topics []TrendingTopic, now time.Time) {
	if o.archive == nil || len(topics) == 0 {
		return
	}
	recs := make([]store.TrendRecord, 0, len(topics))
	for _, t := range topics {
		recs = append(recs, store.TrendRecord{
			Keyword:          t.Keyword,
			MentionCount:     t.MentionCount,
			Momentum:         t.Momentum,
			OpportunityScore: t.OpportunityScore,
			RecordedAt:       now,
		})
	}
	if err := o.archive.RecordTrends(recs); err != nil {
		logging.IntelWarn("trend archive failed: %v", err)
	}
}

// Start launches the two background refresh timers. The first full refresh
// runs immediately so callers never wait a full interval for data.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	o.mu.Unlock()

	go o.run(ctx)
	logging.Intel("background refresh started (full every %v, opportunities every %v)",
		o.fullEvery, o.oppEvery)
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.doneCh)

	if err := o.Refresh(ctx); err != nil {
		logging.IntelWarn("initial refresh failed: %v", err)
	}

	fullTicker := time.NewTicker(o.fullEvery)
	defer fullTicker.Stop()
	oppTicker := time.NewTicker(o.oppEvery)
	defer oppTicker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		case <-fullTicker.C:
			if err := o.Refresh(ctx); err != nil {
				logging.IntelWarn("scheduled refresh failed: %v", err)
			}
		case <-oppTicker.C:
			if err := o.RefreshOpportunities(ctx); err != nil {
				logging.IntelWarn("opportunity refresh failed: %v", err)
			}
		}
	}
}

// Stop halts the background timers and waits for the worker to exit.
// Safe to call without Start and safe to call twice.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	stopCh, doneCh := o.stopCh, o.doneCh
	o.mu.Unlock()

	close(stopCh)
	<-doneCh
	logging.Intel("background refresh stopped")
}

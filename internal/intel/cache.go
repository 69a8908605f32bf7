package intel

import (
	"sync"
	"time"

	"moltbot/internal/logging"
	"moltbot/internal/store"
)

// Entry wraps a cached value with its write time and TTL.
// Validity = now - WrittenAt < TTL, checked on every read. Entries are never
// actively evicted, only treated as stale and superseded on the next write.
type Entry struct {
	WrittenAt time.Time `json:"written_at"`
	TTLMs     int64     `json:"ttl_ms"`
}

// Valid reports whether the entry is still fresh.
func (e Entry) Valid(now time.Time) bool {
	return now.Sub(e.WrittenAt) < time.Duration(e.TTLMs)*time.Millisecond
}

// History window bounds: wall-clock for time series, count for per-competitor.
const (
	timeSeriesWindow       = 7 * 24 * time.Hour
	competitorHistoryLimit = 30
)

type memEntry struct {
	data      interface{}
	writtenAt time.Time
	ttl       time.Duration
}

// MetricsObservation is one historical platform metrics reading.
type MetricsObservation struct {
	Metrics    PlatformMetrics `json:"metrics"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// TrendObservation is one historical trend collection.
type TrendObservation struct {
	Topics     []TrendingTopic `json:"topics"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// CompetitorObservation is one historical per-competitor reading.
type CompetitorObservation struct {
	Karma      int       `json:"karma"`
	PostCount  int       `json:"post_count"`
	RecordedAt time.Time `json:"recorded_at"`
}

// durableState is the on-disk layout of the intelligence cache file.
type durableState struct {
	SnapshotEntry     Entry                              `json:"snapshot_entry"`
	Snapshot          *Snapshot                          `json:"snapshot,omitempty"`
	MetricsHistory    []MetricsObservation               `json:"metrics_history,omitempty"`
	TrendHistory      []TrendObservation                 `json:"trend_history,omitempty"`
	CompetitorHistory map[string][]CompetitorObservation `json:"competitor_history,omitempty"`
}

// Cache is the two-tier intelligence cache: an in-process map with a short
// memory TTL bounds hot-value staleness, and the single current-snapshot key
// is mirrored to durable storage so a restart keeps the last aggregate.
// All other keys are process-lifetime only. A miss is never an error; callers
// treat it as "needs refresh".
type Cache struct {
	mu sync.Mutex

	mem         map[string]memEntry
	memTTL      time.Duration
	snapshotTTL time.Duration

	file    *store.StateFile
	durable durableState

	now func() time.Time
}

const snapshotKey = "snapshot"

// NewCache creates the cache backed by the given state file (nil for
// process-lifetime only, used in tests).
func NewCache(file *store.StateFile, memTTL, snapshotTTL time.Duration) (*Cache, error) {
	c := &Cache{
		mem:         make(map[string]memEntry),
		memTTL:      memTTL,
		snapshotTTL: snapshotTTL,
		file:        file,
		now:         time.Now,
	}
	if file != nil {
		if _, err := file.Load(&c.durable); err != nil {
			return nil, err
		}
	}
	if c.durable.CompetitorHistory == nil {
		c.durable.CompetitorHistory = make(map[string][]CompetitorObservation)
	}
	return c, nil
}

// SetClock overrides the clock source. Intended for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns a process-lifetime cached value, or nil if absent or stale.
func (c *Cache) Get(key string) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.mem[key]
	if !ok {
		return nil
	}
	if c.now().Sub(entry.writtenAt) >= entry.ttl {
		return nil // stale, superseded on next write
	}
	return entry.data
}

// Set stores a process-lifetime value with the given TTL (memory TTL if zero).
func (c *Cache) Set(key string, data interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl <= 0 {
		ttl = c.memTTL
	}
	c.mem[key] = memEntry{data: data, writtenAt: c.now(), ttl: ttl}
}

// Snapshot returns the current snapshot if fresh: memory tier first (memory
// TTL), then the durable tier (snapshot TTL). Returns nil, false on a miss.
func (c *Cache) Snapshot() (*Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.mem[snapshotKey]; ok && now.Sub(entry.writtenAt) < entry.ttl {
		if snap, ok := entry.data.(*Snapshot); ok {
			return snap, true
		}
	}
	if c.durable.Snapshot != nil && c.durable.SnapshotEntry.Valid(now) {
		return c.durable.Snapshot, true
	}
	return nil, false
}

// LastSnapshot returns the most recent snapshot regardless of freshness, for
// status reporting. Staleness is communicated via GeneratedAt, not omission.
func (c *Cache) LastSnapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.mem[snapshotKey]; ok {
		if snap, ok := entry.data.(*Snapshot); ok {
			return snap
		}
	}
	return c.durable.Snapshot
}

// SetSnapshot atomically replaces the current snapshot in both tiers.
// A persistence failure is surfaced but does not corrupt the memory tier,
// which stays authoritative until the next successful write.
func (c *Cache) SetSnapshot(snap *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.mem[snapshotKey] = memEntry{data: snap, writtenAt: now, ttl: c.memTTL}
	c.durable.Snapshot = snap
	c.durable.SnapshotEntry = Entry{WrittenAt: now, TTLMs: c.snapshotTTL.Milliseconds()}
	return c.persist()
}

// AppendHistory appends rolling history entries for metrics, trends, and each
// competitor, pruning entries outside the fixed windows on every write.
func (c *Cache) AppendHistory(metrics PlatformMetrics, trends []TrendingTopic, competitors []CompetitorProfile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	cutoff := now.Add(-timeSeriesWindow)

	c.durable.MetricsHistory = append(c.durable.MetricsHistory, MetricsObservation{Metrics: metrics, RecordedAt: now})
	c.durable.MetricsHistory = pruneMetrics(c.durable.MetricsHistory, cutoff)

	if len(trends) > 0 {
		c.durable.TrendHistory = append(c.durable.TrendHistory, TrendObservation{Topics: trends, RecordedAt: now})
		c.durable.TrendHistory = pruneTrends(c.durable.TrendHistory, cutoff)
	}

	for _, comp := range competitors {
		history := append(c.durable.CompetitorHistory[comp.Username], CompetitorObservation{
			Karma:      comp.Karma,
			PostCount:  comp.PostCount,
			RecordedAt: now,
		})
		if len(history) > competitorHistoryLimit {
			history = history[len(history)-competitorHistoryLimit:]
		}
		c.durable.CompetitorHistory[comp.Username] = history
	}

	return c.persist()
}

// MetricsHistory returns a copy of the metrics time series.
func (c *Cache) MetricsHistory() []MetricsObservation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MetricsObservation, len(c.durable.MetricsHistory))
	copy(out, c.durable.MetricsHistory)
	return out
}

// CompetitorHistory returns a copy of one competitor's history.
func (c *Cache) CompetitorHistory(username string) []CompetitorObservation {
	c.mu.Lock()
	defer c.mu.Unlock()
	history := c.durable.CompetitorHistory[username]
	out := make([]CompetitorObservation, len(history))
	copy(out, history)
	return out
}

func pruneMetrics(history []MetricsObservation, cutoff time.Time) []MetricsObservation {
	idx := 0
	for idx < len(history) && history[idx].RecordedAt.Before(cutoff) {
		idx++
	}
	return history[idx:]
}

func pruneTrends(history []TrendObservation, cutoff time.Time) []TrendObservation {
	idx := 0
	for idx < len(history) && history[idx].RecordedAt.Before(cutoff) {
		idx++
	}
	return history[idx:]
}

func (c *Cache) persist() error {
	if c.file == nil {
		return nil
	}
	if err := c.file.Save(&c.durable); err != nil {
		logging.IntelWarn("cache persist failed: %v", err)
		return err
	}
	return nil
}

// Package karma records reputation deltas for every action the agent takes
// and derives momentum and per-category/per-community aggregates.
package karma

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"moltbot/internal/logging"
	"moltbot/internal/store"
)

// Event is one before/after reputation observation. Events are append-only:
// never mutated, never deleted.
type Event struct {
	ID          string    `json:"id"`
	EntityID    string    `json:"entity_id"`
	Timestamp   time.Time `json:"timestamp"`
	KarmaBefore int       `json:"karma_before"`
	KarmaAfter  int       `json:"karma_after"`
	Delta       int       `json:"delta"`
	Category    string    `json:"category,omitempty"`  // post / comment / content pattern
	Community   string    `json:"community,omitempty"` // where the action landed
}

// Tracker owns the persisted event history.
type Tracker struct {
	mu     sync.Mutex
	events []Event
	file   *store.StateFile
	now    func() time.Time
}

// NewTracker loads the history from its state file (empty history if absent).
func NewTracker(file *store.StateFile) (*Tracker, error) {
	t := &Tracker{file: file, now: time.Now}
	if file != nil {
		if _, err := file.Load(&t.events); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// SetClock overrides the clock source. Intended for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Record appends an event and persists the history.
func (t *Tracker) Record(entityID string, before, after int, category, community string) (Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ev := Event{
		ID:          uuid.NewString(),
		EntityID:    entityID,
		Timestamp:   t.now(),
		KarmaBefore: before,
		KarmaAfter:  after,
		Delta:       after - before,
		Category:    category,
		Community:   community,
	}
	t.events = append(t.events, ev)
	logging.Store("karma event: %s %+d (%d -> %d) [%s]", entityID, ev.Delta, before, after, category)

	if t.file != nil {
		if err := t.file.Save(t.events); err != nil {
			return ev, err
		}
	}
	return ev, nil
}

// Count returns the number of recorded events.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// AverageDelta returns the mean delta over the most recent n events
// (all events if n <= 0 or fewer exist). Zero when the history is empty.
func (t *Tracker) AverageDelta(n int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	events := t.events
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	if len(events) == 0 {
		return 0
	}
	sum := 0
	for _, ev := range events {
		sum += ev.Delta
	}
	return float64(sum) / float64(len(events))
}

// CategoryStats returns the total delta per category.
func (t *Tracker) CategoryStats() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := make(map[string]int)
	for _, ev := range t.events {
		if ev.Category != "" {
			stats[ev.Category] += ev.Delta
		}
	}
	return stats
}

// CommunityAverages returns the mean delta per community, for communities with
// at least one recorded event. Drives the post flow's preferred-community pick.
func (t *Tracker) CommunityAverages() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	sums := make(map[string]int)
	counts := make(map[string]int)
	for _, ev := range t.events {
		if ev.Community == "" {
			continue
		}
		sums[ev.Community] += ev.Delta
		counts[ev.Community]++
	}
	avgs := make(map[string]float64, len(sums))
	for name, sum := range sums {
		avgs[name] = float64(sum) / float64(counts[name])
	}
	return avgs
}

// BestCommunity returns the community with the highest mean delta, or ""
// when no community has history yet.
func (t *Tracker) BestCommunity() string {
	avgs := t.CommunityAverages()
	best := ""
	bestAvg := 0.0
	for name, avg := range avgs {
		if best == "" || avg > bestAvg {
			best = name
			bestAvg = avg
		}
	}
	return best
}

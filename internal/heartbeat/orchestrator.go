// Package heartbeat runs the agent's decide-and-act loop: each cycle reads the
// current reputation, asks the strategy engine what to do, executes the action
// against the platform, and records the outcome.
package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"moltbot/internal/brain"
	"moltbot/internal/intel"
	"moltbot/internal/karma"
	"moltbot/internal/logging"
	"moltbot/internal/platform"
	"moltbot/internal/ratelimit"
	"moltbot/internal/store"
	"moltbot/internal/strategy"
)

// Comment fallback bounds: a thread with at least one comment has proven
// interest, one past 15 is too crowded to be seen in.
const (
	fallbackMinComments = 1
	fallbackMaxComments = 15
)

// intelSource is the slice of the intelligence orchestrator heartbeat needs.
type intelSource interface {
	GetSnapshot(ctx context.Context, force bool) (*intel.Snapshot, error)
}

// persistedState survives restarts so cycle counts and action timestamps are
// continuous across process lifetimes.
type persistedState struct {
	CycleCount          int       `json:"cycle_count"`
	LastCycleAt         time.Time `json:"last_cycle_at,omitzero"`
	LastPostAt          time.Time `json:"last_post_at,omitzero"`
	LastCommentAt       time.Time `json:"last_comment_at,omitzero"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Running             bool      `json:"running"`
}

// Status is the aggregate agent state surfaced by the CLI.
type Status struct {
	Running             bool            `json:"running"`
	CycleCount          int             `json:"cycle_count"`
	LastCycleAt         time.Time       `json:"last_cycle_at,omitzero"`
	LastPostAt          time.Time       `json:"last_post_at,omitzero"`
	LastCommentAt       time.Time       `json:"last_comment_at,omitzero"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	Karma               int             `json:"karma"`
	AvgKarmaDelta       float64         `json:"avg_karma_delta"`
	RateLimit           ratelimit.State `json:"rate_limit"`
	IntelGeneratedAt    time.Time       `json:"intel_generated_at,omitzero"`
}

// Orchestrator owns the heartbeat loop and the post/comment/skip flows.
type Orchestrator struct {
	api     platform.API
	limiter *ratelimit.Limiter
	tracker *karma.Tracker
	engine  *strategy.Engine
	intel   intelSource
	pipe    brain.ContentPipeline
	archive *store.Archive
	file    *store.StateFile

	interval   time.Duration
	settleWait time.Duration

	mu                  sync.Mutex
	running             bool
	cycleCount          int
	lastCycleAt         time.Time
	lastPostAt          time.Time
	lastCommentAt       time.Time
	consecutiveFailures int
	lastKarma           int

	stopCh chan struct{}
	doneCh chan struct{}

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New wires the heartbeat orchestrator. archive and file may be nil.
func New(
	api platform.API,
	limiter *ratelimit.Limiter,
	tracker *karma.Tracker,
	engine *strategy.Engine,
	intelSrc intelSource,
	pipe brain.ContentPipeline,
	archive *store.Archive,
	file *store.StateFile,
	interval, settleWait time.Duration,
) (*Orchestrator, error) {
	o := &Orchestrator{
		api:        api,
		limiter:    limiter,
		tracker:    tracker,
		engine:     engine,
		intel:      intelSrc,
		pipe:       pipe,
		archive:    archive,
		file:       file,
		interval:   interval,
		settleWait: settleWait,
		now:        time.Now,
		sleep:      sleepCtx,
	}
	if file != nil {
		var state persistedState
		if _, err := file.Load(&state); err != nil {
			return nil, err
		}
		o.cycleCount = state.CycleCount
		o.lastCycleAt = state.LastCycleAt
		o.lastPostAt = state.LastPostAt
		o.lastCommentAt = state.LastCommentAt
		o.consecutiveFailures = state.ConsecutiveFailures
		// running is not restored: it describes this process's loop, and the
		// loop only exists once Start is called.
	}
	return o, nil
}

// persistState writes the durable slice of cycle state. Best effort: a failed
// write only costs continuity of the counters after a restart.
func (o *Orchestrator) persistState() {
	if o.file == nil {
		return
	}
	o.mu.Lock()
	state := persistedState{
		CycleCount:          o.cycleCount,
		LastCycleAt:         o.lastCycleAt,
		LastPostAt:          o.lastPostAt,
		LastCommentAt:       o.lastCommentAt,
		ConsecutiveFailures: o.consecutiveFailures,
		Running:             o.running,
	}
	o.mu.Unlock()
	if err := o.file.Save(&state); err != nil {
		logging.HeartbeatError("state persist failed: %v", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// SetClock overrides the clock and settle-wait sleeper. Intended for tests.
func (o *Orchestrator) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if now != nil {
		o.now = now
	}
	if sleep != nil {
		o.sleep = sleep
	}
}

// Start launches the heartbeat loop. The first cycle runs immediately.
// No-op if already running.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	o.mu.Unlock()
	o.persistState()

	go o.loop(ctx)
	logging.Heartbeat("started (interval %v)", o.interval)
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer close(o.doneCh)

	o.runScheduled(ctx)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.runScheduled(ctx)
		}
	}
}

// runScheduled wraps RunCycle for the loop: errors are logged and counted,
// never fatal to the loop.
func (o *Orchestrator) runScheduled(ctx context.Context) {
	if err := o.RunCycle(ctx); err != nil {
		o.mu.Lock()
		o.consecutiveFailures++
		failures := o.consecutiveFailures
		o.mu.Unlock()
		o.persistState()
		logging.HeartbeatError("cycle failed (%d consecutive): %v", failures, err)
		return
	}
	o.mu.Lock()
	o.consecutiveFailures = 0
	o.mu.Unlock()
	o.persistState()
}

// Stop signals the loop to halt and waits for it to exit. An in-flight cycle
// finishes; only future cycles are cancelled. Safe without Start.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	stopCh, doneCh := o.stopCh, o.doneCh
	o.mu.Unlock()

	close(stopCh)
	<-doneCh
	o.persistState()
	logging.Heartbeat("stopped after %d cycles", o.CycleCount())
}

// CycleCount returns the number of cycles run since startup.
func (o *Orchestrator) CycleCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cycleCount
}

// RunCycle executes one full decide-and-act cycle and propagates any error.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	o.mu.Lock()
	o.cycleCount++
	cycle := o.cycleCount
	o.lastCycleAt = o.now()
	o.mu.Unlock()
	defer o.persistState()

	timer := logging.StartTimer(logging.CategoryHeartbeat, fmt.Sprintf("cycle %d", cycle))
	defer timer.Stop()

	profile, err := o.api.GetProfile(ctx, "")
	if err != nil {
		o.archiveCycle(cycle, "", "profile fetch failed", "", 0, 0, true)
		return fmt.Errorf("fetch own profile: %w", err)
	}
	o.mu.Lock()
	o.lastKarma = profile.Karma
	o.mu.Unlock()

	decision := o.engine.Decide(profile.Karma, o.limiter.CanPost(), o.limiter.CanComment(), o.tracker.AverageDelta(10))
	logging.Heartbeat("cycle %d: karma=%d -> %s (%s)", cycle, profile.Karma, decision.Action, decision.Reason)

	var cycleErr error
	switch decision.Action {
	case strategy.ActionPost:
		cycleErr = o.doPost(ctx, cycle, profile.Karma, decision.Reason)
	case strategy.ActionComment:
		cycleErr = o.doComment(ctx, cycle, profile.Karma, decision.Reason)
	default:
		o.archiveCycle(cycle, string(strategy.ActionSkip), decision.Reason, "", profile.Karma, 0, false)
	}
	return cycleErr
}

// doPost runs the posting flow: pick a community, generate, submit, wait for
// karma to settle, record the delta.
func (o *Orchestrator) doPost(ctx context.Context, cycle, karmaBefore int, reason string) error {
	community, err := o.pickCommunity(ctx)
	if err != nil {
		o.archiveCycle(cycle, string(strategy.ActionPost), "no community available", "", karmaBefore, 0, true)
		return err
	}

	var topics []string
	if snap, err := o.intel.GetSnapshot(ctx, false); err == nil && snap != nil {
		for i, t := range snap.TrendingTopics {
			if i >= 5 {
				break
			}
			topics = append(topics, t.Keyword)
		}
	}

	draft, err := o.pipe.GeneratePost(ctx, brain.PostContext{
		Community:      community,
		TrendingTopics: topics,
		RecentDelta:    int(o.tracker.AverageDelta(10)),
	})
	if err != nil {
		o.archiveCycle(cycle, string(strategy.ActionPost), "generation failed", "", karmaBefore, 0, true)
		return fmt.Errorf("generate post: %w", err)
	}

	post, err := o.api.CreatePost(ctx, community, draft.Title, draft.Content)
	if err != nil {
		o.archiveCycle(cycle, string(strategy.ActionPost), "create failed", "", karmaBefore, 0, true)
		return fmt.Errorf("create post: %w", err)
	}
	if err := o.limiter.RecordPost(); err != nil {
		logging.HeartbeatError("rate limit persist failed: %v", err)
	}
	o.mu.Lock()
	o.lastPostAt = o.now()
	o.mu.Unlock()

	delta := o.settleAndRecord(ctx, post.ID, karmaBefore, "post", community)
	o.archiveCycle(cycle, string(strategy.ActionPost), reason, post.ID, karmaBefore, delta, false)
	logging.Heartbeat("cycle %d: posted %s to m/%s (delta %+d)", cycle, post.ID, community, delta)
	return nil
}

// doComment runs the commenting flow: resolve a target from live intelligence
// (or the feed as fallback), generate, submit, record.
func (o *Orchestrator) doComment(ctx context.Context, cycle, karmaBefore int, reason string) error {
	target, targetReason, err := o.pickCommentTarget(ctx)
	if err != nil {
		o.archiveCycle(cycle, string(strategy.ActionComment), "no comment target", "", karmaBefore, 0, true)
		return err
	}

	comment, err := o.pipe.GenerateComment(ctx, brain.CommentContext{
		PostTitle:   target.Title,
		PostContent: target.Content,
		Community:   target.Community,
		Reason:      targetReason,
	})
	if err != nil {
		o.archiveCycle(cycle, string(strategy.ActionComment), "generation failed", target.ID, karmaBefore, 0, true)
		return fmt.Errorf("generate comment: %w", err)
	}

	created, err := o.api.CreateComment(ctx, target.ID, comment)
	if err != nil {
		o.archiveCycle(cycle, string(strategy.ActionComment), "create failed", target.ID, karmaBefore, 0, true)
		return fmt.Errorf("create comment: %w", err)
	}
	if err := o.limiter.RecordComment(); err != nil {
		logging.HeartbeatError("rate limit persist failed: %v", err)
	}
	o.mu.Lock()
	o.lastCommentAt = o.now()
	o.mu.Unlock()

	delta := o.settleAndRecord(ctx, created.ID, karmaBefore, "comment", target.Community)
	o.archiveCycle(cycle, string(strategy.ActionComment), reason, target.ID, karmaBefore, delta, false)
	logging.Heartbeat("cycle %d: commented on %s (%s, delta %+d)", cycle, target.ID, targetReason, delta)
	return nil
}

// settleAndRecord waits for votes to start landing, reads karma back, and
// appends the event. A failed re-read records a zero delta rather than failing
// the cycle; the next cycle's read trues it up.
func (o *Orchestrator) settleAndRecord(ctx context.Context, entityID string, karmaBefore int, category, community string) int {
	if err := o.sleep(ctx, o.settleWait); err != nil {
		return 0
	}

	karmaAfter := karmaBefore
	if profile, err := o.api.GetProfile(ctx, ""); err == nil {
		karmaAfter = profile.Karma
	} else {
		logging.HeartbeatError("karma re-read failed: %v", err)
	}

	if _, err := o.tracker.Record(entityID, karmaBefore, karmaAfter, category, community); err != nil {
		logging.HeartbeatError("karma persist failed: %v", err)
	}
	return karmaAfter - karmaBefore
}

// pickCommunity prefers the community with the best historical karma return,
// falling back to a subscriber-weighted draw over all communities.
func (o *Orchestrator) pickCommunity(ctx context.Context) (string, error) {
	if best := o.tracker.BestCommunity(); best != "" {
		return best, nil
	}

	communities, err := o.api.ListCommunities(ctx)
	if err != nil {
		return "", fmt.Errorf("list communities: %w", err)
	}
	if len(communities) == 0 {
		return "", fmt.Errorf("no communities available")
	}

	items := make([]strategy.WeightedItem[string], 0, len(communities))
	for _, c := range communities {
		weight := float64(c.SubscriberCount)
		if weight <= 0 {
			weight = 1
		}
		items = append(items, strategy.WeightedItem[string]{Value: c.Name, Weight: weight})
	}
	return o.engine.Pick(items), nil
}

// pickCommentTarget resolves the best live opportunity against the hot feed,
// falling back to the newest feed post with a modest comment count.
func (o *Orchestrator) pickCommentTarget(ctx context.Context) (platform.Post, string, error) {
	snap, err := o.intel.GetSnapshot(ctx, false)
	if err != nil {
		logging.HeartbeatDebug("intel unavailable for targeting: %v", err)
	}

	if snap != nil {
		if live := snap.LiveOpportunities(o.now(), intel.PriorityHigh); len(live) > 0 {
			byID := make(map[string]platform.Post)
			if hot, err := o.api.GetFeed(ctx, platform.SortHot, 50); err == nil {
				for _, p := range hot {
					byID[p.ID] = p
				}
			}
			for _, opp := range live {
				if post, ok := byID[opp.TargetID]; ok {
					return post, opp.Reason, nil
				}
			}
			logging.HeartbeatDebug("no live opportunity resolvable against feed, using fallback")
		}
	}

	posts, err := o.api.GetFeed(ctx, platform.SortNew, 30)
	if err != nil {
		return platform.Post{}, "", fmt.Errorf("fetch feed for comment target: %w", err)
	}
	for _, p := range posts {
		if p.CommentCount >= fallbackMinComments && p.CommentCount <= fallbackMaxComments {
			return p, "active recent thread", nil
		}
	}
	return platform.Post{}, "", fmt.Errorf("no suitable comment target in feed")
}

func (o *Orchestrator) archiveCycle(cycle int, action, reason, targetID string, karmaValue, delta int, failed bool) {
	if o.archive == nil {
		return
	}
	_ = o.archive.RecordCycle(store.CycleRecord{
		CycleCount: cycle,
		Action:     action,
		Reason:     reason,
		TargetID:   targetID,
		Karma:      karmaValue,
		Delta:      delta,
		Failed:     failed,
		RecordedAt: o.now(),
	})
}

// Status reports the aggregate agent state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	s := Status{
		Running:             o.running,
		CycleCount:          o.cycleCount,
		LastCycleAt:         o.lastCycleAt,
		LastPostAt:          o.lastPostAt,
		LastCommentAt:       o.lastCommentAt,
		ConsecutiveFailures: o.consecutiveFailures,
		Karma:               o.lastKarma,
	}
	o.mu.Unlock()

	s.AvgKarmaDelta = o.tracker.AverageDelta(10)
	s.RateLimit = o.limiter.Snapshot()
	if snapSrc, ok := o.intel.(interface{ LastGeneratedAt() time.Time }); ok {
		s.IntelGeneratedAt = snapSrc.LastGeneratedAt()
	}
	return s
}

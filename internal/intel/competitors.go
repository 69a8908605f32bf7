package intel

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"moltbot/internal/logging"
	"moltbot/internal/platform"
)

const (
	maxCompetitors       = 15
	maxProfileCandidates = 25
	rivalSentinelScore   = 1 << 30 // guarantees rivals survive the candidate cut
)

// CompetitorTracker discovers high-activity agents from the hot and top feeds
// and enriches them with full profiles, fetched in small throttled batches so
// the upstream API is not hammered.
type CompetitorTracker struct {
	api       platform.API
	rivals    []string
	batchSize int
	batchWait time.Duration
}

// NewCompetitorTracker creates a tracker. rivals are always force-included in
// the candidate set even with zero recent feed activity.
func NewCompetitorTracker(api platform.API, rivals []string, batchSize int, batchWait time.Duration) *CompetitorTracker {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &CompetitorTracker{api: api, rivals: rivals, batchSize: batchSize, batchWait: batchWait}
}

// Track returns the top competitors by karma.
func (t *CompetitorTracker) Track(ctx context.Context) ([]CompetitorProfile, error) {
	timer := logging.StartTimer(logging.CategoryRivals, "Track")
	defer timer.Stop()

	activity := make(map[string]int)
	for _, feedSort := range []platform.FeedSort{platform.SortHot, platform.SortTop} {
		posts, err := t.api.GetFeed(ctx, feedSort, 50)
		if err != nil {
			logging.RivalsWarn("feed %s failed: %v", feedSort, err)
			continue
		}
		for _, p := range posts {
			if p.Author == "" {
				continue
			}
			activity[p.Author] += p.Upvotes + p.CommentCount*2
		}
	}
	for _, rival := range t.rivals {
		activity[rival] = rivalSentinelScore
	}

	type candidate struct {
		username string
		score    int
	}
	candidates := make([]candidate, 0, len(activity))
	for username, score := range activity {
		candidates = append(candidates, candidate{username, score})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].username < candidates[j].username
	})
	if len(candidates) > maxProfileCandidates {
		candidates = candidates[:maxProfileCandidates]
	}

	rivalSet := make(map[string]bool, len(t.rivals))
	for _, rival := range t.rivals {
		rivalSet[rival] = true
	}

	var (
		mu       sync.Mutex
		profiles []CompetitorProfile
	)
	for start := 0; start < len(candidates); start += t.batchSize {
		end := start + t.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		if start > 0 && t.batchWait > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(t.batchWait):
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, cand := range candidates[start:end] {
			cand := cand
			g.Go(func() error {
				profile, err := t.api.GetProfile(gctx, cand.username)
				if err != nil {
					// A single failed profile is omitted, never fatal.
					logging.RivalsWarn("profile fetch failed for %s: %v", cand.username, err)
					return nil
				}
				feedScore := cand.score
				if feedScore == rivalSentinelScore {
					feedScore = 0
				}
				mu.Lock()
				profiles = append(profiles, CompetitorProfile{
					Username:      profile.Username,
					Karma:         profile.Karma,
					PostCount:     profile.PostCount,
					CommentCount:  profile.CommentCount,
					FollowerCount: profile.FollowerCount,
					ActivityScore: feedScore,
					IsRival:       rivalSet[cand.username],
					ObservedAt:    time.Now(),
				})
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].Karma != profiles[j].Karma {
			return profiles[i].Karma > profiles[j].Karma
		}
		return profiles[i].Username < profiles[j].Username
	})
	if len(profiles) > maxCompetitors {
		profiles = profiles[:maxCompetitors]
	}

	logging.Rivals("tracked %d competitors (%d rivals pinned)", len(profiles), len(t.rivals))
	return profiles, nil
}

package intel

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"moltbot/internal/logging"
	"moltbot/internal/platform"
)

const (
	maxOpportunities = 20

	sweetSpotMinComments = 3
	sweetSpotMaxComments = 10
	sweetSpotThreshold   = 70

	introMaxComments = 5
	introScore       = 85
	introLimit       = 5

	rivalSaturationLimit = 10
	rivalStrategyBonus   = 15

	lowCompMinSubscribers = 10  // exclusive
	lowCompMaxSubscribers = 100 // exclusive
	lowCompMaxComments    = 3
	lowCompMaxUpvotes     = 10
	lowCompScore          = 75

	sweetSpotWindow = 4 * time.Hour
	introWindow     = 12 * time.Hour
	rivalWindow     = 6 * time.Hour
	lowCompWindow   = 24 * time.Hour
)

var introKeywords = []string{"introduc", "hello", "new here", "first post", "just joined", "joining"}

// OpportunityFinder runs four independent targeting strategies over feed data
// and merges their candidates. Strategy order is fixed (sweet-spot,
// introductions, rival responses, low-competition) and dedup is
// first-occurrence-wins, so a target that is both sweet-spot and rival keeps
// the sweet-spot reason and score.
type OpportunityFinder struct {
	api    platform.API
	rivals map[string]bool
	now    func() time.Time
}

// NewOpportunityFinder creates a finder with the configured rival list.
func NewOpportunityFinder(api platform.API, rivals []string) *OpportunityFinder {
	set := make(map[string]bool, len(rivals))
	for _, r := range rivals {
		set[r] = true
	}
	return &OpportunityFinder{api: api, rivals: set, now: time.Now}
}

// SetClock overrides the clock source. Intended for tests.
func (f *OpportunityFinder) SetClock(now func() time.Time) {
	f.now = now
}

// Find returns the top 20 opportunities, deduplicated by target and sorted by
// descending score.
func (f *OpportunityFinder) Find(ctx context.Context) ([]EngagementOpportunity, error) {
	timer := logging.StartTimer(logging.CategoryOpportunities, "Find")
	defer timer.Stop()

	hot, err := f.api.GetFeed(ctx, platform.SortHot, 50)
	if err != nil {
		logging.Get(logging.CategoryOpportunities).Warn("hot feed failed: %v", err)
	}
	rising, err := f.api.GetFeed(ctx, platform.SortRising, 50)
	if err != nil {
		logging.Get(logging.CategoryOpportunities).Warn("rising feed failed: %v", err)
	}

	var all []EngagementOpportunity
	all = append(all, f.sweetSpot(hot, rising)...)
	all = append(all, f.introductions(ctx)...)
	all = append(all, f.rivalResponses(hot)...)
	all = append(all, f.lowCompetition(ctx)...)

	// Dedup by target, first occurrence wins.
	seen := make(map[string]bool, len(all))
	deduped := all[:0]
	for _, opp := range all {
		if seen[opp.TargetID] {
			continue
		}
		seen[opp.TargetID] = true
		deduped = append(deduped, opp)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Score > deduped[j].Score
	})
	if len(deduped) > maxOpportunities {
		deduped = deduped[:maxOpportunities]
	}

	logging.Opportunities("found %d opportunities", len(deduped))
	return deduped, nil
}

// Score computes the 0-100 engagement score for a post:
// velocity (up to 50) + recency bonus + sweet-spot bonus + rival bonus.
func (f *OpportunityFinder) Score(p platform.Post) int {
	now := f.now()

	velocity := math.Min(p.CommentsPerHour(now)*10, 50)

	recency := 0.0
	switch age := p.Age(now); {
	case age < 2*time.Hour:
		recency = 20
	case age < 6*time.Hour:
		recency = 10
	}

	sweetSpot := 0.0
	if p.CommentCount >= sweetSpotMinComments && p.CommentCount <= sweetSpotMaxComments {
		sweetSpot = 20
	}

	rival := 0.0
	if f.rivals[p.Author] {
		rival = 10
	}

	return clampScore(int(math.Round(velocity + recency + sweetSpot + rival)))
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// sweetSpot targets hot/rising posts with enough comments to be worth joining
// but not so many that a reply is buried.
func (f *OpportunityFinder) sweetSpot(feeds ...[]platform.Post) []EngagementOpportunity {
	var opps []EngagementOpportunity
	for _, feed := range feeds {
		for _, p := range feed {
			if p.CommentCount < sweetSpotMinComments || p.CommentCount > sweetSpotMaxComments {
				continue
			}
			score := f.Score(p)
			if score < sweetSpotThreshold {
				continue
			}
			opps = append(opps, EngagementOpportunity{
				TargetID:  p.ID,
				Kind:      KindComment,
				Priority:  PriorityForScore(score),
				Score:     score,
				Reason:    "engagement sweet spot",
				Title:     p.Title,
				Community: p.Community,
				ExpiresAt: f.now().Add(sweetSpotWindow),
			})
		}
	}
	return opps
}

// introductions welcomes new agents before the thread fills up.
func (f *OpportunityFinder) introductions(ctx context.Context) []EngagementOpportunity {
	posts, err := f.api.GetFeed(ctx, platform.SortNew, 30)
	if err != nil {
		logging.Get(logging.CategoryOpportunities).Warn("new feed failed: %v", err)
		return nil
	}

	var candidates []platform.Post
	for _, p := range posts {
		if p.CommentCount >= introMaxComments {
			continue
		}
		text := strings.ToLower(p.Title + " " + p.Content)
		for _, kw := range introKeywords {
			if strings.Contains(text, kw) {
				candidates = append(candidates, p)
				break
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	if len(candidates) > introLimit {
		candidates = candidates[:introLimit]
	}

	opps := make([]EngagementOpportunity, 0, len(candidates))
	for _, p := range candidates {
		opps = append(opps, EngagementOpportunity{
			TargetID:  p.ID,
			Kind:      KindComment,
			Priority:  PriorityForScore(introScore),
			Score:     introScore,
			Reason:    "new agent introduction",
			Title:     p.Title,
			Community: p.Community,
			ExpiresAt: f.now().Add(introWindow),
		})
	}
	return opps
}

// rivalResponses targets rival posts early, skipping threads already too
// saturated to be worth the comment budget.
func (f *OpportunityFinder) rivalResponses(hot []platform.Post) []EngagementOpportunity {
	var opps []EngagementOpportunity
	for _, p := range hot {
		if !f.rivals[p.Author] {
			continue
		}
		if p.CommentCount > rivalSaturationLimit {
			logging.Opportunities("skipping rival post %s: %d comments, too saturated", p.ID, p.CommentCount)
			continue
		}
		priority := PriorityHigh
		if p.CommentCount >= sweetSpotMinComments && p.CommentCount <= sweetSpotMaxComments {
			priority = PriorityCritical
		}
		score := clampScore(f.Score(p) + rivalStrategyBonus)
		opps = append(opps, EngagementOpportunity{
			TargetID:  p.ID,
			Kind:      KindComment,
			Priority:  priority,
			Score:     score,
			Reason:    "rival activity: " + p.Author,
			Title:     p.Title,
			Community: p.Community,
			ExpiresAt: f.now().Add(rivalWindow),
		})
	}
	return opps
}

// lowCompetition scans small communities for recent posts starved of
// engagement, where a single comment has outsized visibility.
func (f *OpportunityFinder) lowCompetition(ctx context.Context) []EngagementOpportunity {
	communities, err := f.api.ListCommunities(ctx)
	if err != nil {
		logging.Get(logging.CategoryOpportunities).Warn("community list failed: %v", err)
		return nil
	}

	var opps []EngagementOpportunity
	for _, c := range communities {
		if c.SubscriberCount <= lowCompMinSubscribers || c.SubscriberCount >= lowCompMaxSubscribers {
			continue
		}
		posts, err := f.api.GetCommunityPosts(ctx, c.Name, platform.SortNew)
		if err != nil {
			continue
		}
		for _, p := range posts {
			if p.CommentCount >= lowCompMaxComments || p.Upvotes >= lowCompMaxUpvotes {
				continue
			}
			opps = append(opps, EngagementOpportunity{
				TargetID:  p.ID,
				Kind:      KindComment,
				Priority:  PriorityForScore(lowCompScore),
				Score:     lowCompScore,
				Reason:    "low competition community: " + c.Name,
				Title:     p.Title,
				Community: c.Name,
				ExpiresAt: f.now().Add(lowCompWindow),
			})
			break // one target per community is enough
		}
	}
	return opps
}

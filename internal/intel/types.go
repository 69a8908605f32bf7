// Package intel collects, caches, and scores external signals: platform
// metrics, trending topics, competitor activity, and engagement opportunities.
package intel

import "time"

// Priority buckets an opportunity score.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// PriorityForScore maps a 0-100 score to a priority bucket.
func PriorityForScore(score int) Priority {
	switch {
	case score >= 90:
		return PriorityCritical
	case score >= 80:
		return PriorityHigh
	case score >= 70:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// OpportunityKind classifies what kind of engagement a target invites.
type OpportunityKind string

const (
	KindPost    OpportunityKind = "post"
	KindComment OpportunityKind = "comment"
	KindReply   OpportunityKind = "reply"
)

// EngagementOpportunity is a scored, time-bounded candidate target.
// At most one live opportunity exists per TargetID.
type EngagementOpportunity struct {
	TargetID  string          `json:"target_id"`
	Kind      OpportunityKind `json:"kind"`
	Priority  Priority        `json:"priority"`
	Score     int             `json:"score"` // 0..100
	Reason    string          `json:"reason"`
	Title     string          `json:"title,omitempty"`
	Community string          `json:"community,omitempty"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the opportunity's window has passed. Consumers must
// treat an expired opportunity as invalid even if still cached.
func (o EngagementOpportunity) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// TrendingTopic is one extracted keyword with momentum relative to the
// previous collection cycle.
type TrendingTopic struct {
	Keyword          string `json:"keyword"`
	MentionCount     int    `json:"mention_count"`
	Momentum         int    `json:"momentum"` // percent vs previous cycle; 100 for new keywords
	Sentiment        string `json:"sentiment"`
	OpportunityScore int    `json:"opportunity_score"`
}

// CompetitorProfile is an observed high-activity agent.
type CompetitorProfile struct {
	Username      string    `json:"username"`
	Karma         int       `json:"karma"`
	PostCount     int       `json:"post_count"`
	CommentCount  int       `json:"comment_count"`
	FollowerCount int       `json:"follower_count"`
	ActivityScore int       `json:"activity_score"` // upvotes + comments*2 observed in feeds
	IsRival       bool      `json:"is_rival"`
	ObservedAt    time.Time `json:"observed_at"`
}

// PlatformMetrics is the aggregate health reading of the platform feeds.
type PlatformMetrics struct {
	PostsSampled       int       `json:"posts_sampled"`
	TotalComments      int       `json:"total_comments"`
	TotalUpvotes       int       `json:"total_upvotes"`
	ActiveAgents       int       `json:"active_agents"` // unique authors in sampled feeds
	AvgCommentsPerPost float64   `json:"avg_comments_per_post"`
	HottestCommunity   string    `json:"hottest_community"`
	CommunityCount     int       `json:"community_count"`
	CollectedAt        time.Time `json:"collected_at"`
}

// Snapshot is the single aggregated intelligence value. It is replaced
// atomically on refresh, never partially updated.
type Snapshot struct {
	PlatformMetrics PlatformMetrics         `json:"platform_metrics"`
	TrendingTopics  []TrendingTopic         `json:"trending_topics"`
	TopAgents       []CompetitorProfile     `json:"top_agents"`
	Opportunities   []EngagementOpportunity `json:"opportunities"`
	GeneratedAt     time.Time               `json:"generated_at"`
	NextRefreshAt   time.Time               `json:"next_refresh_at"`
}

// LiveOpportunities returns the snapshot's opportunities that have not
// expired, optionally filtered to a minimum priority rank.
func (s *Snapshot) LiveOpportunities(now time.Time, min Priority) []EngagementOpportunity {
	rank := map[Priority]int{PriorityLow: 0, PriorityMedium: 1, PriorityHigh: 2, PriorityCritical: 3}
	minRank, ok := rank[min]
	if !ok {
		minRank = 0
	}
	var live []EngagementOpportunity
	for _, opp := range s.Opportunities {
		if opp.Expired(now) {
			continue
		}
		if rank[opp.Priority] < minRank {
			continue
		}
		live = append(live, opp)
	}
	return live
}

package intel

import (
	"context"
	"time"

	"moltbot/internal/logging"
	"moltbot/internal/platform"
)

// MetricsCollector samples the hot feed and community list into one aggregate
// reading of platform activity.
type MetricsCollector struct {
	api platform.API
}

// NewMetricsCollector creates a collector over the given platform client.
func NewMetricsCollector(api platform.API) *MetricsCollector {
	return &MetricsCollector{api: api}
}

// Collect gathers the current platform metrics.
func (m *MetricsCollector) Collect(ctx context.Context) (PlatformMetrics, error) {
	posts, err := m.api.GetFeed(ctx, platform.SortHot, 50)
	if err != nil {
		return PlatformMetrics{}, err
	}

	metrics := PlatformMetrics{
		PostsSampled: len(posts),
		CollectedAt:  time.Now(),
	}

	authors := make(map[string]bool)
	communityComments := make(map[string]int)
	for _, p := range posts {
		metrics.TotalComments += p.CommentCount
		metrics.TotalUpvotes += p.Upvotes
		if p.Author != "" {
			authors[p.Author] = true
		}
		if p.Community != "" {
			communityComments[p.Community] += p.CommentCount
		}
	}
	metrics.ActiveAgents = len(authors)
	if len(posts) > 0 {
		metrics.AvgCommentsPerPost = float64(metrics.TotalComments) / float64(len(posts))
	}

	hottest := ""
	hottestCount := -1
	for name, count := range communityComments {
		if count > hottestCount || (count == hottestCount && name < hottest) {
			hottest = name
			hottestCount = count
		}
	}
	metrics.HottestCommunity = hottest

	// Community count is best-effort; the sampled numbers above stand alone.
	if communities, err := m.api.ListCommunities(ctx); err == nil {
		metrics.CommunityCount = len(communities)
	}

	logging.IntelDebug("metrics: %d posts, %d agents, %.1f avg comments",
		metrics.PostsSampled, metrics.ActiveAgents, metrics.AvgCommentsPerPost)
	return metrics, nil
}

// Package brain generates post and comment content. The production pipeline
// is Gemini-backed with model fallback; heartbeat depends only on the
// ContentPipeline interface so tests run with canned generators.
package brain

import "context"

// PostContext carries the signals the generator shapes a post from.
type PostContext struct {
	Community      string
	TrendingTopics []string
	RecentDelta    int // recent karma movement, shapes tone
}

// CommentContext carries the target the generator replies to.
type CommentContext struct {
	PostTitle   string
	PostContent string
	Community   string
	Reason      string // why this target was chosen
}

// PostDraft is generated post content.
type PostDraft struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ContentPipeline produces content for platform actions.
type ContentPipeline interface {
	GeneratePost(ctx context.Context, pc PostContext) (PostDraft, error)
	GenerateComment(ctx context.Context, cc CommentContext) (string, error)
}

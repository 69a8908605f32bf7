package platform

import "time"

// FeedSort selects the feed ordering on the platform.
type FeedSort string

const (
	SortHot    FeedSort = "hot"
	SortNew    FeedSort = "new"
	SortRising FeedSort = "rising"
	SortTop    FeedSort = "top"
)

// Profile represents an agent profile on the platform.
type Profile struct {
	ID           string    `json:"id"`
	Username     string    `json:"name"`
	Description  string    `json:"description"`
	Karma        int       `json:"karma"`
	FollowerCount int      `json:"follower_count"`
	PostCount    int       `json:"post_count"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Post represents a post on the platform.
type Post struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Author       string    `json:"author_name"`
	Community    string    `json:"submolt"`
	Upvotes      int       `json:"upvotes"`
	CommentCount int       `json:"comment_count"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"created_at"`
}

// Comment represents a comment on a post.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	Content   string    `json:"content"`
	Author    string    `json:"author_name"`
	Upvotes   int       `json:"upvotes"`
	CreatedAt time.Time `json:"created_at"`
}

// Community represents a named sub-forum.
type Community struct {
	Name            string `json:"name"`
	DisplayName     string `json:"display_name"`
	Description     string `json:"description"`
	SubscriberCount int    `json:"subscriber_count"`
}

// Age returns how old the post is relative to now.
func (p Post) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}

// CommentsPerHour returns comment velocity since creation. Posts younger than
// a minute are treated as a minute old to avoid divide-by-near-zero spikes.
func (p Post) CommentsPerHour(now time.Time) float64 {
	age := p.Age(now)
	if age < time.Minute {
		age = time.Minute
	}
	return float64(p.CommentCount) / age.Hours()
}

package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "test-key", 5*time.Second, 2)
	c.RetryBackoff = time.Millisecond
	return c
}

func TestGetFeedDecodesEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/posts", r.URL.Path)
		assert.Equal(t, "hot", r.URL.Query().Get("sort"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"posts": []map[string]interface{}{
				{"id": "p1", "title": "hello", "author_name": "alice", "submolt": "agentlife", "comment_count": 4},
			},
		})
	})

	posts, err := c.GetFeed(context.Background(), SortHot, 0)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "p1", posts[0].ID)
	assert.Equal(t, "alice", posts[0].Author)
	assert.Equal(t, "agentlife", posts[0].Community)
	assert.Equal(t, 4, posts[0].CommentCount)
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "posts": []interface{}{}})
	})

	_, err := c.GetFeed(context.Background(), SortHot, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.GetFeed(context.Background(), SortHot, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retries exhausted")
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "bad community"})
	})

	_, err := c.CreatePost(context.Background(), "nope", "t", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad community")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreatePostPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "agentlife", body["submolt"])
		assert.Equal(t, "my title", body["title"])
		assert.Equal(t, "my body", body["content"])

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"post":    map[string]string{"id": "p9", "title": "my title"},
		})
	})

	post, err := c.CreatePost(context.Background(), "agentlife", "my title", "my body")
	require.NoError(t, err)
	assert.Equal(t, "p9", post.ID)
}

func TestGetProfileSelfVsNamed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/agents/me":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true, "agent": map[string]interface{}{"name": "moltbot", "karma": 123},
			})
		case "/agents/profile":
			assert.Equal(t, "rival_bot", r.URL.Query().Get("name"))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true, "agent": map[string]interface{}{"name": "rival_bot", "karma": 999},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	me, err := c.GetProfile(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 123, me.Karma)

	rival, err := c.GetProfile(context.Background(), "rival_bot")
	require.NoError(t, err)
	assert.Equal(t, 999, rival.Karma)
}

func TestCommentsPerHour(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		post Post
		want float64
	}{
		{name: "two hours five comments", post: Post{CommentCount: 5, CreatedAt: now.Add(-2 * time.Hour)}, want: 2.5},
		{name: "brand new clamps to a minute", post: Post{CommentCount: 2, CreatedAt: now}, want: 120},
		{name: "no comments", post: Post{CreatedAt: now.Add(-time.Hour)}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.post.CommentsPerHour(now), 1e-9)
		})
	}
}

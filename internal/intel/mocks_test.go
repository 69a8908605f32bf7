package intel

import (
	"context"
	"fmt"
	"sync"

	"moltbot/internal/platform"
)

// fakeAPI is a scriptable platform.API with call counting.
type fakeAPI struct {
	mu sync.Mutex

	feeds          map[platform.FeedSort][]platform.Post
	feedErr        map[platform.FeedSort]error
	profiles       map[string]*platform.Profile
	profileErr     map[string]error
	communities    []platform.Community
	communitiesErr error
	communityPosts map[string][]platform.Post

	feedCalls    int
	profileCalls int
}

var _ platform.API = (*fakeAPI)(nil)

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		feeds:          make(map[platform.FeedSort][]platform.Post),
		feedErr:        make(map[platform.FeedSort]error),
		profiles:       make(map[string]*platform.Profile),
		profileErr:     make(map[string]error),
		communityPosts: make(map[string][]platform.Post),
	}
}

func (f *fakeAPI) GetProfile(ctx context.Context, username string) (*platform.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileCalls++
	if err := f.profileErr[username]; err != nil {
		return nil, err
	}
	if p, ok := f.profiles[username]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("profile %q not found", username)
}

func (f *fakeAPI) GetFeed(ctx context.Context, sort platform.FeedSort, limit int) ([]platform.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedCalls++
	if err := f.feedErr[sort]; err != nil {
		return nil, err
	}
	return f.feeds[sort], nil
}

func (f *fakeAPI) ListCommunities(ctx context.Context) ([]platform.Community, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.communities, f.communitiesErr
}

func (f *fakeAPI) GetCommunityPosts(ctx context.Context, name string, sort platform.FeedSort) ([]platform.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.communityPosts[name], nil
}

func (f *fakeAPI) CreatePost(ctx context.Context, community, title, body string) (*platform.Post, error) {
	return &platform.Post{ID: "created-post", Title: title, Content: body, Community: community}, nil
}

func (f *fakeAPI) CreateComment(ctx context.Context, postID, body string) (*platform.Comment, error) {
	return &platform.Comment{ID: "created-comment", PostID: postID, Content: body}, nil
}

func (f *fakeAPI) feedCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.feedCalls
}

// Scriptable collectors for orchestrator tests.
type fakeMetrics struct {
	mu    sync.Mutex
	calls int
	out   PlatformMetrics
	err   error
	block chan struct{} // if set, Collect waits until closed
}

func (f *fakeMetrics) Collect(ctx context.Context) (PlatformMetrics, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return PlatformMetrics{}, ctx.Err()
		}
	}
	return f.out, f.err
}

func (f *fakeMetrics) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTrends struct {
	out []TrendingTopic
	err error
}

func (f *fakeTrends) Detect(ctx context.Context) ([]TrendingTopic, error) { return f.out, f.err }

type fakeCompetitors struct {
	out []CompetitorProfile
	err error
}

func (f *fakeCompetitors) Track(ctx context.Context) ([]CompetitorProfile, error) {
	return f.out, f.err
}

type fakeOpportunities struct {
	mu    sync.Mutex
	calls int
	out   []EngagementOpportunity
	err   error
}

func (f *fakeOpportunities) Find(ctx context.Context) ([]EngagementOpportunity, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.out, f.err
}

func (f *fakeOpportunities) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

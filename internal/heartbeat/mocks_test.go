package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"moltbot/internal/brain"
	"moltbot/internal/intel"
	"moltbot/internal/platform"
)

// fakeAPI is a scriptable platform.API that records the actions taken.
type fakeAPI struct {
	mu sync.Mutex

	karma      int
	profileErr error
	feeds      map[platform.FeedSort][]platform.Post
	feedErr    error

	communities []platform.Community

	createdPosts    []platform.Post
	createdComments []platform.Comment
	postErr         error
	commentErr      error
}

var _ platform.API = (*fakeAPI)(nil)

func newFakeAPI(karma int) *fakeAPI {
	return &fakeAPI{
		karma: karma,
		feeds: make(map[platform.FeedSort][]platform.Post),
		communities: []platform.Community{
			{Name: "agentlife", SubscriberCount: 500},
		},
	}
}

func (f *fakeAPI) setKarma(k int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.karma = k
}

func (f *fakeAPI) GetProfile(ctx context.Context, username string) (*platform.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return &platform.Profile{Username: "moltbot", Karma: f.karma}, nil
}

func (f *fakeAPI) GetFeed(ctx context.Context, sort platform.FeedSort, limit int) ([]platform.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.feedErr != nil {
		return nil, f.feedErr
	}
	return f.feeds[sort], nil
}

func (f *fakeAPI) ListCommunities(ctx context.Context) ([]platform.Community, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.communities, nil
}

func (f *fakeAPI) GetCommunityPosts(ctx context.Context, name string, sort platform.FeedSort) ([]platform.Post, error) {
	return nil, nil
}

func (f *fakeAPI) CreatePost(ctx context.Context, community, title, body string) (*platform.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return nil, f.postErr
	}
	post := platform.Post{
		ID:        fmt.Sprintf("post-%d", len(f.createdPosts)+1),
		Title:     title,
		Content:   body,
		Community: community,
	}
	f.createdPosts = append(f.createdPosts, post)
	return &post, nil
}

func (f *fakeAPI) CreateComment(ctx context.Context, postID, body string) (*platform.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commentErr != nil {
		return nil, f.commentErr
	}
	comment := platform.Comment{
		ID:      fmt.Sprintf("comment-%d", len(f.createdComments)+1),
		PostID:  postID,
		Content: body,
	}
	f.createdComments = append(f.createdComments, comment)
	return &comment, nil
}

func (f *fakeAPI) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.createdPosts)
}

func (f *fakeAPI) commentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.createdComments)
}

// fakeIntel serves a fixed snapshot.
type fakeIntel struct {
	snap *intel.Snapshot
	err  error
}

func (f *fakeIntel) GetSnapshot(ctx context.Context, force bool) (*intel.Snapshot, error) {
	return f.snap, f.err
}

func (f *fakeIntel) LastGeneratedAt() time.Time {
	if f.snap == nil {
		return time.Time{}
	}
	return f.snap.GeneratedAt
}

// fakePipeline returns canned content.
type fakePipeline struct {
	postErr    error
	commentErr error

	lastPostCtx    brain.PostContext
	lastCommentCtx brain.CommentContext
}

var _ brain.ContentPipeline = (*fakePipeline)(nil)

func (f *fakePipeline) GeneratePost(ctx context.Context, pc brain.PostContext) (brain.PostDraft, error) {
	f.lastPostCtx = pc
	if f.postErr != nil {
		return brain.PostDraft{}, f.postErr
	}
	return brain.PostDraft{Title: "canned title", Content: "canned body"}, nil
}

func (f *fakePipeline) GenerateComment(ctx context.Context, cc brain.CommentContext) (string, error) {
	f.lastCommentCtx = cc
	if f.commentErr != nil {
		return "", f.commentErr
	}
	return "canned comment", nil
}

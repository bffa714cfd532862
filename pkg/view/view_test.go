package view

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/thomasgazzoni/xdumper/pkg/errors"
	"github.com/thomasgazzoni/xdumper/pkg/store"
	"github.com/thomasgazzoni/xdumper/pkg/twitter"
)

func setup(t *testing.T) (*Viewer, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "posts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

func storePost(t *testing.T, st *store.Store, target twitter.Target, id string, at time.Time, mutate func(*twitter.Post)) {
	t.Helper()
	p := &twitter.Post{
		ID:             id,
		CreatedAt:      at,
		AuthorID:       "1",
		AuthorHandle:   "alice",
		Text:           "post " + id,
		ConversationID: id,
		Raw:            json.RawMessage(`{}`),
	}
	if mutate != nil {
		mutate(p)
	}
	_, err := st.Upsert(context.Background(), p, target.Key())
	require.NoError(t, err)
}

func TestPostsNotFoundVsEmpty(t *testing.T) {
	v, st := setup(t)
	ctx := context.Background()
	target := twitter.UserTarget("alice")

	_, err := v.Posts(ctx, target, Options{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeNotFound), "never-scraped target is not found")

	// A scrape that stored nothing still records the timeline.
	require.NoError(t, st.UpdateTimelineInfo(ctx, target, "", ""))

	posts, err := v.Posts(ctx, target, Options{})
	require.NoError(t, err, "scraped-but-empty is not an error")
	assert.Empty(t, posts)
	assert.NotNil(t, posts)
}

func TestPostsOrderingAndFilters(t *testing.T) {
	v, st := setup(t)
	ctx := context.Background()
	target := twitter.UserTarget("alice")
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	storePost(t, st, target, "101", base, nil)
	storePost(t, st, target, "102", base.Add(time.Minute), func(p *twitter.Post) { p.IsRetweet = true })
	storePost(t, st, target, "103", base.Add(2*time.Minute), nil)
	require.NoError(t, st.UpdateTimelineInfo(ctx, target, "103", "101"))

	posts, err := v.Posts(ctx, target, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"103", "102", "101"}, postIDs(posts))

	posts, err = v.Posts(ctx, target, Options{OldestFirst: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "102"}, postIDs(posts))

	posts, err = v.Posts(ctx, target, Options{ExcludeRetweets: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"103", "101"}, postIDs(posts))
}

func TestThread(t *testing.T) {
	v, st := setup(t)
	ctx := context.Background()
	target := twitter.UserTarget("alice")
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"200", "201", "202"} {
		at := base.Add(time.Duration(i) * time.Minute)
		storePost(t, st, target, id, at, func(p *twitter.Post) { p.ConversationID = "200" })
	}

	posts, err := v.Thread(ctx, "200")
	require.NoError(t, err)
	assert.Equal(t, []string{"200", "201", "202"}, postIDs(posts), "threads read oldest first")

	_, err = v.Thread(ctx, "999")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeNotFound))
}

func TestConversationTargetKnownThroughExpansion(t *testing.T) {
	v, st := setup(t)
	ctx := context.Background()

	// Expansion during a user scrape stores conversation posts without a
	// conversation timeline row; the conversation is still viewable.
	storePost(t, st, twitter.UserTarget("alice"), "300", time.Now(), func(p *twitter.Post) { p.ConversationID = "300" })

	posts, err := v.Posts(ctx, twitter.ConversationTarget("300"), Options{})
	require.NoError(t, err)
	assert.Len(t, posts, 1)

	_, err = v.Posts(ctx, twitter.ConversationTarget("301"), Options{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeNotFound))
}

func TestSummary(t *testing.T) {
	v, st := setup(t)
	ctx := context.Background()
	target := twitter.UserTarget("alice")

	_, err := v.Summary(ctx, target)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeNotFound))

	storePost(t, st, target, "400", time.Now(), nil)
	require.NoError(t, st.UpdateTimelineInfo(ctx, target, "400", "400"))

	summary, err := v.Summary(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PostCount)
	assert.Equal(t, "400", summary.NewestPostID)
	assert.False(t, summary.LastScrapedAt.IsZero())
}

func postIDs(posts []twitter.Post) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

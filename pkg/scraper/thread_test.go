package scraper

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/thomasgazzoni/xdumper/pkg/errors"
	"github.com/thomasgazzoni/xdumper/pkg/twitter"
)

// selfThread builds a five-post thread by alice in conversation 900,
// plus one interloper reply by bob.
func selfThreadConversation() []json.RawMessage {
	at := func(i int) time.Time { return baseTime.Add(time.Duration(i) * time.Minute) }
	return []json.RawMessage{
		rawPost("900", at(0), "1", "alice", "thread root", map[string]interface{}{
			"conversationIdStr": "900",
		}),
		rawReply("901", at(1), "1", "alice", "900", "900", "1"),
		rawReply("902", at(2), "1", "alice", "900", "901", "1"),
		rawReply("903", at(3), "1", "alice", "900", "902", "1"),
		rawReply("904", at(4), "1", "alice", "900", "903", "1"),
		rawReply("950", at(5), "2", "bob", "900", "902", "1"),
	}
}

func TestThreadExpansionCompletesThread(t *testing.T) {
	conv := selfThreadConversation()

	// The timeline surfaces only the last post of the thread.
	backend := &fakeBackend{
		pages: []twitter.Page{
			page("", rawReply("904", baseTime.Add(4*time.Minute), "1", "alice", "900", "903", "1")),
		},
		conversation: map[string][]json.RawMessage{"900": conv},
	}
	e, st := newTestEngine(t, backend)
	ctx := context.Background()

	posts, result, err := drain(t, e.Start(ctx, twitter.UserTarget("alice"), Options{ExpandThreads: true}))
	require.NoError(t, err)

	assert.Equal(t, 1, backend.convCalls, "one expansion per conversation per run")
	assert.Equal(t, 1, result.Expanded)
	assert.Len(t, posts, 6, "surfaced post plus the five missing conversation posts")
	assert.Equal(t, "904", posts[0].ID, "timeline post emitted before expansion runs")

	// Every post by the thread author carries the flag, including the one
	// stored before expansion; the interloper stays unmarked.
	for _, id := range []string{"900", "901", "902", "903", "904"} {
		stored, err := st.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, stored, "thread post %s must be stored", id)
		assert.True(t, stored.IsSelfThread, "post %s", id)
	}
	interloper, err := st.Get(ctx, "950")
	require.NoError(t, err)
	require.NotNil(t, interloper, "interloper reply is stored")
	assert.False(t, interloper.IsSelfThread)
}

func TestThreadDetectionUsesStoredParent(t *testing.T) {
	ctx := context.Background()

	// Reply payload without an inline parent author; the parent is
	// already in the store from an earlier run.
	backend := &fakeBackend{
		pages: []twitter.Page{
			page("", rawPost("901", baseTime.Add(time.Minute), "1", "alice", "reply", map[string]interface{}{
				"conversationIdStr":   "900",
				"inReplyToTweetIdStr": "900",
			})),
		},
		conversation: map[string][]json.RawMessage{"900": selfThreadConversation()[:2]},
	}
	e, st := newTestEngine(t, backend)

	parent, err := twitter.Normalize(twitter.KindAPI, rawPost("900", baseTime, "1", "alice", "thread root", nil))
	require.NoError(t, err)
	_, err = st.Upsert(ctx, parent, "user:alice")
	require.NoError(t, err)

	_, result, err := drain(t, e.Start(ctx, twitter.UserTarget("alice"), Options{ExpandThreads: true}))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expanded, "stored parent by the same author triggers expansion")
}

func TestThreadDetectionConservativeNo(t *testing.T) {
	ctx := context.Background()

	// Reply to an unknown parent in an unknown conversation: no expansion.
	backend := &fakeBackend{
		pages: []twitter.Page{
			page("", rawPost("901", baseTime, "1", "alice", "reply", map[string]interface{}{
				"conversationIdStr":   "880",
				"inReplyToTweetIdStr": "880",
			})),
		},
	}
	e, _ := newTestEngine(t, backend)

	_, result, err := drain(t, e.Start(ctx, twitter.UserTarget("alice"), Options{ExpandThreads: true}))
	require.NoError(t, err)
	assert.Zero(t, result.Expanded)
	assert.Zero(t, backend.convCalls, "unknown parent means no network spent on expansion")
}

func TestThreadExpansionFailureIsWarning(t *testing.T) {
	backend := &fakeBackend{
		pages: []twitter.Page{
			page("", rawReply("904", baseTime, "1", "alice", "900", "903", "1")),
		},
		convErr: errs.New(errs.ErrorTypeServerError, "overloaded"),
	}
	e, _ := newTestEngine(t, backend)

	posts, result, err := drain(t, e.Start(context.Background(), twitter.UserTarget("alice"), Options{ExpandThreads: true}))
	require.NoError(t, err, "a backend-side expansion failure does not fail the run")

	assert.Len(t, posts, 1)
	assert.Zero(t, result.Expanded)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "900")
	assert.Equal(t, StopExhausted, result.StopReason)
	assert.False(t, result.Incomplete)
}

func TestThreadExpansionStoreFailureStopsRun(t *testing.T) {
	backend := &fakeBackend{
		pages: []twitter.Page{
			page("", rawReply("904", baseTime, "1", "alice", "900", "903", "1")),
		},
		conversation: map[string][]json.RawMessage{"900": selfThreadConversation()},
	}
	e, st := newTestEngine(t, backend)
	backend.convHook = func() { st.Close() }

	_, result, err := drain(t, e.Start(context.Background(), twitter.UserTarget("alice"), Options{ExpandThreads: true}))
	require.Error(t, err, "losing the store mid-expansion is not a warning")

	assert.True(t, errs.Is(err, errs.ErrorTypeStoreFailure))
	assert.True(t, result.Incomplete)
	assert.Equal(t, StopStoreFailure, result.StopReason)
	for _, w := range result.Warnings {
		assert.NotContains(t, w, "thread expansion failed")
	}
}

func TestConversationTargetRunsExpansionDirectly(t *testing.T) {
	backend := &fakeBackend{
		conversation: map[string][]json.RawMessage{"900": selfThreadConversation()},
	}
	e, st := newTestEngine(t, backend)
	ctx := context.Background()

	target := twitter.ConversationTarget("900")
	posts, result, err := drain(t, e.Start(ctx, target, Options{}))
	require.NoError(t, err)

	assert.Len(t, posts, 6)
	assert.Zero(t, backend.fetchCalls, "no page loop for a conversation target")
	assert.Equal(t, StopExhausted, result.StopReason)

	stored, err := st.Conversation(ctx, "900")
	require.NoError(t, err)
	assert.Len(t, stored, 6, "conversation read returns exactly the conversation")
	assert.Equal(t, "900", stored[0].ID, "oldest first")
}

func TestConversationFilterDoesNotLeak(t *testing.T) {
	backend := &fakeBackend{
		pages: []twitter.Page{page("",
			rawPost("800", baseTime, "1", "alice", "unrelated", nil),
		)},
		conversation: map[string][]json.RawMessage{"900": selfThreadConversation()},
	}
	e, st := newTestEngine(t, backend)
	ctx := context.Background()

	_, _, err := drain(t, e.Start(ctx, twitter.UserTarget("alice"), Options{}))
	require.NoError(t, err)
	_, _, err = drain(t, e.Start(ctx, twitter.ConversationTarget("900"), Options{}))
	require.NoError(t, err)

	conv, err := st.Conversation(ctx, "900")
	require.NoError(t, err)
	for _, p := range conv {
		assert.Equal(t, "900", p.ConversationID)
	}
	assert.Len(t, conv, 6)
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/thomasgazzoni/xdumper/pkg/errors"
	"github.com/thomasgazzoni/xdumper/pkg/logger"
	"github.com/thomasgazzoni/xdumper/pkg/twitter"
)

func testCredentials() ClientOptions {
	return ClientOptions{
		Credentials: Credentials{AuthToken: "token", CT0: "csrf"},
	}
}

func newTestBackend(t *testing.T, handler http.HandlerFunc) *Backend {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	backend, err := NewBackend(testCredentials(), logger.Nop())
	require.NoError(t, err)
	backend.SetBaseURL(server.URL)
	return backend
}

func tweetEntry(id, createdAt, userID, screenName, text string) string {
	return fmt.Sprintf(`{
		"entryId": "tweet-%s",
		"content": {
			"entryType": "TimelineTimelineItem",
			"itemContent": {
				"itemType": "TimelineTweet",
				"tweet_results": {"result": {
					"rest_id": "%s",
					"core": {"user_results": {"result": {
						"rest_id": "%s",
						"core": {"screen_name": "%s"}
					}}},
					"legacy": {
						"id_str": "%s",
						"created_at": "%s",
						"full_text": "%s",
						"user_id_str": "%s",
						"conversation_id_str": "%s"
					}
				}}
			}
		}
	}`, id, id, userID, screenName, id, createdAt, text, userID, id)
}

func cursorEntry(value string) string {
	return fmt.Sprintf(`{
		"entryId": "cursor-bottom-0",
		"content": {"entryType": "TimelineTimelineCursor", "cursorType": "Bottom", "value": "%s"}
	}`, value)
}

func userTimelineBody(entries ...string) string {
	return fmt.Sprintf(`{"data": {"user": {"result": {"timeline_v2": {"timeline": {
		"instructions": [{"type": "TimelineAddEntries", "entries": [%s]}]
	}}}}}}`, strings.Join(entries, ","))
}

func TestFetchPageUser(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Cookie"), "auth_token=token")
		assert.Equal(t, "csrf", r.Header.Get("x-csrf-token"))

		switch {
		case strings.Contains(r.URL.Path, "UserByScreenName"):
			fmt.Fprint(w, `{"data": {"user": {"result": {"rest_id": "12"}}}}`)
		case strings.Contains(r.URL.Path, "UserTweetsAndReplies"):
			fmt.Fprint(w, userTimelineBody(
				tweetEntry("1005", "Fri Nov 22 20:08:47 +0000 2024", "12", "jack", "latest"),
				tweetEntry("1004", "Fri Nov 22 19:08:47 +0000 2024", "12", "jack", "earlier"),
				cursorEntry("cursor-next"),
			))
		default:
			t.Errorf("unexpected request path %s", r.URL.Path)
		}
	})

	page, err := backend.FetchPage(context.Background(), twitter.UserTarget("jack"), "")
	require.NoError(t, err)

	require.Len(t, page.Posts, 2)
	assert.Equal(t, "cursor-next", page.NextCursor)

	post, err := twitter.Normalize(twitter.KindAPI, page.Posts[0])
	require.NoError(t, err, "flattened payload must satisfy the API shape")
	assert.Equal(t, "1005", post.ID)
	assert.Equal(t, "12", post.AuthorID)
	assert.Equal(t, "jack", post.AuthorHandle)
	assert.Equal(t, "latest", post.Text)
}

func TestFetchPageResolvesUserOnce(t *testing.T) {
	resolutions := 0
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "UserByScreenName"):
			resolutions++
			fmt.Fprint(w, `{"data": {"user": {"result": {"rest_id": "12"}}}}`)
		default:
			fmt.Fprint(w, userTimelineBody(
				tweetEntry("1005", "Fri Nov 22 20:08:47 +0000 2024", "12", "jack", "x"),
				cursorEntry("next"),
			))
		}
	})

	ctx := context.Background()
	target := twitter.UserTarget("jack")
	_, err := backend.FetchPage(ctx, target, "")
	require.NoError(t, err)
	_, err = backend.FetchPage(ctx, target, "next")
	require.NoError(t, err)

	assert.Equal(t, 1, resolutions, "screen name resolution is cached across pages")
}

func TestFetchPageEmptyTimelineIsExhausted(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fmt.Sprintf(`{"data": {"list": {"tweets_timeline": {"timeline": {
			"instructions": [{"type": "TimelineAddEntries", "entries": [%s]}]
		}}}}}`, cursorEntry("dangling")))
	})

	page, err := backend.FetchPage(context.Background(), twitter.ListTarget("42"), "")
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	assert.Empty(t, page.NextCursor, "a postless page ends pagination even with a server cursor")
}

func TestFetchConversation(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "TweetDetail")
		fmt.Fprint(w, fmt.Sprintf(`{"data": {"threaded_conversation_with_injections_v2": {
			"instructions": [{"type": "TimelineAddEntries", "entries": [%s, %s]}]
		}}}`,
			tweetEntry("900", "Fri Nov 22 20:08:47 +0000 2024", "12", "jack", "root"),
			tweetEntry("901", "Fri Nov 22 20:09:47 +0000 2024", "12", "jack", "follow-up"),
		))
	})

	raws, err := backend.FetchConversation(context.Background(), "900")
	require.NoError(t, err)
	require.Len(t, raws, 2)

	post, err := twitter.Normalize(twitter.KindAPI, raws[1])
	require.NoError(t, err)
	assert.Equal(t, "901", post.ID)
}

func TestFetchPageAuthError(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := backend.FetchPage(context.Background(), twitter.ListTarget("42"), "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
}

func TestFetchPageRateLimited(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := backend.FetchPage(context.Background(), twitter.ListTarget("42"), "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeRateLimit))
}

func TestUserNotFound(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {"user": {}}}`)
	})

	_, err := backend.FetchPage(context.Background(), twitter.UserTarget("ghost"), "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeNotFound))
}

func TestNewBackendRequiresCookies(t *testing.T) {
	_, err := NewBackend(ClientOptions{}, logger.Nop())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
}

package twitter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/thomasgazzoni/xdumper/pkg/errors"
)

func TestNormalizeAPI(t *testing.T) {
	raw := json.RawMessage(`{
		"id": 1860000000000000001,
		"id_str": "1860000000000000001",
		"date": "2024-11-22T20:08:47Z",
		"user": {"id_str": "12", "username": "jack"},
		"rawContent": "just setting up my xdumper",
		"conversationIdStr": "1860000000000000000",
		"inReplyToTweetIdStr": "1860000000000000000",
		"inReplyToUser": {"id_str": "12"},
		"retweetedTweet": null,
		"quotedTweet": null,
		"media": {"photos": [{"url": "https://pbs.example/p.jpg"}], "videos": [], "animated": []}
	}`)

	post, err := Normalize(KindAPI, raw)
	require.NoError(t, err)

	assert.Equal(t, "1860000000000000001", post.ID)
	assert.Equal(t, time.Date(2024, 11, 22, 20, 8, 47, 0, time.UTC), post.CreatedAt.UTC())
	assert.Equal(t, "12", post.AuthorID)
	assert.Equal(t, "jack", post.AuthorHandle)
	assert.Equal(t, "just setting up my xdumper", post.Text)
	assert.Equal(t, "1860000000000000000", post.ConversationID)
	assert.Equal(t, "1860000000000000000", post.InReplyToID)
	assert.Equal(t, "12", post.InReplyToAuthorID)
	assert.False(t, post.IsRetweet)
	assert.False(t, post.IsQuote)
	assert.True(t, post.HasMedia)
	assert.False(t, post.IsSelfThread, "API payloads leave self-thread detection to reconstruction")
	assert.JSONEq(t, string(raw), string(post.Raw), "raw payload preserved verbatim")
}

func TestNormalizeAPINumericIDFallback(t *testing.T) {
	raw := json.RawMessage(`{
		"id": 42,
		"date": "2024-01-01T00:00:00Z",
		"user": {"id": 7, "username": "seven"},
		"rawContent": "hi"
	}`)

	post, err := Normalize(KindAPI, raw)
	require.NoError(t, err)
	assert.Equal(t, "42", post.ID)
	assert.Equal(t, "7", post.AuthorID)
	assert.Equal(t, "42", post.ConversationID, "conversation id defaults to the post's own id")
	assert.False(t, post.IsReply())
	assert.True(t, post.IsConversationRoot())
}

func TestNormalizeAPIRetweetAndQuote(t *testing.T) {
	raw := json.RawMessage(`{
		"id_str": "1", "date": "2024-01-01T00:00:00Z",
		"user": {"id_str": "7", "username": "seven"},
		"rawContent": "RT",
		"retweetedTweet": {"id_str": "0"},
		"quotedTweet": {"id_str": "0"}
	}`)

	post, err := Normalize(KindAPI, raw)
	require.NoError(t, err)
	assert.True(t, post.IsRetweet)
	assert.True(t, post.IsQuote)
	assert.False(t, post.HasMedia)
}

func TestNormalizeBrowser(t *testing.T) {
	raw := json.RawMessage(`{
		"rest_id": "1860000000000000002",
		"core": {"user_results": {"result": {
			"rest_id": "12",
			"core": {"screen_name": "jack"}
		}}},
		"legacy": {
			"id_str": "1860000000000000002",
			"created_at": "Fri Nov 22 20:08:47 +0000 2024",
			"full_text": "thread continues",
			"user_id_str": "12",
			"conversation_id_str": "1860000000000000000",
			"in_reply_to_status_id_str": "1860000000000000001",
			"in_reply_to_user_id_str": "12",
			"is_quote_status": false,
			"extended_entities": {"media": [{"type": "photo"}]}
		}
	}`)

	post, err := Normalize(KindBrowser, raw)
	require.NoError(t, err)

	assert.Equal(t, "1860000000000000002", post.ID)
	assert.Equal(t, "12", post.AuthorID)
	assert.Equal(t, "jack", post.AuthorHandle)
	assert.Equal(t, "thread continues", post.Text)
	assert.Equal(t, "1860000000000000000", post.ConversationID)
	assert.Equal(t, "1860000000000000001", post.InReplyToID)
	assert.Equal(t, "12", post.InReplyToAuthorID)
	assert.True(t, post.HasMedia)
	assert.Equal(t, time.Date(2024, 11, 22, 20, 8, 47, 0, time.UTC), post.CreatedAt.UTC())
	assert.True(t, post.IsSelfThread, "reply to own post is pre-flagged from the inline parent author")
}

func TestNormalizeBrowserNoteTweetText(t *testing.T) {
	raw := json.RawMessage(`{
		"rest_id": "9",
		"core": {"user_results": {"result": {"rest_id": "12", "legacy": {"screen_name": "jack"}}}},
		"legacy": {
			"id_str": "9",
			"created_at": "Fri Nov 22 20:08:47 +0000 2024",
			"full_text": "truncated…"
		},
		"note_tweet": {"note_tweet_results": {"result": {"text": "the full long post text"}}}
	}`)

	post, err := Normalize(KindBrowser, raw)
	require.NoError(t, err)
	assert.Equal(t, "the full long post text", post.Text)
	assert.Equal(t, "jack", post.AuthorHandle, "screen_name falls back to legacy user shape")
}

func TestNormalizeMalformed(t *testing.T) {
	tests := []struct {
		name string
		kind BackendKind
		raw  string
	}{
		{"api not json", KindAPI, `{{`},
		{"api missing id", KindAPI, `{"date": "2024-01-01T00:00:00Z", "user": {"id_str": "1", "username": "u"}}`},
		{"api missing author", KindAPI, `{"id_str": "1", "date": "2024-01-01T00:00:00Z"}`},
		{"api bad date", KindAPI, `{"id_str": "1", "date": "yesterday", "user": {"id_str": "1", "username": "u"}}`},
		{"browser missing id", KindBrowser, `{"legacy": {"created_at": "Fri Nov 22 20:08:47 +0000 2024"}}`},
		{"browser missing author", KindBrowser, `{"rest_id": "1", "legacy": {"created_at": "Fri Nov 22 20:08:47 +0000 2024"}}`},
		{"browser bad date", KindBrowser, `{"rest_id": "1", "legacy": {"user_id_str": "2", "created_at": "nope"}, "core": {"user_results": {"result": {"core": {"screen_name": "u"}}}}}`},
		{"unknown kind", BackendKind("rss"), `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.kind, json.RawMessage(tt.raw))
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.ErrorTypeMalformedPayload),
				"expected malformed_payload, got %v", err)
		})
	}
}

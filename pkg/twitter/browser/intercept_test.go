package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasgazzoni/xdumper/pkg/twitter"
)

func TestIsTimelineResponse(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://x.com/i/api/graphql/abc/UserTweetsAndReplies?variables=x", true},
		{"https://x.com/i/api/graphql/abc/ListLatestTweetsTimeline", true},
		{"https://x.com/i/api/graphql/abc/TweetDetail?x=1", true},
		{"https://x.com/i/api/graphql/abc/HomeTimeline", false},
		{"https://x.com/i/api/1.1/jot/client_event.json", false},
		{"https://abs.twimg.com/responsive-web/client-web/main.js", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isTimelineResponse(tt.url), tt.url)
	}
}

func TestExtractTweetResults(t *testing.T) {
	body := []byte(`{"data": {"user": {"result": {"timeline_v2": {"timeline": {
		"instructions": [
			{"type": "TimelinePinEntry", "entry": {
				"entryId": "tweet-1001",
				"content": {"entryType": "TimelineTimelineItem", "itemContent": {
					"tweet_results": {"result": {"rest_id": "1001"}}
				}}
			}},
			{"type": "TimelineAddEntries", "entries": [
				{"entryId": "tweet-1002", "content": {"entryType": "TimelineTimelineItem", "itemContent": {
					"tweet_results": {"result": {"rest_id": "1002"}}
				}}},
				{"entryId": "promoted-tweet-666", "content": {"entryType": "TimelineTimelineItem", "itemContent": {
					"tweet_results": {"result": {"rest_id": "666"}}
				}}},
				{"entryId": "profile-conversation-1", "content": {"entryType": "TimelineTimelineModule", "items": [
					{"item": {"itemContent": {"tweet_results": {"result": {"rest_id": "1003"}}}}},
					{"item": {"itemContent": {"tweet_results": {"result": {"rest_id": "1004"}}}}}
				]}},
				{"entryId": "cursor-bottom-0", "content": {"entryType": "TimelineTimelineCursor", "cursorType": "Bottom", "value": "x"}}
			]}
		]
	}}}}}}`)

	results := extractTweetResults(body)
	require.Len(t, results, 4, "pinned, plain, and module posts collected; promoted dropped")

	var restIDs []string
	for _, r := range results {
		restIDs = append(restIDs, string(r))
	}
	assert.Contains(t, restIDs[0], "1001")
	assert.Contains(t, restIDs[1], "1002")
	assert.Contains(t, restIDs[2], "1003")
	assert.Contains(t, restIDs[3], "1004")
}

func TestExtractTweetResultsUnwrapsVisibility(t *testing.T) {
	body := []byte(`{"data": {"threaded_conversation_with_injections_v2": {
		"instructions": [{"type": "TimelineAddEntries", "entries": [
			{"entryId": "tweet-1", "content": {"itemContent": {"tweet_results": {"result": {
				"__typename": "TweetWithVisibilityResults",
				"tweet": {"rest_id": "2001"}
			}}}}},
			{"entryId": "tweet-2", "content": {"itemContent": {"tweet_results": {"result": {
				"__typename": "TweetTombstone"
			}}}}}
		]}]
	}}}`)

	results := extractTweetResults(body)
	require.Len(t, results, 1, "tombstones dropped, visibility wrapper unwrapped")
	assert.Contains(t, string(results[0]), "2001")
}

func TestExtractTweetResultsGarbage(t *testing.T) {
	assert.Nil(t, extractTweetResults([]byte(`not json`)))
	assert.Nil(t, extractTweetResults([]byte(`{"data": {}}`)))
}

func TestTargetURL(t *testing.T) {
	assert.Equal(t, "https://x.com/i/lists/42", targetURL(twitter.ListTarget("42")))
	assert.Equal(t, "https://x.com/jack/with_replies", targetURL(twitter.UserTarget("Jack")))
	assert.Equal(t, "https://x.com/i/status/900", targetURL(twitter.ConversationTarget("900")))
}

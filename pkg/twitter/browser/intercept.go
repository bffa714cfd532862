package browser

import (
	"encoding/json"
	"strings"
)

// timelineOperations are the GraphQL operations worth intercepting while
// the page loads and scrolls.
var timelineOperations = []string{
	"UserTweets",
	"UserTweetsAndReplies",
	"ListLatestTweetsTimeline",
	"TweetDetail",
}

// isTimelineResponse reports whether a network response URL carries
// timeline data.
func isTimelineResponse(url string) bool {
	if !strings.Contains(url, "/i/api/graphql/") {
		return false
	}
	for _, op := range timelineOperations {
		if strings.Contains(url, "/"+op) {
			return true
		}
	}
	return false
}

type timelineEntry struct {
	EntryID string `json:"entryId"`
	Content struct {
		EntryType   string `json:"entryType"`
		ItemContent *struct {
			TweetResults struct {
				Result json.RawMessage `json:"result"`
			} `json:"tweet_results"`
		} `json:"itemContent"`
		Items []struct {
			Item struct {
				ItemContent *struct {
					TweetResults struct {
						Result json.RawMessage `json:"result"`
					} `json:"tweet_results"`
				} `json:"itemContent"`
			} `json:"item"`
		} `json:"items"`
	} `json:"content"`
}

// extractTweetResults pulls raw GraphQL tweet results out of an
// intercepted response body, in display order. The envelope differs per
// operation, so the walk looks for "instructions" arrays anywhere in the
// payload instead of binding to one envelope shape.
func extractTweetResults(body []byte) []json.RawMessage {
	var root interface{}
	if err := json.Unmarshal(body, &root); err != nil {
		return nil
	}

	var results []json.RawMessage
	walkInstructions(root, &results)
	return results
}

func walkInstructions(node interface{}, results *[]json.RawMessage) {
	switch v := node.(type) {
	case map[string]interface{}:
		for key, child := range v {
			if key == "instructions" {
				if list, ok := child.([]interface{}); ok {
					for _, ins := range list {
						collectFromInstruction(ins, results)
					}
					continue
				}
			}
			walkInstructions(child, results)
		}
	case []interface{}:
		for _, child := range v {
			walkInstructions(child, results)
		}
	}
}

func collectFromInstruction(ins interface{}, results *[]json.RawMessage) {
	raw, err := json.Marshal(ins)
	if err != nil {
		return
	}
	var parsed struct {
		Type    string          `json:"type"`
		Entries []timelineEntry `json:"entries"`
		Entry   *timelineEntry  `json:"entry"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return
	}

	entries := parsed.Entries
	if parsed.Entry != nil {
		entries = append(entries, *parsed.Entry)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.EntryID, "promoted") {
			continue
		}
		if e.Content.ItemContent != nil {
			appendResult(e.Content.ItemContent.TweetResults.Result, results)
		}
		for _, item := range e.Content.Items {
			if item.Item.ItemContent != nil {
				appendResult(item.Item.ItemContent.TweetResults.Result, results)
			}
		}
	}
}

func appendResult(raw json.RawMessage, results *[]json.RawMessage) {
	if len(raw) == 0 || string(raw) == "null" {
		return
	}
	var probe struct {
		Typename string          `json:"__typename"`
		Tweet    json.RawMessage `json:"tweet"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return
	}
	switch probe.Typename {
	case "TweetWithVisibilityResults":
		raw = probe.Tweet
	case "TweetTombstone", "TweetUnavailable":
		return
	}
	*results = append(*results, raw)
}

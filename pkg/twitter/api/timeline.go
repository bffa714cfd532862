package api

import (
	"encoding/json"
	"strings"
	"time"
)

// Timeline responses arrive as instruction lists; posts hide inside
// entry or module item content, the bottom cursor inside a cursor entry.

type timeline struct {
	Instructions []instruction `json:"instructions"`
}

type instruction struct {
	Type    string  `json:"type"`
	Entries []entry `json:"entries"`
	Entry   *entry  `json:"entry"`
}

type entry struct {
	EntryID string       `json:"entryId"`
	Content entryContent `json:"content"`
}

type entryContent struct {
	EntryType   string       `json:"entryType"`
	ItemContent *itemContent `json:"itemContent"`
	Items       []moduleItem `json:"items"`
	CursorType  string       `json:"cursorType"`
	Value       string       `json:"value"`
}

type moduleItem struct {
	Item struct {
		ItemContent *itemContent `json:"itemContent"`
	} `json:"item"`
}

type itemContent struct {
	ItemType     string `json:"itemType"`
	TweetResults struct {
		Result json.RawMessage `json:"result"`
	} `json:"tweet_results"`
}

// collectTimeline walks the instructions and returns the raw GraphQL
// tweet results in display order plus the bottom cursor, if any.
func collectTimeline(tl timeline) ([]json.RawMessage, string) {
	var results []json.RawMessage
	var cursor string

	for _, ins := range tl.Instructions {
		entries := ins.Entries
		if ins.Entry != nil {
			entries = append(entries, *ins.Entry)
		}
		for _, e := range entries {
			if strings.HasPrefix(e.EntryID, "promoted") {
				continue
			}
			switch {
			case e.Content.EntryType == "TimelineTimelineCursor":
				if e.Content.CursorType == "Bottom" {
					cursor = e.Content.Value
				}
			case e.Content.ItemContent != nil:
				if r := unwrapResult(e.Content.ItemContent.TweetResults.Result); r != nil {
					results = append(results, r)
				}
			case len(e.Content.Items) > 0:
				// Conversation modules nest their posts one level down.
				for _, item := range e.Content.Items {
					if item.Item.ItemContent == nil {
						continue
					}
					if r := unwrapResult(item.Item.ItemContent.TweetResults.Result); r != nil {
						results = append(results, r)
					}
				}
			}
		}
	}
	return results, cursor
}

// unwrapResult strips the TweetWithVisibilityResults wrapper and drops
// tombstoned or absent results.
func unwrapResult(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var probe struct {
		Typename string          `json:"__typename"`
		Tweet    json.RawMessage `json:"tweet"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil
	}
	switch probe.Typename {
	case "TweetWithVisibilityResults":
		return probe.Tweet
	case "TweetTombstone", "TweetUnavailable":
		return nil
	}
	return raw
}

// gqlTweet is the subset of a GraphQL tweet result that flattening needs
type gqlTweet struct {
	RestID string `json:"rest_id"`
	Core   struct {
		UserResults struct {
			Result struct {
				RestID string `json:"rest_id"`
				Core   struct {
					ScreenName string `json:"screen_name"`
				} `json:"core"`
				Legacy struct {
					ScreenName string `json:"screen_name"`
				} `json:"legacy"`
			} `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
	Legacy struct {
		IDStr                 string          `json:"id_str"`
		CreatedAt             string          `json:"created_at"`
		FullText              string          `json:"full_text"`
		UserIDStr             string          `json:"user_id_str"`
		ConversationIDStr     string          `json:"conversation_id_str"`
		InReplyToStatusIDStr  string          `json:"in_reply_to_status_id_str"`
		InReplyToUserIDStr    string          `json:"in_reply_to_user_id_str"`
		IsQuoteStatus         bool            `json:"is_quote_status"`
		RetweetedStatusResult json.RawMessage `json:"retweeted_status_result"`
		ExtendedEntities      struct {
			Media []struct {
				Type          string `json:"type"`
				MediaURLHTTPS string `json:"media_url_https"`
			} `json:"media"`
		} `json:"extended_entities"`
	} `json:"legacy"`
	NoteTweet struct {
		NoteTweetResults struct {
			Result struct {
				Text string `json:"text"`
			} `json:"result"`
		} `json:"note_tweet_results"`
	} `json:"note_tweet"`
	QuotedStatusResult json.RawMessage `json:"quoted_status_result"`
}

const gqlDateLayout = "Mon Jan 2 15:04:05 -0700 2006"

// flattenTweet converts a GraphQL tweet result into the snscrape-style
// document the normalizer's API shape expects. Conversion is best
// effort: fields that cannot be recovered are simply absent and the
// normalizer rejects the document downstream.
func flattenTweet(raw json.RawMessage) json.RawMessage {
	var t gqlTweet
	if err := json.Unmarshal(raw, &t); err != nil {
		return raw
	}

	doc := map[string]interface{}{}

	id := t.RestID
	if id == "" {
		id = t.Legacy.IDStr
	}
	if id != "" {
		doc["id_str"] = id
	}

	if at, err := time.Parse(gqlDateLayout, t.Legacy.CreatedAt); err == nil {
		doc["date"] = at.UTC().Format(time.RFC3339)
	}

	userID := t.Core.UserResults.Result.RestID
	if userID == "" {
		userID = t.Legacy.UserIDStr
	}
	screenName := t.Core.UserResults.Result.Core.ScreenName
	if screenName == "" {
		screenName = t.Core.UserResults.Result.Legacy.ScreenName
	}
	if userID != "" || screenName != "" {
		doc["user"] = map[string]interface{}{
			"id_str":   userID,
			"username": screenName,
		}
	}

	text := t.NoteTweet.NoteTweetResults.Result.Text
	if text == "" {
		text = t.Legacy.FullText
	}
	doc["rawContent"] = text

	if t.Legacy.ConversationIDStr != "" {
		doc["conversationIdStr"] = t.Legacy.ConversationIDStr
	}
	if t.Legacy.InReplyToStatusIDStr != "" {
		doc["inReplyToTweetIdStr"] = t.Legacy.InReplyToStatusIDStr
	}
	if t.Legacy.InReplyToUserIDStr != "" {
		doc["inReplyToUser"] = map[string]interface{}{"id_str": t.Legacy.InReplyToUserIDStr}
	}

	if isPresent(t.Legacy.RetweetedStatusResult) {
		doc["retweetedTweet"] = map[string]interface{}{}
	}
	if t.Legacy.IsQuoteStatus || isPresent(t.QuotedStatusResult) {
		doc["quotedTweet"] = map[string]interface{}{}
	}

	if len(t.Legacy.ExtendedEntities.Media) > 0 {
		photos := []map[string]interface{}{}
		videos := []map[string]interface{}{}
		for _, m := range t.Legacy.ExtendedEntities.Media {
			entry := map[string]interface{}{"url": m.MediaURLHTTPS}
			if m.Type == "photo" {
				photos = append(photos, entry)
			} else {
				videos = append(videos, entry)
			}
		}
		doc["media"] = map[string]interface{}{
			"photos": photos,
			"videos": videos,
		}
	}

	flat, err := json.Marshal(doc)
	if err != nil {
		return raw
	}
	return flat
}

func isPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

package twitter

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// TargetType discriminates the three timeline sources
type TargetType string

const (
	TargetList         TargetType = "list"
	TargetUser         TargetType = "user"
	TargetConversation TargetType = "conversation"
)

// Target is a resolved scrape/view target. Exactly one of ListID,
// ScreenName, or ConversationID is set, according to Type.
type Target struct {
	Type           TargetType
	ListID         string
	ScreenName     string
	ConversationID string
	// URL is the original URL the target was parsed from, if any
	URL string
}

// Key returns the stable storage key for the target,
// e.g. "list:1409181262510690310" or "user:jack".
func (t Target) Key() string {
	switch t.Type {
	case TargetList:
		return "list:" + t.ListID
	case TargetUser:
		return "user:" + strings.ToLower(t.ScreenName)
	case TargetConversation:
		return "conversation:" + t.ConversationID
	}
	return ""
}

func (t Target) String() string {
	return t.Key()
}

// ListTarget builds a list target from a numeric list id
func ListTarget(listID string) Target {
	return Target{Type: TargetList, ListID: listID}
}

// UserTarget builds a user target from a screen name (without @)
func UserTarget(screenName string) Target {
	return Target{Type: TargetUser, ScreenName: screenName}
}

// ConversationTarget builds a conversation target from a root post id
func ConversationTarget(conversationID string) Target {
	return Target{Type: TargetConversation, ConversationID: conversationID}
}

var (
	listPathRe = regexp.MustCompile(`^/i/lists/(\d+)$`)
	// /jack/status/123 or /i/status/123, trailing segments ignored
	statusPathRe = regexp.MustCompile(`^/(?:i|@?[A-Za-z0-9_]{1,15})/status/(\d+)(?:/.*)?$`)
	// /jack or /@jack, optionally /with_replies
	userPathRe = regexp.MustCompile(`^/@?([A-Za-z0-9_]{1,15})(?:/(?:with_replies)?)?$`)
)

// Path names that are never user profiles
var reservedPaths = map[string]bool{
	"i": true, "home": true, "explore": true, "search": true,
	"notifications": true, "messages": true, "settings": true,
	"compose": true, "intent": true,
}

// ParseURL parses an X/Twitter URL into a Target.
//
// Supported formats:
//   - https://x.com/i/lists/{list_id}
//   - https://x.com/{username}           (also /@{username}, /with_replies)
//   - https://x.com/{username}/status/{id}
//   - https://x.com/i/status/{id}
//
// Both x.com and twitter.com domains are accepted.
func ParseURL(rawURL string) (Target, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, fmt.Errorf("invalid URL: %w", err)
	}

	switch parsed.Host {
	case "x.com", "twitter.com", "www.x.com", "www.twitter.com":
	default:
		return Target{}, fmt.Errorf("unsupported domain: %q", parsed.Host)
	}

	path := strings.TrimSuffix(parsed.Path, "/")
	if path == "" {
		path = parsed.Path
	}

	if m := listPathRe.FindStringSubmatch(path); m != nil {
		t := ListTarget(m[1])
		t.URL = rawURL
		return t, nil
	}

	if m := statusPathRe.FindStringSubmatch(path); m != nil {
		t := ConversationTarget(m[1])
		t.URL = rawURL
		return t, nil
	}

	if m := userPathRe.FindStringSubmatch(path); m != nil {
		if !reservedPaths[strings.ToLower(m[1])] {
			t := UserTarget(m[1])
			t.URL = rawURL
			return t, nil
		}
	}

	return Target{}, fmt.Errorf("unsupported or unrecognized timeline URL: %s", rawURL)
}

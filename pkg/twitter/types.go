package twitter

import (
	"context"
	"encoding/json"
	"time"
)

// Post is the canonical, backend-independent post representation. Once
// stored it is immutable except for the IsSelfThread flag, which a later
// thread reconstruction pass may upgrade from false to true.
type Post struct {
	ID                string          `json:"id"`
	CreatedAt         time.Time       `json:"created_at"`
	AuthorID          string          `json:"author_id"`
	AuthorHandle      string          `json:"author_handle"`
	Text              string          `json:"text"`
	ConversationID    string          `json:"conversation_id"`
	InReplyToID       string          `json:"in_reply_to_id,omitempty"`
	InReplyToAuthorID string          `json:"in_reply_to_author_id,omitempty"`
	IsRetweet         bool            `json:"is_retweet"`
	IsQuote           bool            `json:"is_quote"`
	HasMedia          bool            `json:"has_media"`
	IsSelfThread      bool            `json:"is_self_thread"`
	Raw               json.RawMessage `json:"raw,omitempty"`
}

// IsReply reports whether the post replies to another post
func (p *Post) IsReply() bool {
	return p.InReplyToID != ""
}

// IsConversationRoot reports whether the post starts its conversation
func (p *Post) IsConversationRoot() bool {
	return p.ConversationID == p.ID
}

// BackendKind identifies which fetch backend produced a raw payload, and
// therefore which wire shape the normalizer should expect.
type BackendKind string

const (
	// KindAPI is the cookie-authenticated API client
	KindAPI BackendKind = "api"
	// KindBrowser is the browser-session client
	KindBrowser BackendKind = "browser"
)

// Page is the result of one backend call: raw posts in newest-first order
// plus the continuation cursor. An empty NextCursor means the source is
// exhausted.
type Page struct {
	Posts      []json.RawMessage
	NextCursor string
}

// Backend is the abstract paginated-fetch capability the engine consumes.
// The cursor is opaque: the engine forwards it unchanged and never
// inspects it.
type Backend interface {
	// Kind returns the payload shape this backend produces
	Kind() BackendKind

	// FetchPage returns one page of raw posts for the target, newest
	// first. An empty cursor requests the first page.
	FetchPage(ctx context.Context, target Target, cursor string) (*Page, error)

	// FetchConversation returns the raw posts of a full conversation,
	// oldest first.
	FetchConversation(ctx context.Context, conversationID string) ([]json.RawMessage, error)
}

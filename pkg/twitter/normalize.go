package twitter

import (
	"encoding/json"
	"strconv"
	"time"

	errs "github.com/thomasgazzoni/xdumper/pkg/errors"
)

// rubyDateLayout is the legacy created_at format,
// e.g. "Fri Nov 22 20:08:47 +0000 2024".
const rubyDateLayout = "Mon Jan 2 15:04:05 -0700 2006"

// Normalize converts one backend-specific raw payload into a canonical
// Post. It is a pure function: no I/O, no side effects. It fails with a
// malformed_payload error when id, author, or created_at are absent or
// unparsable; downstream components never see backend-specific shapes.
func Normalize(kind BackendKind, raw json.RawMessage) (*Post, error) {
	switch kind {
	case KindAPI:
		return normalizeAPI(raw)
	case KindBrowser:
		return normalizeBrowser(raw)
	default:
		return nil, errs.Newf(errs.ErrorTypeMalformedPayload, "unknown backend kind: %q", kind)
	}
}

// apiPayload is the snscrape-style shape produced by the API backend.
type apiPayload struct {
	ID    int64  `json:"id"`
	IDStr string `json:"id_str"`
	Date  string `json:"date"`
	User  struct {
		ID       int64  `json:"id"`
		IDStr    string `json:"id_str"`
		Username string `json:"username"`
	} `json:"user"`
	RawContent          string `json:"rawContent"`
	ConversationIDStr   string `json:"conversationIdStr"`
	InReplyToTweetIDStr string `json:"inReplyToTweetIdStr"`
	InReplyToUser       *struct {
		ID    int64  `json:"id"`
		IDStr string `json:"id_str"`
	} `json:"inReplyToUser"`
	RetweetedTweet json.RawMessage `json:"retweetedTweet"`
	QuotedTweet    json.RawMessage `json:"quotedTweet"`
	Media          *struct {
		Photos   []json.RawMessage `json:"photos"`
		Videos   []json.RawMessage `json:"videos"`
		Animated []json.RawMessage `json:"animated"`
	} `json:"media"`
}

func normalizeAPI(raw json.RawMessage) (*Post, error) {
	var p apiPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeMalformedPayload, err, "invalid api payload")
	}

	id := p.IDStr
	if id == "" && p.ID != 0 {
		id = strconv.FormatInt(p.ID, 10)
	}
	if id == "" {
		return nil, errs.New(errs.ErrorTypeMalformedPayload, "api payload missing post id")
	}

	authorID := p.User.IDStr
	if authorID == "" && p.User.ID != 0 {
		authorID = strconv.FormatInt(p.User.ID, 10)
	}
	if authorID == "" || p.User.Username == "" {
		return nil, errs.Newf(errs.ErrorTypeMalformedPayload, "api payload for %s missing author", id)
	}

	createdAt, err := time.Parse(time.RFC3339, p.Date)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeMalformedPayload, err, "api payload has unparsable date")
	}

	conversationID := p.ConversationIDStr
	if conversationID == "" {
		conversationID = id
	}

	hasMedia := p.Media != nil &&
		(len(p.Media.Photos) > 0 || len(p.Media.Videos) > 0 || len(p.Media.Animated) > 0)

	post := &Post{
		ID:             id,
		CreatedAt:      createdAt,
		AuthorID:       authorID,
		AuthorHandle:   p.User.Username,
		Text:           p.RawContent,
		ConversationID: conversationID,
		InReplyToID:    p.InReplyToTweetIDStr,
		IsRetweet:      isNonNull(p.RetweetedTweet),
		IsQuote:        isNonNull(p.QuotedTweet),
		HasMedia:       hasMedia,
		Raw:            raw,
	}

	if p.InReplyToUser != nil {
		if p.InReplyToUser.IDStr != "" {
			post.InReplyToAuthorID = p.InReplyToUser.IDStr
		} else if p.InReplyToUser.ID != 0 {
			post.InReplyToAuthorID = strconv.FormatInt(p.InReplyToUser.ID, 10)
		}
	}

	return post, nil
}

// graphqlPayload is the GraphQL tweet result shape intercepted by the
// browser backend.
type graphqlPayload struct {
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
			Media []json.RawMessage `json:"media"`
		} `json:"extended_entities"`
	} `json:"legacy"`
	NoteTweet struct {
		NoteTweetResults struct {
			Result struct {
				Text string `json:"text"`
			} `json:"result"`
		} `json:"note_tweet_results"`
	} `json:"note_tweet"`
}

func normalizeBrowser(raw json.RawMessage) (*Post, error) {
	var p graphqlPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeMalformedPayload, err, "invalid graphql payload")
	}

	id := p.Legacy.IDStr
	if id == "" {
		id = p.RestID
	}
	if id == "" {
		return nil, errs.New(errs.ErrorTypeMalformedPayload, "graphql payload missing post id")
	}

	authorID := p.Core.UserResults.Result.RestID
	if authorID == "" {
		authorID = p.Legacy.UserIDStr
	}
	screenName := p.Core.UserResults.Result.Core.ScreenName
	if screenName == "" {
		screenName = p.Core.UserResults.Result.Legacy.ScreenName
	}
	if authorID == "" || screenName == "" {
		return nil, errs.Newf(errs.ErrorTypeMalformedPayload, "graphql payload for %s missing author", id)
	}

	createdAt, err := time.Parse(rubyDateLayout, p.Legacy.CreatedAt)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeMalformedPayload, err, "graphql payload has unparsable created_at")
	}

	conversationID := p.Legacy.ConversationIDStr
	if conversationID == "" {
		conversationID = id
	}

	// Long posts carry their full text in note_tweet ("show more").
	text := p.NoteTweet.NoteTweetResults.Result.Text
	if text == "" {
		text = p.Legacy.FullText
	}

	post := &Post{
		ID:                id,
		CreatedAt:         createdAt,
		AuthorID:          authorID,
		AuthorHandle:      screenName,
		Text:              text,
		ConversationID:    conversationID,
		InReplyToID:       p.Legacy.InReplyToStatusIDStr,
		InReplyToAuthorID: p.Legacy.InReplyToUserIDStr,
		IsRetweet:         isNonNull(p.Legacy.RetweetedStatusResult),
		IsQuote:           p.Legacy.IsQuoteStatus,
		HasMedia:          len(p.Legacy.ExtendedEntities.Media) > 0,
		Raw:               raw,
	}

	// The GraphQL payload carries the parent author inline, so a reply to
	// the author's own post is already known to be a self thread here.
	if post.InReplyToID != "" && post.InReplyToAuthorID == post.AuthorID {
		post.IsSelfThread = true
	}

	return post, nil
}

func isNonNull(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

package api

import (
	"context"
	"encoding/json"
	"sync"

	errs "github.com/thomasgazzoni/xdumper/pkg/errors"
	"github.com/thomasgazzoni/xdumper/pkg/logger"
	"github.com/thomasgazzoni/xdumper/pkg/twitter"
)

// Backend pages timelines through the GraphQL API with cookie auth.
// Raw payloads are flattened to the normalizer's API shape before they
// leave this package.
type Backend struct {
	client *Client
	logger logger.Logger

	mu      sync.Mutex
	userIDs map[string]string // screen name -> user id
}

// NewBackend creates an authenticated API backend
func NewBackend(opts ClientOptions, log logger.Logger) (*Backend, error) {
	client, err := NewClient(opts, log)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Backend{
		client:  client,
		logger:  log,
		userIDs: make(map[string]string),
	}, nil
}

// SetBaseURL overrides the endpoint base. Used in tests.
func (b *Backend) SetBaseURL(base string) {
	b.client.SetBaseURL(base)
}

// Kind reports the raw payload shape this backend produces
func (b *Backend) Kind() twitter.BackendKind {
	return twitter.KindAPI
}

type graphqlErrors struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (g graphqlErrors) err() error {
	if len(g.Errors) == 0 {
		return nil
	}
	return errs.Newf(errs.ErrorTypeServerError, "graphql error: %s", g.Errors[0].Message)
}

type userTimelineResponse struct {
	graphqlErrors
	Data struct {
		User struct {
			Result struct {
				TimelineV2 struct {
					Timeline timeline `json:"timeline"`
				} `json:"timeline_v2"`
			} `json:"result"`
		} `json:"user"`
	} `json:"data"`
}

type listTimelineResponse struct {
	graphqlErrors
	Data struct {
		List struct {
			TweetsTimeline struct {
				Timeline timeline `json:"timeline"`
			} `json:"tweets_timeline"`
		} `json:"list"`
	} `json:"data"`
}

type conversationResponse struct {
	graphqlErrors
	Data struct {
		ThreadedConversation timeline `json:"threaded_conversation_with_injections_v2"`
	} `json:"data"`
}

type userByScreenNameResponse struct {
	graphqlErrors
	Data struct {
		User struct {
			Result struct {
				RestID string `json:"rest_id"`
			} `json:"result"`
		} `json:"user"`
	} `json:"data"`
}

// FetchPage fetches one timeline page for a list or user target
func (b *Backend) FetchPage(ctx context.Context, target twitter.Target, cursor string) (*twitter.Page, error) {
	var tl timeline

	switch target.Type {
	case twitter.TargetUser:
		userID, err := b.resolveUser(ctx, target.ScreenName)
		if err != nil {
			return nil, err
		}
		var resp userTimelineResponse
		if err := b.client.GetJSON(ctx, UserTweetsURL(b.client.baseURL, userID, cursor), &resp); err != nil {
			return nil, err
		}
		if err := resp.err(); err != nil {
			return nil, err
		}
		tl = resp.Data.User.Result.TimelineV2.Timeline

	case twitter.TargetList:
		var resp listTimelineResponse
		if err := b.client.GetJSON(ctx, ListTweetsURL(b.client.baseURL, target.ListID, cursor), &resp); err != nil {
			return nil, err
		}
		if err := resp.err(); err != nil {
			return nil, err
		}
		tl = resp.Data.List.TweetsTimeline.Timeline

	default:
		return nil, errs.Newf(errs.ErrorTypeUnknown, "cannot page a %s target", target.Type)
	}

	results, next := collectTimeline(tl)

	// A page with no posts means the timeline is exhausted regardless of
	// the cursor the server keeps handing back.
	if len(results) == 0 {
		next = ""
	}

	posts := make([]json.RawMessage, len(results))
	for i, r := range results {
		posts[i] = flattenTweet(r)
	}

	b.logger.DebugWithFields("fetched timeline page", map[string]interface{}{
		"target": target.Key(),
		"posts":  len(posts),
		"more":   next != "",
	})

	return &twitter.Page{Posts: posts, NextCursor: next}, nil
}

// FetchConversation fetches every reachable post of one conversation
func (b *Backend) FetchConversation(ctx context.Context, conversationID string) ([]json.RawMessage, error) {
	var resp conversationResponse
	if err := b.client.GetJSON(ctx, TweetDetailURL(b.client.baseURL, conversationID, ""), &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}

	results, _ := collectTimeline(resp.Data.ThreadedConversation)
	posts := make([]json.RawMessage, len(results))
	for i, r := range results {
		posts[i] = flattenTweet(r)
	}
	return posts, nil
}

// resolveUser maps a screen name to a user id, caching across pages
func (b *Backend) resolveUser(ctx context.Context, screenName string) (string, error) {
	b.mu.Lock()
	if id, ok := b.userIDs[screenName]; ok {
		b.mu.Unlock()
		return id, nil
	}
	b.mu.Unlock()

	var resp userByScreenNameResponse
	if err := b.client.GetJSON(ctx, UserByScreenNameURL(b.client.baseURL, screenName), &resp); err != nil {
		return "", err
	}
	if err := resp.err(); err != nil {
		return "", err
	}

	id := resp.Data.User.Result.RestID
	if id == "" {
		return "", errs.Newf(errs.ErrorTypeNotFound, "user %q not found", screenName)
	}

	b.mu.Lock()
	b.userIDs[screenName] = id
	b.mu.Unlock()
	return id, nil
}

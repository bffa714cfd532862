// Package view reads collected posts back out of the store. It never
// touches a backend: everything it returns was stored by an earlier run.
package view

import (
	"context"
	"time"

	errs "github.com/thomasgazzoni/xdumper/pkg/errors"
	"github.com/thomasgazzoni/xdumper/pkg/store"
	"github.com/thomasgazzoni/xdumper/pkg/twitter"
)

// Options filters and orders a view query
type Options struct {
	// Limit caps the result; 0 means everything
	Limit int
	// OldestFirst reverses the default newest-first order
	OldestFirst bool
	// ExcludeRetweets drops retweets
	ExcludeRetweets bool
	// ConversationID restricts the result to one conversation
	ConversationID string
	// SelfThreadOnly restricts the result to reconstructed self threads
	SelfThreadOnly bool
}

// Summary describes what the store holds for a target
type Summary struct {
	Target         twitter.Target
	PostCount      int
	FirstScrapedAt time.Time
	LastScrapedAt  time.Time
	NewestPostID   string
	OldestPostID   string
}

// Viewer answers offline queries against the post store
type Viewer struct {
	store *store.Store
}

// New creates a viewer over a store
func New(st *store.Store) *Viewer {
	return &Viewer{store: st}
}

// Posts returns stored posts for a target. A target that was never
// scraped is a not_found error; a scraped-but-empty target is an empty
// slice. The two are never conflated.
func (v *Viewer) Posts(ctx context.Context, target twitter.Target, opts Options) ([]twitter.Post, error) {
	known, err := v.known(ctx, target)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, errs.Newf(errs.ErrorTypeNotFound, "target %s has never been scraped", target.Key())
	}

	posts, err := v.store.Read(ctx, target, store.ReadOptions{
		OldestFirst:     opts.OldestFirst,
		Limit:           opts.Limit,
		ExcludeRetweets: opts.ExcludeRetweets,
		ConversationID:  opts.ConversationID,
		SelfThreadOnly:  opts.SelfThreadOnly,
	})
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []twitter.Post{}
	}
	return posts, nil
}

// Thread returns one stored conversation oldest first
func (v *Viewer) Thread(ctx context.Context, conversationID string) ([]twitter.Post, error) {
	posts, err := v.store.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, errs.Newf(errs.ErrorTypeNotFound, "conversation %s is not in the store", conversationID)
	}
	return posts, nil
}

// Summary reports the scrape history and stored count for a target
func (v *Viewer) Summary(ctx context.Context, target twitter.Target) (*Summary, error) {
	info, err := v.store.TimelineInfo(ctx, target)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, errs.Newf(errs.ErrorTypeNotFound, "target %s has never been scraped", target.Key())
	}

	count, err := v.store.Count(ctx, target)
	if err != nil {
		return nil, err
	}

	return &Summary{
		Target:         target,
		PostCount:      count,
		FirstScrapedAt: info.FirstScrapedAt,
		LastScrapedAt:  info.LastScrapedAt,
		NewestPostID:   info.NewestPostID,
		OldestPostID:   info.OldestPostID,
	}, nil
}

// known reports whether a target has ever been scraped. Conversations
// also count as known when thread expansion stored their posts during a
// run against some other target.
func (v *Viewer) known(ctx context.Context, target twitter.Target) (bool, error) {
	info, err := v.store.TimelineInfo(ctx, target)
	if err != nil {
		return false, err
	}
	if info != nil {
		return true, nil
	}
	if target.Type == twitter.TargetConversation {
		n, err := v.store.Count(ctx, target)
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}
	return false, nil
}

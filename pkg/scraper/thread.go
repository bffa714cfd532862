package scraper

import (
	"context"
	"encoding/json"

	errs "github.com/thomasgazzoni/xdumper/pkg/errors"
	"github.com/thomasgazzoni/xdumper/pkg/retry"
	"github.com/thomasgazzoni/xdumper/pkg/store"
	"github.com/thomasgazzoni/xdumper/pkg/twitter"
)

// isSelfThreadReply decides whether a newly-seen reply is part of its
// author's own thread. The decision uses only what is already at hand:
// the payload's inline parent author when present, otherwise a local
// store lookup of the parent, otherwise conversation-root ownership.
// No network round-trip is ever spent on detection; unknown means no.
func (e *Engine) isSelfThreadReply(ctx context.Context, post *twitter.Post) bool {
	if post.IsSelfThread {
		return true
	}
	if post.InReplyToID == "" {
		return false
	}
	if post.InReplyToAuthorID != "" {
		return post.InReplyToAuthorID == post.AuthorID
	}

	if parent, err := e.store.Get(ctx, post.InReplyToID); err == nil && parent != nil {
		return parent.AuthorID == post.AuthorID
	}
	if root, err := e.store.Get(ctx, post.ConversationID); err == nil && root != nil {
		return root.AuthorID == post.AuthorID
	}
	return false
}

// expandAll runs the queued conversation expansions, one fetch per
// conversation, after pagination has finished. A conversation the
// backend cannot serve is a warning on the run; a store failure or a
// cancellation ends the run like anywhere else.
func (e *Engine) expandAll(ctx context.Context, st *runState) error {
	for _, convID := range st.convSeq {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := e.expandConversation(ctx, st, convID, false)
		if err == nil {
			st.result.Expanded++
			continue
		}
		if errs.Is(err, errs.ErrorTypeStoreFailure) || ctx.Err() != nil {
			return err
		}
		st.result.Warnings = append(st.result.Warnings,
			"thread expansion failed for conversation "+convID+": "+err.Error())
		e.logger.WithError(err).WarnWithFields("thread expansion failed", map[string]interface{}{
			"conversation_id": convID,
		})
	}
	return nil
}

// expandConversation fetches a whole conversation, stores and emits what
// is new, and upgrades the self-thread flag on every post by the
// conversation root's author. Replies by other authors are stored
// unmarked.
func (e *Engine) expandConversation(ctx context.Context, st *runState, conversationID string, fatal bool) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	raws, err := retry.DoWithResult(func() ([]json.RawMessage, error) {
		return e.backend.FetchConversation(ctx, conversationID)
	}, retry.NewConfig(ctx, e.retryAttempts, e.retryBase, e.retryMax, e.logger))
	if err != nil {
		if fatal {
			return errs.Wrap(errs.ErrorTypeBackendUnavailable, err, "backend unavailable after retries")
		}
		return errs.Wrap(errs.ErrorTypeThreadExpansion, err, "conversation fetch failed")
	}

	conv := make([]*twitter.Post, 0, len(raws))
	for _, raw := range raws {
		post, err := twitter.Normalize(e.backend.Kind(), raw)
		if err != nil {
			st.result.Skipped++
			e.logger.WithError(err).Warn("skipping malformed record in conversation")
			continue
		}
		conv = append(conv, post)
	}

	rootAuthor := e.conversationRootAuthor(ctx, conversationID, conv)

	var threadIDs []string
	for _, post := range conv {
		if rootAuthor != "" && post.AuthorID == rootAuthor {
			post.IsSelfThread = true
			threadIDs = append(threadIDs, post.ID)
		}

		outcome, err := e.persist(ctx, st, post)
		if err != nil {
			return err
		}
		if outcome == store.AlreadyPresent {
			st.result.Duplicates++
			continue
		}

		st.trackBounds(post.ID)
		if err := emit(ctx, st.posts, *post); err != nil {
			st.result.StopReason = StopCancelled
			st.result.Incomplete = true
			return err
		}
		st.result.Inserted++
	}

	// Posts stored during pagination predate the flag; upgrade in place.
	if !st.opts.NoStore && len(threadIDs) > 0 {
		if err := e.store.MarkSelfThread(ctx, threadIDs...); err != nil {
			return err
		}
	}
	return nil
}

// conversationRootAuthor resolves who owns a conversation: the root post
// from the fetched batch, or the store if the root was seen earlier.
func (e *Engine) conversationRootAuthor(ctx context.Context, conversationID string, conv []*twitter.Post) string {
	for _, post := range conv {
		if post.ID == conversationID {
			return post.AuthorID
		}
	}
	if root, err := e.store.Get(ctx, conversationID); err == nil && root != nil {
		return root.AuthorID
	}
	return ""
}

package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/thomasgazzoni/xdumper/pkg/config"
	errs "github.com/thomasgazzoni/xdumper/pkg/errors"
	"github.com/thomasgazzoni/xdumper/pkg/logger"
	"github.com/thomasgazzoni/xdumper/pkg/ratelimit"
	"github.com/thomasgazzoni/xdumper/pkg/retry"
	"github.com/thomasgazzoni/xdumper/pkg/store"
	"github.com/thomasgazzoni/xdumper/pkg/twitter"
)

// StopReason records why a run ended
type StopReason string

const (
	// StopExhausted means the backend returned no next cursor
	StopExhausted StopReason = "exhausted"
	// StopMaxCount means the requested number of new posts was emitted
	StopMaxCount StopReason = "max_count"
	// StopMaxAge means a post older than the age cutoff was reached
	StopMaxAge StopReason = "max_age"
	// StopMaxPages means the page budget ran out
	StopMaxPages StopReason = "max_pages"
	// StopSaturated means consecutive pages held nothing new
	StopSaturated StopReason = "saturated"
	// StopBackendFailure means the backend stayed unavailable through retries
	StopBackendFailure StopReason = "backend_failure"
	// StopStoreFailure means persistence failed mid-run
	StopStoreFailure StopReason = "store_failure"
	// StopCancelled means the caller cancelled the context
	StopCancelled StopReason = "cancelled"
)

// Options bounds a single run. Zero values mean unbounded.
type Options struct {
	// MaxCount stops the run after this many newly-inserted posts
	MaxCount int
	// MaxAge stops the run at the first post older than now minus MaxAge
	MaxAge time.Duration
	// MaxPages caps the number of pages fetched
	MaxPages int
	// ExpandThreads fetches full conversations for self-thread replies
	// discovered during the run
	ExpandThreads bool
	// NoStore keeps the run entirely in memory: posts are emitted but
	// never written, deduplicated only within the run
	NoStore bool
	// Now overrides the clock; nil means time.Now
	Now func() time.Time
}

// Result summarizes a finished run
type Result struct {
	Inserted   int
	Duplicates int
	Skipped    int
	Pages      int
	Expanded   int
	StopReason StopReason
	// Incomplete is true when the run ended before the timeline was
	// exhausted or a requested bound was hit
	Incomplete bool
	Warnings   []string
}

// Engine drives sequential paginated collection for one backend and store
type Engine struct {
	backend twitter.Backend
	store   *store.Store
	limiter ratelimit.Limiter
	logger  logger.Logger

	retryAttempts int
	retryBase     time.Duration
	retryMax      time.Duration
}

// New creates an engine wired from config
func New(backend twitter.Backend, st *store.Store, cfg *config.Config, log logger.Logger) *Engine {
	var limiter ratelimit.Limiter = ratelimit.Unlimited()
	if cfg.RateLimit.RequestsPerMinute > 0 {
		limiter = ratelimit.NewTokenBucketWithBurst(cfg.RateLimit.RequestsPerMinute, time.Minute, cfg.RateLimit.BurstSize)
	}

	return &Engine{
		backend:       backend,
		store:         st,
		limiter:       limiter,
		logger:        log,
		retryAttempts: cfg.Retry.MaxAttempts,
		retryBase:     cfg.Retry.BaseDelay,
		retryMax:      cfg.Retry.MaxDelay,
	}
}

// SetLimiter replaces the rate limiter
func (e *Engine) SetLimiter(l ratelimit.Limiter) {
	e.limiter = l
}

// Run is a collection run in flight. Drain Posts, then call Wait.
type Run struct {
	posts  chan twitter.Post
	done   chan struct{}
	result *Result
	err    error
}

// Posts is the emission channel. It carries newly-inserted posts in page
// order and closes when the run ends. The engine blocks on an unconsumed
// channel; cancel the run's context to short-circuit.
func (r *Run) Posts() <-chan twitter.Post {
	return r.posts
}

// Wait blocks until the run has ended and returns its result. The posts
// channel must be drained first or Wait deadlocks.
func (r *Run) Wait() (*Result, error) {
	<-r.done
	return r.result, r.err
}

// Start begins a run against a target. Everything emitted and stored
// before a failure stands; there is no rollback.
func (e *Engine) Start(ctx context.Context, target twitter.Target, opts Options) *Run {
	r := &Run{
		posts: make(chan twitter.Post),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		defer close(r.posts)
		r.result, r.err = e.run(ctx, target, opts, r.posts)
	}()
	return r
}

// runState carries the mutable bookkeeping of one run
type runState struct {
	opts    Options
	target  twitter.Target
	posts   chan<- twitter.Post
	result  *Result
	now     time.Time
	seen    map[string]struct{} // NoStore in-run dedup
	convIDs map[string]struct{} // conversations queued for expansion
	convSeq []string
	newest  string
	oldest  string
}

func (e *Engine) run(ctx context.Context, target twitter.Target, opts Options, posts chan<- twitter.Post) (*Result, error) {
	now := time.Now()
	if opts.Now != nil {
		now = opts.Now()
	}

	st := &runState{
		opts:    opts,
		target:  target,
		posts:   posts,
		result:  &Result{},
		now:     now,
		seen:    make(map[string]struct{}),
		convIDs: make(map[string]struct{}),
	}

	log := e.logger.WithFields(map[string]interface{}{
		"target":  target.Key(),
		"backend": string(e.backend.Kind()),
	})
	log.Info("starting run")

	// A conversation target is a single expansion, not a page loop.
	if target.Type == twitter.TargetConversation {
		if err := e.expandConversation(ctx, st, target.ConversationID, true); err != nil {
			if st.result.StopReason == "" {
				st.result.StopReason = stopReasonFor(err)
			}
			st.result.Incomplete = true
			return st.result, err
		}
		st.result.StopReason = StopExhausted
		e.finishBookkeeping(ctx, st)
		return st.result, nil
	}

	err := e.paginate(ctx, st)
	if err == nil && st.opts.ExpandThreads {
		err = e.expandAll(ctx, st)
	}
	if err != nil && st.result.StopReason == "" {
		st.result.StopReason = stopReasonFor(err)
		st.result.Incomplete = true
	}
	e.finishBookkeeping(ctx, st)

	log.InfoWithFields("run finished", map[string]interface{}{
		"inserted":    st.result.Inserted,
		"duplicates":  st.result.Duplicates,
		"pages":       st.result.Pages,
		"stop_reason": string(st.result.StopReason),
	})
	return st.result, err
}

func (e *Engine) paginate(ctx context.Context, st *runState) error {
	var cursor string
	consecutiveAllDup := 0
	noLimits := st.opts.MaxCount == 0 && st.opts.MaxAge == 0 && st.opts.MaxPages == 0

	for {
		if err := ctx.Err(); err != nil {
			st.result.StopReason = StopCancelled
			st.result.Incomplete = true
			return err
		}

		page, err := e.fetchPage(ctx, st.target, cursor)
		if err != nil {
			if ctx.Err() != nil {
				st.result.StopReason = StopCancelled
				st.result.Incomplete = true
				return ctx.Err()
			}
			st.result.StopReason = StopBackendFailure
			st.result.Incomplete = true
			return errs.Wrap(errs.ErrorTypeBackendUnavailable, err, "backend unavailable after retries")
		}
		st.result.Pages++

		pageInserted, stopped, err := e.processPage(ctx, st, page.Posts)
		if err != nil {
			return err
		}
		if stopped {
			return nil
		}

		// Empty pages count too: a backend handing out cursors with no
		// posts must not keep an unbounded run alive.
		if pageInserted == 0 {
			consecutiveAllDup++
		} else {
			consecutiveAllDup = 0
		}

		switch {
		case page.NextCursor == "" && len(page.Posts) > 0 && pageInserted == 0:
			st.result.StopReason = StopSaturated
			return nil
		case page.NextCursor == "":
			st.result.StopReason = StopExhausted
			return nil
		case st.opts.MaxPages > 0 && st.result.Pages >= st.opts.MaxPages:
			st.result.StopReason = StopMaxPages
			return nil
		case noLimits && consecutiveAllDup >= 2:
			st.result.StopReason = StopSaturated
			return nil
		}

		cursor = page.NextCursor
	}
}

// processPage normalizes, stores, and emits one page in order. The bool
// return is true when a per-post bound stopped the run.
func (e *Engine) processPage(ctx context.Context, st *runState, raws []json.RawMessage) (int, bool, error) {
	pageInserted := 0
	for _, raw := range raws {
		post, err := twitter.Normalize(e.backend.Kind(), raw)
		if err != nil {
			st.result.Skipped++
			e.logger.WarnWithFields("skipping malformed record", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}

		if st.opts.MaxAge > 0 && post.CreatedAt.Before(st.now.Add(-st.opts.MaxAge)) {
			st.result.StopReason = StopMaxAge
			return pageInserted, true, nil
		}

		outcome, err := e.persist(ctx, st, post)
		if err != nil {
			return pageInserted, false, err
		}
		if outcome == store.AlreadyPresent {
			st.result.Duplicates++
			continue
		}

		pageInserted++
		st.trackBounds(post.ID)

		if st.opts.ExpandThreads && e.isSelfThreadReply(ctx, post) {
			st.queueExpansion(post.ConversationID)
		}

		if err := emit(ctx, st.posts, *post); err != nil {
			st.result.StopReason = StopCancelled
			st.result.Incomplete = true
			return pageInserted, false, err
		}
		st.result.Inserted++

		if st.opts.MaxCount > 0 && st.result.Inserted >= st.opts.MaxCount {
			st.result.StopReason = StopMaxCount
			return pageInserted, true, nil
		}
	}
	return pageInserted, false, nil
}

func (e *Engine) fetchPage(ctx context.Context, target twitter.Target, cursor string) (*twitter.Page, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return retry.DoWithResult(func() (*twitter.Page, error) {
		return e.backend.FetchPage(ctx, target, cursor)
	}, retry.NewConfig(ctx, e.retryAttempts, e.retryBase, e.retryMax, e.logger))
}

// persist writes a post, or records it in the in-memory set for NoStore runs
func (e *Engine) persist(ctx context.Context, st *runState, post *twitter.Post) (store.WriteOutcome, error) {
	if st.opts.NoStore {
		if _, ok := st.seen[post.ID]; ok {
			return store.AlreadyPresent, nil
		}
		st.seen[post.ID] = struct{}{}
		return store.Inserted, nil
	}
	return e.store.Upsert(ctx, post, st.target.Key())
}

func (st *runState) trackBounds(id string) {
	if st.newest == "" || idLess(st.newest, id) {
		st.newest = id
	}
	if st.oldest == "" || idLess(id, st.oldest) {
		st.oldest = id
	}
}

func (st *runState) queueExpansion(conversationID string) {
	if conversationID == "" {
		return
	}
	if _, ok := st.convIDs[conversationID]; ok {
		return
	}
	st.convIDs[conversationID] = struct{}{}
	st.convSeq = append(st.convSeq, conversationID)
}

func (e *Engine) finishBookkeeping(ctx context.Context, st *runState) {
	if st.opts.NoStore || ctx.Err() != nil {
		return
	}
	if err := e.store.UpdateTimelineInfo(ctx, st.target, st.newest, st.oldest); err != nil {
		st.result.Warnings = append(st.result.Warnings, "timeline bookkeeping failed: "+err.Error())
		e.logger.WithError(err).Warn("timeline bookkeeping failed")
	}
}

// stopReasonFor classifies a run-terminating error so a persistence
// failure is not reported as a backend outage
func stopReasonFor(err error) StopReason {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StopCancelled
	case errs.Is(err, errs.ErrorTypeStoreFailure):
		return StopStoreFailure
	default:
		return StopBackendFailure
	}
}

// emit sends a post or gives up when the caller cancels
func emit(ctx context.Context, posts chan<- twitter.Post, post twitter.Post) error {
	select {
	case posts <- post:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// idLess compares snowflake ids numerically, falling back to string order
func idLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

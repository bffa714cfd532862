// Package browser implements the browser backend: a Chrome instance
// driven over CDP that loads timelines the way a logged-in user would,
// while GraphQL responses are intercepted off the wire.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	errs "github.com/thomasgazzoni/xdumper/pkg/errors"
	"github.com/thomasgazzoni/xdumper/pkg/logger"
	"github.com/thomasgazzoni/xdumper/pkg/twitter"
)

const (
	// batchTimeout bounds how long a page fetch waits for an intercepted
	// timeline response before treating the timeline as exhausted
	batchTimeout = 20 * time.Second

	// scrollSettle gives the page a moment to fire its next request
	scrollSettle = 750 * time.Millisecond
)

// Options configures the browser backend
type Options struct {
	// ProfileDir is a persistent Chrome profile directory; reusing it
	// keeps the login session across runs
	ProfileDir string
	Headless   bool
	UserAgent  string
	// AuthToken and CT0 are injected as cookies before navigation
	AuthToken string
	CT0       string
}

// Backend drives a Chrome instance and pages timelines by scrolling.
// Cursors are synthetic: they number scroll rounds within one session.
type Backend struct {
	opts   Options
	logger logger.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewBackend creates a browser backend. The browser itself starts
// lazily on the first fetch.
func NewBackend(opts Options, log logger.Logger) *Backend {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Backend{
		opts:     opts,
		logger:   log,
		sessions: make(map[string]*session),
	}
}

// Kind reports the raw payload shape this backend produces
func (b *Backend) Kind() twitter.BackendKind {
	return twitter.KindBrowser
}

// session is one open tab scrolling through one target
type session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	batches chan []json.RawMessage
	scrolls int
}

// FetchPage returns the next batch of raw posts for a target. An empty
// cursor opens a fresh tab; subsequent calls scroll the same tab until
// no further timeline response arrives.
func (b *Backend) FetchPage(ctx context.Context, target twitter.Target, cursor string) (*twitter.Page, error) {
	key := target.Key()

	if cursor == "" {
		b.closeSession(key)
		s, err := b.openSession(ctx, targetURL(target))
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.sessions[key] = s
		b.mu.Unlock()
		return b.nextBatch(ctx, key, s, false)
	}

	b.mu.Lock()
	s := b.sessions[key]
	b.mu.Unlock()
	if s == nil {
		return nil, errs.Newf(errs.ErrorTypeUnknown, "no open session for cursor %q", cursor)
	}
	return b.nextBatch(ctx, key, s, true)
}

// FetchConversation loads a conversation page once and returns every
// intercepted post of the thread.
func (b *Backend) FetchConversation(ctx context.Context, conversationID string) ([]json.RawMessage, error) {
	s, err := b.openSession(ctx, "https://x.com/i/status/"+conversationID)
	if err != nil {
		return nil, err
	}
	defer s.cancel()

	select {
	case batch := <-s.batches:
		return batch, nil
	case <-time.After(batchTimeout):
		return nil, errs.Newf(errs.ErrorTypeNetwork, "no conversation response for %s", conversationID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts down all open sessions
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, s := range b.sessions {
		s.cancel()
		delete(b.sessions, key)
	}
}

func (b *Backend) nextBatch(ctx context.Context, key string, s *session, scroll bool) (*twitter.Page, error) {
	if scroll {
		if err := chromedp.Run(s.ctx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(scrollSettle),
		); err != nil {
			return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "scroll failed")
		}
	}

	select {
	case batch := <-s.batches:
		s.scrolls++
		b.logger.DebugWithFields("intercepted timeline batch", map[string]interface{}{
			"target": key,
			"posts":  len(batch),
			"scroll": s.scrolls,
		})
		return &twitter.Page{
			Posts:      batch,
			NextCursor: "scroll:" + strconv.Itoa(s.scrolls),
		}, nil
	case <-time.After(batchTimeout):
		// Nothing more is coming; the timeline is done.
		b.closeSession(key)
		return &twitter.Page{}, nil
	case <-ctx.Done():
		b.closeSession(key)
		return nil, ctx.Err()
	}
}

// openSession starts a tab, injects cookies, wires interception, and
// navigates to the target URL.
func (b *Backend) openSession(ctx context.Context, url string) (*session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("disable-gpu", true),
	)
	if b.opts.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(b.opts.ProfileDir))
	}
	if b.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		browserCancel()
		allocCancel()
	}

	s := &session{
		ctx:     browserCtx,
		cancel:  cancel,
		batches: make(chan []json.RawMessage, 8),
	}

	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || !isTimelineResponse(resp.Response.URL) {
			return
		}
		requestID := resp.RequestID
		go func() {
			c := chromedp.FromContext(browserCtx)
			body, err := network.GetResponseBody(requestID).Do(cdp.WithExecutor(browserCtx, c.Target))
			if err != nil {
				b.logger.WithError(err).Debug("failed to read intercepted response body")
				return
			}
			results := extractTweetResults(body)
			if len(results) == 0 {
				return
			}
			select {
			case s.batches <- results:
			case <-browserCtx.Done():
			}
		}()
	})

	if err := chromedp.Run(browserCtx,
		network.Enable(),
		b.cookieAction(),
		chromedp.Navigate(url),
	); err != nil {
		cancel()
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "failed to open browser session")
	}

	return s, nil
}

// cookieAction injects the session cookies for both domains the web
// client still uses.
func (b *Backend) cookieAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if b.opts.AuthToken == "" {
			return nil
		}
		cookies := map[string]string{
			"auth_token": b.opts.AuthToken,
			"ct0":        b.opts.CT0,
		}
		for _, domain := range []string{".x.com", ".twitter.com"} {
			for name, value := range cookies {
				if value == "" {
					continue
				}
				err := network.SetCookie(name, value).
					WithDomain(domain).
					WithPath("/").
					WithSecure(true).
					WithHTTPOnly(name == "auth_token").
					Do(ctx)
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (b *Backend) closeSession(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[key]; ok {
		s.cancel()
		delete(b.sessions, key)
	}
}

// targetURL maps a target back to the page that shows it
func targetURL(target twitter.Target) string {
	switch target.Type {
	case twitter.TargetList:
		return fmt.Sprintf("https://x.com/i/lists/%s", target.ListID)
	case twitter.TargetUser:
		return fmt.Sprintf("https://x.com/%s/with_replies", strings.ToLower(target.ScreenName))
	case twitter.TargetConversation:
		return "https://x.com/i/status/" + target.ConversationID
	}
	return "https://x.com"
}

// Package api implements the HTTP backend: authenticated calls against
// the GraphQL endpoints the web client uses, with cookie auth.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	errs "github.com/thomasgazzoni/xdumper/pkg/errors"
	"github.com/thomasgazzoni/xdumper/pkg/logger"
)

// bearerToken is the public web-client bearer; authorization comes from
// the account cookies, not from this token.
const bearerToken = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// Credentials is the cookie pair an authenticated session needs
type Credentials struct {
	AuthToken string
	CT0       string
}

// Client is an authenticated GraphQL API client
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	logger     logger.Logger
}

// ClientOptions configures a Client
type ClientOptions struct {
	Credentials Credentials
	UserAgent   string
	Proxy       string
	Timeout     time.Duration
}

// NewClient creates an API client authenticated by the given cookies
func NewClient(opts ClientOptions, log logger.Logger) (*Client, error) {
	if opts.Credentials.AuthToken == "" || opts.Credentials.CT0 == "" {
		return nil, errs.New(errs.ErrorTypeAuth, "account cookies (auth_token, ct0) are required")
	}
	if log == nil {
		log = logger.GetLogger()
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	transport := http.DefaultTransport
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "invalid proxy URL")
		}
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		headers: map[string]string{
			"Authorization":             "Bearer " + bearerToken,
			"User-Agent":                userAgent,
			"Accept":                    "*/*",
			"Accept-Language":           "en-US,en;q=0.9",
			"Content-Type":              "application/json",
			"Cookie":                    fmt.Sprintf("auth_token=%s; ct0=%s", opts.Credentials.AuthToken, opts.Credentials.CT0),
			"x-csrf-token":              opts.Credentials.CT0,
			"x-twitter-auth-type":       "OAuth2Session",
			"x-twitter-active-user":     "yes",
			"x-twitter-client-language": "en",
		},
		baseURL: BaseURL,
		logger:  log,
	}, nil
}

// SetBaseURL overrides the endpoint base. Used in tests.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

// GetJSON performs an authenticated GET and decodes the JSON response
func (c *Client) GetJSON(ctx context.Context, requestURL string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending API request", map[string]interface{}{
		"url": req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.Wrap(errs.ErrorTypeNetwork, err, "request failed")
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("API request completed", map[string]interface{}{
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read response body")
	}

	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse API response", map[string]interface{}{
			"url":          requestURL,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return errs.Wrap(errs.ErrorTypeMalformedPayload, err, "failed to parse API response")
	}

	return nil
}

func (c *Client) checkResponseStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &errs.Error{
			Type:    errs.ErrorTypeAuth,
			Message: "authentication rejected; cookies may have expired",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode == http.StatusNotFound:
		return &errs.Error{
			Type:    errs.ErrorTypeNotFound,
			Message: "resource not found",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &errs.Error{
			Type:    errs.ErrorTypeRateLimit,
			Message: "rate limit exceeded",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode >= 500:
		return &errs.Error{
			Type:    errs.ErrorTypeServerError,
			Message: "server error",
			Code:    resp.StatusCode,
		}
	default:
		return &errs.Error{
			Type:    errs.ErrorTypeUnknown,
			Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}
}

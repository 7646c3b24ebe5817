// Package vk implements the VideoAPI port over the VK HTTP API.
package vk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
	"github.com/ericfisherdev/vidrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.VideoAPI = (*Client)(nil)

// Defaults for the public VK endpoints.
const (
	DefaultBaseURL         = "https://api.vk.com"
	DefaultOAuthURL        = "https://oauth.vk.com"
	DefaultVersion         = "5.131"
	DefaultRequestInterval = 340 * time.Millisecond

	// redirectURI is the page VK sends the implicit-flow fragment to.
	redirectURI = "https://oauth.vk.com/blank.html"
	scope       = "video,offline,groups"
)

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	BaseURL         string
	OAuthURL        string
	ClientID        string
	Version         string
	RequestInterval time.Duration
	HTTPClient      *http.Client
}

// Client is a thin VK API transport. It spaces method calls according to the
// configured interval but never retries; callers own retry policy.
type Client struct {
	http     *http.Client
	limiter  *rate.Limiter
	baseURL  string
	oauthURL string
	clientID string
	version  string
}

// NewClient creates a Client from opts.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.OAuthURL == "" {
		opts.OAuthURL = DefaultOAuthURL
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.RequestInterval <= 0 {
		opts.RequestInterval = DefaultRequestInterval
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	return &Client{
		http:     opts.HTTPClient,
		limiter:  rate.NewLimiter(rate.Every(opts.RequestInterval), 1),
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		oauthURL: strings.TrimRight(opts.OAuthURL, "/"),
		clientID: opts.ClientID,
		version:  opts.Version,
	}
}

// envelope is the VK response wrapper: exactly one of the fields is set.
type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    *struct {
		Code    int    `json:"error_code"`
		Message string `json:"error_msg"`
	} `json:"error"`
}

// Call invokes method with params and returns the raw "response" payload.
func (c *Client) Call(ctx context.Context, token, method string, params url.Values) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for request slot: %w", err)
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("access_token", token)
	q.Set("v", c.version)

	endpoint := c.baseURL + "/method/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(q.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &model.TransportError{Op: method, Err: err}
	}
	defer resp.Body.Close()

	slog.Debug("api call", "method", method, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &model.TransportError{Op: method, StatusCode: resp.StatusCode}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &model.TransportError{Op: method, Err: fmt.Errorf("decode response: %w", err)}
	}
	if env.Error != nil {
		return nil, &model.APIError{Method: method, Code: env.Error.Code, Message: env.Error.Message}
	}
	if env.Response == nil {
		return nil, &model.TransportError{Op: method, Err: errors.New("response has neither result nor error")}
	}

	return env.Response, nil
}

// AuthorizeURL returns the implicit-flow authorization URL.
func (c *Client) AuthorizeURL() string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("display", "page")
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", scope)
	q.Set("response_type", "token")
	q.Set("v", c.version)
	return c.oauthURL + "/authorize?" + q.Encode()
}

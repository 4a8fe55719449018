package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Sentinel errors for server responses. Callers branch on these with
// errors.Is; the wrapped message carries the server's error detail.
var (
	// ErrAuth indicates missing, expired or rejected credentials (401/403).
	ErrAuth = errors.New("authentication failed")

	// ErrNotFound indicates the requested project or file does not exist (404).
	ErrNotFound = errors.New("not found")

	// ErrServer indicates a server-side failure (5xx) that persisted
	// through retries.
	ErrServer = errors.New("server failure")
)

// MinServerVersion is the oldest server release this client can talk to.
// Compared against the major.minor reported by the /ping endpoint.
const MinServerVersion = "2019.3"

// defaultTimeout bounds a single HTTP request. Large file transfers use
// per-chunk requests, so this does not need to cover a whole project.
const defaultTimeout = 60 * time.Second

// Client talks to one Mergin server. It is safe for concurrent use; the
// sync jobs share a single Client across their transfer workers.
type Client struct {
	baseURL   *url.URL
	authToken string
	userAgent string
	http      *http.Client
	log       *zap.Logger

	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithAuthToken sets the bearer token sent with every request.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = token }
}

// WithLogger sets the engine logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithRetry overrides the retry policy for read-only requests. Attempts
// is the total number of tries and is clamped to at least one, so a zero
// in a config file disables retries rather than all requests.
func WithRetry(attempts int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		if attempts < 1 {
			attempts = 1
		}
		c.retryAttempts = attempts
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithUserAgent overrides the User-Agent header, typically to embed the
// build version.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a Client for the given server URL.
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("server URL is required (set MERGIN_URL or run mergin login)")
	}
	u, err := url.Parse(strings.TrimSuffix(serverURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid server URL %q", serverURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("invalid server URL %q: expected http or https", serverURL)
	}

	c := &Client{
		baseURL:        u,
		userAgent:      "mergin-go",
		http:           &http.Client{Timeout: defaultTimeout},
		log:            zap.NewNop(),
		retryAttempts:  3,
		retryBaseDelay: 100 * time.Millisecond,
		retryMaxDelay:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL returns the server base URL the client is bound to.
func (c *Client) URL() string {
	return c.baseURL.String()
}

// endpoint joins the base URL with a request path and query values.
func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// newRequest builds a request with the standard headers applied.
func (c *Client) newRequest(ctx context.Context, method, urlStr string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	return req, nil
}

// do executes a request once and maps error statuses to sentinel errors.
// The caller owns the response body on success.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrServer, "request %s %s: %v", req.Method, req.URL.Path, err)
	}
	c.log.Debug("request complete",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 400 {
		return resp, nil
	}

	detail := readErrorDetail(resp)
	resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.Wrap(ErrAuth, detail)
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrap(ErrNotFound, detail)
	case resp.StatusCode >= 500:
		return nil, errors.Wrapf(ErrServer, "%s (status %d)", detail, resp.StatusCode)
	default:
		return nil, errors.Errorf("%s (status %d)", detail, resp.StatusCode)
	}
}

// doRetry executes a request with retries on transient failures. Only
// used for requests that are safe to repeat; the request body, when
// present, is rebuilt for every attempt via the bodyFn callback.
func (c *Client) doRetry(ctx context.Context, method, urlStr string, bodyFn func() io.Reader) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.log.Debug("retrying request",
				zap.String("path", urlStr), zap.Int("attempt", attempt), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		var body io.Reader
		if bodyFn != nil {
			body = bodyFn()
		}
		req, err := c.newRequest(ctx, method, urlStr, body)
		if err != nil {
			return nil, err
		}
		resp, err := c.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !errors.Is(err, ErrServer) {
			return nil, err
		}
	}
	if lastErr == nil {
		return nil, errors.Errorf("no request attempts made for %s", urlStr)
	}
	return nil, errors.Wrap(lastErr, "exhausted retries")
}

// backoff computes the delay before a retry attempt: exponential growth
// from the base delay, capped, with up to 25% random jitter to avoid
// synchronized retries across transfer workers.
func (c *Client) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1)))
	if delay > c.retryMaxDelay {
		delay = c.retryMaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

// getJSON performs a GET with retries and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, urlStr string, out interface{}) error {
	resp, err := c.doRetry(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode server response")
	}
	return nil
}

// postJSON performs a single POST with a JSON body and optionally decodes
// the JSON response into out (pass nil to discard it). POSTs are not
// retried: the push transaction endpoints are not idempotent.
func (c *Client) postJSON(ctx context.Context, urlStr string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "encode request body")
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, http.MethodPost, urlStr, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode server response")
	}
	return nil
}

// readErrorDetail extracts the "detail" field from a server error
// response, falling back to the raw body or status text.
func readErrorDetail(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return http.StatusText(resp.StatusCode)
	}
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(data))
}

// serverError is a convenience for formatting protocol violations.
func serverError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrServer, format, args...)
}

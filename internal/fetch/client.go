// Package fetch retrieves pages and API responses from external sources with
// a fixed delay between requests, retries for transient failures, and
// detection of anti-bot block pages.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/TobiSchelling/electwatch/internal/logger"
	"github.com/TobiSchelling/electwatch/internal/retry"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	defaultMinBodyLen = 64
	maxBodyBytes      = 16 << 20
	maxRedirects      = 10
)

// Options configures a Client.
type Options struct {
	// Delay is the minimum gap between two requests and the backoff unit.
	Delay   time.Duration
	Timeout time.Duration
	// MaxRetries defaults to 3 when zero; negative disables retries.
	MaxRetries int
	UserAgent  string
	// MinBodyLen is the shortest body accepted before it counts as blocked.
	MinBodyLen int
	// Header is sent with every request.
	Header http.Header
	Logger logger.Logger
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
	// Sleep overrides the wait between retries, mainly for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Request describes one call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	// MinBodyLen overrides Options.MinBodyLen when positive.
	MinBodyLen int
	// AllowEmpty disables block detection, for endpoints that may legitimately
	// return nothing.
	AllowEmpty bool
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
}

// Client performs rate-limited requests against one source.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	opts    Options
	log     logger.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = defaultMaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	if opts.MinBodyLen == 0 {
		opts.MinBodyLen = defaultMinBodyLen
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}

	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
		log:     log,
	}
}

// Get fetches url and checks the body for block pages.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: url})
}

// GetJSON fetches url and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, v any) error {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, URL: url, Header: header, MinBodyLen: 2})
	if err != nil {
		return err
	}
	return decodeJSON(resp, v)
}

// PostJSON sends body as JSON to url and decodes the JSON response into v.
func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, body, v any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/json")
	resp, err := c.Do(ctx, Request{Method: http.MethodPost, URL: url, Header: h, Body: payload, MinBodyLen: 2})
	if err != nil {
		return err
	}
	return decodeJSON(resp, v)
}

// Do performs req, waiting for the source's delay before every attempt and
// retrying transient failures with linear backoff.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: c.opts.MaxRetries,
		Delay:       c.opts.Delay,
		IsRetryable: IsTransient,
		Sleep:       c.opts.Sleep,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			c.log.Warn("Retrying source request",
				logger.String("url", req.URL),
				logger.Int("attempt", attempt),
				logger.Duration("wait", wait),
				logger.Error(err),
			)
		},
	}, func(ctx context.Context) error {
		var err error
		resp, err = c.once(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) once(ctx context.Context, req Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if c.opts.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.opts.UserAgent)
	}
	for k, vs := range c.opts.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for k, vs := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NetworkError(err, req.URL)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, NetworkError(err, req.URL)
	}

	if httpResp.StatusCode >= 400 {
		if httpResp.StatusCode == http.StatusForbidden {
			if reason, blocked := DetectBlock(raw, 0); blocked {
				return nil, BlockedError(reason, req.URL)
			}
		}
		return nil, ClassifyStatus(httpResp.StatusCode, req.URL)
	}

	if !req.AllowEmpty {
		minLen := c.opts.MinBodyLen
		if req.MinBodyLen > 0 {
			minLen = req.MinBodyLen
		}
		if reason, blocked := DetectBlock(raw, minLen); blocked {
			return nil, BlockedError(reason, req.URL)
		}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       raw,
		URL:        httpResp.Request.URL.String(),
	}, nil
}

func decodeJSON(resp *Response, v any) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return ParseError(err, resp.URL)
	}
	return nil
}

// Package gateway is the only component that performs HTTP I/O against the
// backend. It attaches the bearer token and normalizes every failure.
package gateway

import (
	"bytes"
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

	"eventfinder/internal/logging"
	"eventfinder/internal/tokenstore"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 4 << 20
)

type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Doer is what the resource services depend on.
type Doer interface {
	Do(ctx context.Context, req Request, out any) error
}

type Options struct {
	BaseURL    string
	Tokens     tokenstore.Store
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
}

type Client struct {
	baseURL string
	tokens  tokenstore.Store
	http    *http.Client
	log     *slog.Logger
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("gateway: invalid base URL %q", opts.BaseURL)
	}
	if opts.Tokens == nil {
		return nil, errors.New("gateway: token store is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: base,
		tokens:  opts.Tokens,
		http:    httpClient,
		log:     logging.OrDiscard(opts.Logger),
	}, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// Do performs one request. A 2xx body is decoded into out when out is
// non-nil; every other outcome is returned as *Failure.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		f := transportFailure(err)
		c.log.Warn("api request failed", "method", req.Method, "path", req.Path, "err", err)
		return f
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.log.Warn("api response read failed", "method", req.Method, "path", req.Path, "err", err)
		return transportFailure(err)
	}

	c.log.Debug("api request",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f := decodeFailure(resp.StatusCode, body)
		c.log.Warn("api request rejected", "method", req.Method, "path", req.Path, "status", resp.StatusCode, "detail", f.Detail)
		return f
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Failure{Kind: KindTransport, Status: resp.StatusCode, Detail: "malformed response body", Err: err}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, transportFailure(err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	token, ok, err := c.tokens.Get(ctx)
	if err != nil {
		return nil, StorageFailure(err)
	}
	if ok {
		httpReq.Header.Set("Authorization", "Token "+token)
	}
	return httpReq, nil
}

package keenetic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/kroleg/homelab/internal/logger"
)

// Client talks to a Keenetic router over its RCI HTTP API. It is the only
// package allowed to see the router's loosely-typed payloads; everything
// it returns upward is a typed domain value.
//
// The router authenticates with a cookie session. The session is
// re-established transparently when the router answers 401, so callers
// only ever see logical success or failure.
type Client struct {
	baseURL  string
	login    string
	password string
	http     *http.Client
	log      logger.Logger

	// authMu serializes re-authentication so concurrent reconciles do
	// not race the challenge handshake.
	authMu sync.Mutex
}

// Options configures a router client.
type Options struct {
	BaseURL  string        // ex: "http://192.168.1.1"
	Login    string        //
	Password string        //
	Timeout  time.Duration // per-request timeout (default 10s)
}

// New creates a router client. It does not contact the router; the first
// request authenticates lazily.
func New(opts Options, log logger.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("keenetic: base URL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("keenetic: cookie jar: %w", err)
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		login:    opts.Login,
		password: opts.Password,
		http: &http.Client{
			Jar:     jar,
			Timeout: opts.Timeout,
		},
		log: log,
	}, nil
}

// do performs one RCI request, re-authenticating and retrying once if the
// session has expired. out may be nil when the body is not needed.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return unavailable(method+" "+path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		if err := c.authenticate(ctx); err != nil {
			return err
		}
		resp, err = c.send(ctx, method, path, body)
		if err != nil {
			return unavailable(method+" "+path, err)
		}
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return unavailable(method+" "+path, fmt.Errorf("unexpected status %s", resp.Status))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return unavailable(method+" "+path, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

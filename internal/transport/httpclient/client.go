// Package httpclient is the outbound HTTP branch of the Dispatcher
// (spec §4.5). It is grounded on the teacher's webhook client but strips
// all retry/backoff logic: the core dispatches at most once per firing.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"
)

// UserAgent identifies this implementation to callback receivers.
const UserAgent = "timerd-dispatcher/1.0"

// Client is a process-wide, thread-safe singleton used by every
// Dispatcher's http branch (spec §9 "Outbound transport lifetimes").
type Client struct {
	http *http.Client
}

// New builds a Client tuned for many short-lived outbound calls, each
// bounded by its own per-request deadline (deadline is spec's
// dispatchDeadline, default 30s, applied as the http.Client's Timeout).
func New(deadline time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return &Client{http: &http.Client{Transport: transport, Timeout: deadline}}
}

// Post sends body to url with headers merged over the defaults
// (Content-Type and User-Agent), with defaults winning on Content-Type
// per spec §4.5. Success is the caller's responsibility to interpret
// from the returned status code.
func (c *Client) Post(ctx context.Context, url string, headers map[string]string, body []byte) (status int, respBody []byte, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	const maxReadBytes = 64 * 1024
	respBody, err = io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// Close releases idle connections. Called once during shutdown, after
// the last Dispatcher finishes (spec §9 teardown order).
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

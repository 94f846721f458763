// Package probe implements the fetch capability consumed by the engine:
// a single GET with a fixed timeout, a rotating User-Agent and a capped
// body read.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Response is everything the classifier needs from a probe.
type Response struct {
	Status int
	Body   string
}

// Fetcher is the capability the engine consumes. Implementations must
// honor ctx and never hang past their configured timeout.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

type Client struct {
	hc      *http.Client
	agents  []string
	next    atomic.Uint64
	maxBody int64
}

// maxBodyRead caps how much of a response body is read, anything beyond
// cannot change the classification.
const maxBodyRead = 1 << 20

// NewClient returns a Fetcher with the given per-probe timeout. agents
// rotate over probes, an empty list keeps the Go default User-Agent.
func NewClient(timeout time.Duration, agents []string) *Client {
	return &Client{
		hc: &http.Client{
			Timeout: timeout,
		},
		agents:  agents,
		maxBody: maxBodyRead,
	}
}

func (c *Client) Fetch(ctx context.Context, url string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, fmt.Errorf("new request %s: %w", url, err)
	}
	if len(c.agents) > 0 {
		req.Header.Set("User-Agent", c.agents[c.next.Add(1)%uint64(len(c.agents))])
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("GET %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return Response{}, fmt.Errorf("reading body of %s: %w", url, err)
	}
	return Response{Status: resp.StatusCode, Body: string(b)}, nil
}

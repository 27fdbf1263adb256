package traceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/gridtrace/internal/geometry"
	"github.com/roach88/gridtrace/internal/network"
	"github.com/roach88/gridtrace/internal/workflow"
)

const tracePath = "/trace"

// Client submits trace requests to a utility network service.
type Client struct {
	session    network.Session
	httpClient *http.Client
	maxElapsed time.Duration
	logger     *slog.Logger
	features   featureCache
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxElapsed bounds the total retry window.
func WithMaxElapsed(d time.Duration) Option {
	return func(c *Client) { c.maxElapsed = d }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the session's service URL. The session token, if
// set, is sent as a bearer credential on every request.
func New(session network.Session, opts ...Option) *Client {
	c := &Client{
		session:    session,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxElapsed: 2 * time.Minute,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunTrace implements workflow.TraceRunner. Transport errors and 5xx
// responses are retried with exponential backoff until ctx is cancelled or
// the retry window closes; 4xx responses fail immediately.
func (c *Client) RunTrace(ctx context.Context, req network.TraceRequest) (*network.TraceResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode trace request: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = c.maxElapsed

	var result *network.TraceResult
	attempt := 0
	operation := func() error {
		attempt++
		r, err := c.submit(ctx, body)
		if err != nil {
			c.logger.Warn("trace submission attempt failed",
				"session_id", req.SessionID,
				"trace_type", req.Type,
				"attempt", attempt,
				"error", err)
			return err
		}
		result = r
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("trace submission: %w", err)
	}
	return result, nil
}

// submit performs one POST to the trace endpoint.
func (c *Client) submit(ctx context.Context, body []byte) (*network.TraceResult, error) {
	url := strings.TrimRight(c.session.ServiceURL, "/") + tracePath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.session.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.session.Token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err // Transport error, retryable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return decodeResult(resp.Body)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("service error: %s", resp.Status)
	default:
		// Client errors will not heal on retry.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, backoff.Permanent(fmt.Errorf("trace rejected: %s: %s", resp.Status, strings.TrimSpace(string(msg))))
	}
}

// wireOutcome is the tagged union the service returns for one outcome.
type wireOutcome struct {
	Kind     string                   `json:"kind"`
	Elements []network.NetworkElement `json:"elements,omitempty"`
	Layer    string                   `json:"layer,omitempty"`
	Lines    []geometry.Polyline      `json:"lines,omitempty"`
}

type wireResult struct {
	Outcomes []wireOutcome `json:"outcomes"`
}

func decodeResult(r io.Reader) (*network.TraceResult, error) {
	var wire wireResult
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode trace result: %w", err))
	}

	result := &network.TraceResult{}
	for i, o := range wire.Outcomes {
		switch o.Kind {
		case "elements":
			result.Outcomes = append(result.Outcomes, network.ElementOutcome{Elements: o.Elements})
		case "geometry":
			result.Outcomes = append(result.Outcomes, network.GeometryOutcome{Layer: o.Layer, Lines: o.Lines})
		default:
			return nil, backoff.Permanent(fmt.Errorf("decode trace result: outcome %d has unknown kind %q", i, o.Kind))
		}
	}
	return result, nil
}

var _ workflow.TraceRunner = (*Client)(nil)

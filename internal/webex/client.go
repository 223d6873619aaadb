package webex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/vesaa/webexsync/internal/logging"
	"github.com/vesaa/webexsync/internal/metrics"
)

// maxBody caps how much of a response is read.
const maxBody = 8 << 20

// Client reads workspace data from the Webex API.
//
// Authentication failures are returned to the caller. Every other failure
// (network, non-2xx, decode, open breaker) is logged and reported as a nil
// result with a nil error: callers skip that unit of work.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *TokenManager
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBreaker replaces the default circuit breaker settings.
func WithBreaker(s BreakerSettings) ClientOption {
	return func(c *Client) { c.breaker = newBreaker(s) }
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, httpClient *http.Client, tokens *TokenManager, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
		limiter:    rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = newBreaker(DefaultBreakerSettings())
	}
	return c
}

// Workspaces lists the workspaces of the organization. Only the first page
// is read.
func (c *Client) Workspaces(ctx context.Context) ([]Workspace, error) {
	var out workspaceList
	ok, err := c.get(ctx, "workspaces", "/workspaces", nil, &out)
	if !ok {
		return nil, err
	}
	if out.Items == nil {
		out.Items = []Workspace{}
	}
	return out.Items, nil
}

// Capabilities returns the sensor capabilities of a workspace.
func (c *Client) Capabilities(ctx context.Context, workspaceID string) (map[string]Capability, error) {
	var out capabilitiesResponse
	path := "/workspaces/" + url.PathEscape(workspaceID) + "/capabilities"
	ok, err := c.get(ctx, "capabilities", path, nil, &out)
	if !ok {
		return nil, err
	}
	if out.Capabilities == nil {
		out.Capabilities = map[string]Capability{}
	}
	return out.Capabilities, nil
}

// WorkspaceMetrics returns the series of one metric for a workspace. An
// empty Items slice means no data in the window.
func (c *Client) WorkspaceMetrics(ctx context.Context, workspaceID, metricName, aggregation string) (*MetricSeries, error) {
	q := url.Values{
		"workspaceId": {workspaceID},
		"metricName":  {metricName},
		"aggregation": {aggregation},
	}
	var out MetricSeries
	ok, err := c.get(ctx, "workspaceMetrics", "/workspaceMetrics", q, &out)
	if !ok {
		return nil, err
	}
	if out.MetricName == "" {
		out.MetricName = metricName
	}
	return &out, nil
}

// get performs an authenticated GET and decodes the body into v. It reports
// false when the result must be skipped; err is non-nil only for
// authentication failures.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, v any) (bool, error) {
	if err := c.tokens.EnsureValid(ctx); err != nil {
		return false, err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	log := logging.With().Str("operation", op).Str("url", endpoint).Logger()

	if err := c.limiter.Wait(ctx); err != nil {
		metrics.RemoteRequests.WithLabelValues(op, "rejected").Inc()
		log.Error().Err(err).Msg("Rate limiter wait aborted")
		return false, nil
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, endpoint)
	})
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RemoteRequests.WithLabelValues(op, "rejected").Inc()
		log.Warn().Err(err).Msg("Request rejected by circuit breaker")
		return false, nil
	default:
		metrics.RemoteRequests.WithLabelValues(op, "failure").Inc()
		log.Error().Err(err).Msg("Webex request failed")
		return false, nil
	}

	if err := json.Unmarshal(body, v); err != nil {
		metrics.RemoteRequests.WithLabelValues(op, "failure").Inc()
		log.Error().Err(err).Msg("Decoding Webex response failed")
		return false, nil
	}
	metrics.RemoteRequests.WithLabelValues(op, "success").Inc()
	return true, nil
}

func (c *Client) do(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.tokens.Token())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	return body, nil
}

// StatusError is a non-2xx API response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webex returned status %d: %s", e.Code, e.Body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package client provides a client for the Machinist metrics ingestion endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Eotel/go-machinist/client/transport"
	"github.com/Eotel/go-machinist/model"
)

// DefaultURL is the production ingestion endpoint.
const DefaultURL = "https://gw.machinist.iij.jp/endpoint"

const defaultTimeout = 10 * time.Second

// Client accumulates metrics for one agent and posts them in a single request.
type Client struct {
	url       string
	apiKey    string
	agentName string
	headers   http.Header

	mu      sync.Mutex
	metrics []model.Metric

	httpClient *http.Client
	logger     *zap.SugaredLogger
	validate   *validator.Validate
	strict     bool
}

// Option configures a Client.
type Option func(*Client)

// WithURL overrides DefaultURL.
func WithURL(u string) Option {
	return func(c *Client) { c.url = u }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the log sink. Without it the client logs nothing.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) { c.logger = l }
}

// WithStrictValidation makes AddMetric reject out-of-range coordinates.
func WithStrictValidation() Option {
	return func(c *Client) { c.strict = true }
}

// New creates a client for agentName authenticated with apiKey.
func New(apiKey, agentName string, opts ...Option) (*Client, error) {
	c := &Client{
		url:       DefaultURL,
		apiKey:    apiKey,
		agentName: agentName,
		metrics:   []model.Metric{},
	}
	for _, opt := range opts {
		opt(c)
	}

	var errs []error
	if c.url == "" {
		errs = append(errs, ErrMissingURL)
	}
	if c.apiKey == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if c.agentName == "" {
		errs = append(errs, ErrMissingAgentName)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if c.logger == nil {
		c.logger = zap.NewNop().Sugar()
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout:   defaultTimeout,
			Transport: &transport.LogRoundTripper{Logger: c.logger},
		}
	}
	c.validate = validator.New(validator.WithRequiredStructEnabled())
	c.headers = http.Header{}
	c.headers.Set("Content-Type", "application/json")
	c.headers.Set("Authorization", "Bearer "+c.apiKey)

	return c, nil
}

// URL returns the POST target.
func (c *Client) URL() string { return c.url }

// AgentName returns the agent every payload is reported for.
func (c *Client) AgentName() string { return c.agentName }

// Headers returns a copy of the request headers.
func (c *Client) Headers() http.Header { return c.headers.Clone() }

// Metrics returns a copy of the accumulated metrics.
func (c *Client) Metrics() []model.Metric {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Metric, len(c.metrics))
	copy(out, c.metrics)
	return out
}

// Body returns the payload as it would be sent now.
func (c *Client) Body() model.Body {
	return model.Body{Agent: c.agentName, Metrics: c.Metrics()}
}

// Payload serializes the current body.
func (c *Client) Payload() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(model.Body{Agent: c.agentName, Metrics: c.metrics})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return raw, nil
}

// AddMetric validates m and appends it to the payload.
func (c *Client) AddMetric(m model.Metric) error {
	if err := c.check(m); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidMetric, m.Name, err)
	}
	c.mu.Lock()
	c.metrics = append(c.metrics, m)
	c.mu.Unlock()
	return nil
}

// PostMetrics sends every accumulated metric in one request.
//
// Transport errors are returned as is. Any HTTP response, whatever its
// status, is logged and returned; the caller must close its body.
func (c *Client) PostMetrics(ctx context.Context) (*http.Response, error) {
	payload, err := c.Payload()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header = c.headers.Clone()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	c.logger.Info(StatusMessage(resp.StatusCode))
	return resp, nil
}

var statusMessages = map[int]string{
	http.StatusOK:                  "[OK] metrics sent successfully",
	http.StatusBadRequest:          "[Bad Request] malformed request",
	http.StatusUnauthorized:        "[Unauthorized Access] authentication failed",
	http.StatusConflict:            "[Conflict] resource limit reached",
	http.StatusUnprocessableEntity: "[Unprocessable Entity] request body parameter problem",
	http.StatusTooManyRequests:     "[Too Many Requests] rate limit exceeded",
}

// StatusMessage returns the log line for a response status code.
func StatusMessage(code int) string {
	if msg, ok := statusMessages[code]; ok {
		return msg
	}
	return strconv.Itoa(code)
}

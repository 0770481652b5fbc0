// Package adapterclient implements the HTTP contract the engine speaks to
// each registered ledger adapter: health checks, publish, and subscribe,
// wrapped in linear-backoff retries and a per-adapter circuit breaker.
package adapterclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"ied/internal/metrics"
	"ied/internal/models"
)

// Config controls retry and timeout behavior shared by every adapter client.
type Config struct {
	// AdapterTimeout bounds a single HTTP attempt.
	AdapterTimeout time.Duration

	// MaxAttempts is the total number of attempts per call, including the first.
	MaxAttempts int

	// RetryDelay is the base linear backoff unit: wait RetryDelay*attemptNumber
	// between attempts.
	RetryDelay time.Duration

	// Metrics receives circuit breaker state transitions, if set.
	Metrics *metrics.Metrics
}

// DefaultConfig returns the engine's documented default timeout and retry
// settings for an adapter client.
func DefaultConfig() Config {
	return Config{
		AdapterTimeout: 5 * time.Second,
		MaxAttempts:    3,
		RetryDelay:     1 * time.Second,
	}
}

// Result reports the outcome of a single adapter call. Clients never
// return transport errors into caller control flow for Publish/Subscribe;
// failures are reported structurally instead.
type Result struct {
	Success   bool
	Timestamp int64
	Error     string
}

// Client is an HTTP client bound to one adapter descriptor.
type Client struct {
	descriptor models.AdapterDescriptor
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// New builds a Client for descriptor.
func New(descriptor models.AdapterDescriptor, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        descriptor.Name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("adapter circuit breaker state changed",
				zap.String("adapter", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if cfg.Metrics != nil {
				cfg.Metrics.SetCircuitBreakerState(name, int(to))
			}
		},
	})

	return &Client{
		descriptor: descriptor,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.AdapterTimeout},
		breaker:    breaker,
		logger:     logger,
	}
}

// Name returns the adapter's configured name.
func (c *Client) Name() string { return c.descriptor.Name }

// ChainID returns the adapter's configured chain id.
func (c *Client) ChainID() string { return c.descriptor.ChainID }

type healthResponse struct {
	Status string `json:"status"`
}

// HealthCheck succeeds only when the adapter responds 200 with body
// {"status":"UP"}.
func (c *Client) HealthCheck(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.AdapterTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.descriptor.BaseURL+c.descriptor.HealthPath, nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Status == "UP"
}

// Publish posts req to the adapter's publish endpoint, retrying transport
// and 5xx errors with linear backoff. 4xx responses are terminal.
func (c *Client) Publish(ctx context.Context, req models.PublishRequest) Result {
	return c.doWithRetry(ctx, http.MethodPost, c.descriptor.PublishPath, req)
}

// SubscribeRequest is the body posted to an adapter's subscribe endpoint.
type SubscribeRequest struct {
	EventTypes           []string `json:"eventTypes"`
	NotificationEndpoint string   `json:"notificationEndpoint"`
	Metadata             []string `json:"metadata,omitempty"`
}

// Subscribe installs a subscription on the adapter, identical retry policy
// to Publish.
func (c *Client) Subscribe(ctx context.Context, req SubscribeRequest) Result {
	return c.doWithRetry(ctx, http.MethodPost, c.descriptor.SubscribePath, req)
}

// ListSubscriptions fetches the adapter's current subscriptions for
// diagnostic purposes. A failure here is not part of the engine's
// correctness path.
func (c *Client) ListSubscriptions(ctx context.Context) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.AdapterTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.descriptor.BaseURL+c.descriptor.SubscribePath, nil)
	if err != nil {
		return nil, fmt.Errorf("building list-subscriptions request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list-subscriptions request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading list-subscriptions response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("adapter %s returned status %d", c.descriptor.Name, resp.StatusCode)
	}
	return body, nil
}

// terminalStatusError marks a response status as a non-retryable 4xx.
type terminalStatusError struct {
	status int
	body   string
}

func (e *terminalStatusError) Error() string {
	return fmt.Sprintf("adapter rejected request: status %d: %s", e.status, e.body)
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, payload interface{}) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("marshaling request: %v", err)}
	}

	var lastErr error
	maxAttempts := c.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.attempt(ctx, method, path, body)
		})
		if err == nil {
			return Result{Success: true, Timestamp: time.Now().Unix()}
		}

		lastErr = err
		var terminal *terminalStatusError
		if ok := asTerminal(err, &terminal); ok {
			return Result{Success: false, Error: terminal.Error()}
		}

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return Result{Success: false, Error: ctx.Err().Error()}
		case <-time.After(time.Duration(attempt) * c.cfg.RetryDelay):
		}
	}

	return Result{Success: false, Error: lastErr.Error()}
}

func asTerminal(err error, target **terminalStatusError) bool {
	if te, ok := err.(*terminalStatusError); ok {
		*target = te
		return true
	}
	return false
}

func (c *Client) attempt(ctx context.Context, method, path string, body []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.AdapterTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.descriptor.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transport error calling %s: %w", c.descriptor.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &terminalStatusError{status: resp.StatusCode, body: string(respBody)}
	}
	return fmt.Errorf("adapter %s returned status %d: %s", c.descriptor.Name, resp.StatusCode, string(respBody))
}

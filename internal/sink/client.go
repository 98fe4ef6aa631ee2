// Package sink implements the sink client (C6): delivery of rendered
// webhook messages to the external monitoring API, with bounded retries,
// self-paced outbound calls, and a circuit breaker that fails fast during an
// outage instead of paying out a full retry budget on every request.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/rudipoppes/GenHook/internal/domain"
	"github.com/rudipoppes/GenHook/internal/pkg/metrics"
)

// Config holds the tunables from spec.md §6's sink section.
type Config struct {
	URL           string
	Username      string
	Password      string
	Timeout       time.Duration
	RetryAttempts int

	// BreakerCoolDown is how long the circuit stays open after retries are
	// exhausted against the sink. Requests made while open fail immediately
	// with domain.ErrSinkUnavailable.
	BreakerCoolDown time.Duration

	// RateLimit bounds outbound requests per second; zero disables pacing.
	// This smooths bursts into the connection pool — distinct from the
	// inbound rate limiting spec.md delegates to the front proxy.
	RateLimit float64
}

func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		RetryAttempts:   3,
		BreakerCoolDown: 30 * time.Second,
		RateLimit:       50,
	}
}

// Client sends rendered messages to the sink.
type Client struct {
	httpClient *http.Client
	cfg        Config
	limiter    *rate.Limiter
	breaker    *breaker
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New constructs a Client. redisClient is optional: pass nil to keep circuit
// breaker state local to this process. m is optional: pass nil to skip
// Prometheus instrumentation (e.g. in tests).
func New(cfg Config, redisClient *redis.Client, m *metrics.Metrics, logger *slog.Logger) *Client {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit))
	}

	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			// Redirects are never followed: spec.md §9 treats a 3xx from
			// the sink as a terminal rejection, so the response must come
			// back to us as-is rather than be chased automatically.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cfg:     cfg,
		limiter: limiter,
		breaker: newBreaker(redisClient, "default", cfg.BreakerCoolDown, m, logger),
		metrics: m,
		logger:  logger.With("component", "sink"),
	}
}

// Send POSTs msg to the sink with HTTP Basic credentials. It retries on
// network errors and 5xx responses up to cfg.RetryAttempts, with exponential
// backoff starting at ~1s. A 4xx or 3xx response is a terminal
// domain.ErrSinkRejected; retry exhaustion is domain.ErrSinkUnavailable.
func (c *Client) Send(ctx context.Context, msg domain.SinkMessage) error {
	start := time.Now()
	outcome := "success"
	defer func() {
		if c.metrics != nil {
			c.metrics.SinkRequestsTotal.WithLabelValues(outcome).Inc()
			c.metrics.SinkLatency.Observe(time.Since(start).Seconds())
		}
	}()

	if c.breaker.isOpen(ctx) {
		outcome = "unavailable"
		return fmt.Errorf("%w: circuit breaker open", domain.ErrSinkUnavailable)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		outcome = "rejected"
		return fmt.Errorf("%w: marshalling sink message: %v", domain.ErrSinkRejected, err)
	}

	attempts := c.cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if c.metrics != nil {
				c.metrics.SinkRetriesTotal.Inc()
			}
			backoff := time.Second * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				outcome = "unavailable"
				return fmt.Errorf("%w: %v", domain.ErrSinkUnavailable, ctx.Err())
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				outcome = "unavailable"
				return fmt.Errorf("%w: %v", domain.ErrSinkUnavailable, err)
			}
		}

		terminal, retryable, err := c.attempt(ctx, body)
		if err == nil {
			c.breaker.reset(ctx)
			return nil
		}
		if terminal {
			outcome = "rejected"
			return err
		}
		lastErr = err
		if !retryable {
			break
		}
		c.logger.Warn("sink send failed, retrying", "attempt", attempt+1, "error", err)
	}

	c.breaker.trip(ctx)
	outcome = "unavailable"
	return fmt.Errorf("%w: %v", domain.ErrSinkUnavailable, lastErr)
}

// attempt performs one HTTP round trip. terminal means the caller should
// stop retrying and surface err directly (already domain.ErrSinkRejected);
// retryable means the caller may try again.
func (c *Client) attempt(ctx context.Context, body []byte) (terminal, retryable bool, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return true, false, fmt.Errorf("%w: building request: %v", domain.ErrSinkRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Any transport-level error (connection refused, timeout, DNS
		// failure) is retryable; it never indicates the message itself
		// was rejected.
		return false, true, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, false, nil
	case resp.StatusCode >= 300 && resp.StatusCode < 500:
		return true, false, fmt.Errorf("%w: sink responded %d", domain.ErrSinkRejected, resp.StatusCode)
	default: // >= 500
		return false, true, fmt.Errorf("sink responded %d", resp.StatusCode)
	}
}

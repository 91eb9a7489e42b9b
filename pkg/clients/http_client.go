// Package clients provides the HTTP transport used to talk to the help desk
// API: connection reuse, HTTP/2, authentication, rate limiting, retries with
// backoff and a circuit breaker.
package clients

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/ticketsync/pkg/config"
	"github.com/ajitpratap0/ticketsync/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	RequestTimeout      time.Duration
	MaxIdleConnsPerHost int
	EnableHTTP2         bool
	UserAgent           string

	// Rate limiting; zero RateLimit disables it
	RateLimit float64
	RateBurst int

	// Retries on 429, 5xx and transport errors
	RetryAttempts int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	// Circuit breaker
	CircuitBreakerEnabled bool
	FailureThreshold      int
	OpenTimeout           time.Duration

	Credentials Credentials
	Headers     map[string]string
}

// DefaultHTTPConfig returns default configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		RequestTimeout:        config.DefaultRequestTimeout,
		MaxIdleConnsPerHost:   10,
		EnableHTTP2:           true,
		UserAgent:             "ticketsync/1.0",
		RateLimit:             10,
		RateBurst:             10,
		RetryAttempts:         5,
		RetryDelay:            time.Second,
		MaxRetryDelay:         time.Minute,
		CircuitBreakerEnabled: true,
		FailureThreshold:      10,
		OpenTimeout:           30 * time.Second,
	}
}

// HTTPConfigFrom maps the run configuration onto an HTTPConfig.
func HTTPConfigFrom(cfg *config.Config) *HTTPConfig {
	hc := DefaultHTTPConfig()
	hc.RequestTimeout = cfg.Source.Timeout()
	hc.RateLimit = cfg.Reliability.RateLimitPerSec
	hc.RateBurst = cfg.Reliability.RateBurst
	hc.RetryAttempts = cfg.Reliability.RetryAttempts
	hc.RetryDelay = cfg.Reliability.RetryDelay
	hc.MaxRetryDelay = cfg.Reliability.MaxRetryDelay
	hc.CircuitBreakerEnabled = cfg.Reliability.CircuitBreaker
	hc.FailureThreshold = cfg.Reliability.FailureThreshold
	hc.OpenTimeout = cfg.Reliability.OpenTimeout
	hc.Credentials = Credentials{
		AccessToken: cfg.Source.AccessToken,
		Email:       cfg.Source.Email,
		APIToken:    cfg.Source.APIToken,
	}
	hc.Headers = cfg.Source.MarketplaceHeaders()
	return hc
}

// StatusError is a retryable HTTP status (429 or 5xx) that survived or
// exhausted the retries.
type StatusError struct {
	StatusCode int
	URL        string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// RetryDelay returns the server supplied Retry-After, if any.
func (e *StatusError) RetryDelay() time.Duration {
	return e.RetryAfter
}

// HTTPClient performs GET requests against the API.
type HTTPClient struct {
	config     *HTTPConfig
	logger     *zap.Logger
	httpClient *http.Client
	transport  *http.Transport

	limiter        *rate.Limiter
	circuitBreaker *CircuitBreaker
	retry          *RetryPolicy
	metrics        *HTTPMetrics

	totalRequests  int64
	failedRequests int64
}

// NewHTTPClient creates an HTTP client. Metrics are registered with reg when
// it is not nil.
func NewHTTPClient(cfg *HTTPConfig, logger *zap.Logger, reg prometheus.Registerer) *HTTPClient {
	if cfg == nil {
		cfg = DefaultHTTPConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &HTTPClient{
		config:  cfg,
		logger:  logger.With(zap.String("component", "http_client")),
		metrics: NewHTTPMetrics(reg),
		retry:   NewRetryPolicy(cfg.RetryAttempts, cfg.RetryDelay, cfg.MaxRetryDelay),
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	if cfg.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			client.logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}
	client.transport = transport

	var rt http.RoundTripper = transport
	if len(cfg.Headers) > 0 {
		rt = &headerTransport{base: rt, headers: cfg.Headers}
	}
	rt = NewAuthTransport(rt, cfg.Credentials)

	client.httpClient = &http.Client{
		Transport: rt,
		Timeout:   cfg.RequestTimeout,
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	if cfg.CircuitBreakerEnabled {
		client.circuitBreaker = NewCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			Timeout:          cfg.OpenTimeout,
		}, logger)
	}

	return client
}

// Get performs a GET request, retrying rate limited, server and transport
// failures. The caller owns the returned response body. Non-retryable
// statuses (including 404) are returned as responses, not errors.
func (c *HTTPClient) Get(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	var resp *http.Response
	attempt := 0

	err := c.retry.ExecuteWithCondition(ctx, func() error {
		if attempt > 0 {
			c.metrics.RecordRetry()
		}
		attempt++

		r, err := c.do(ctx, rawURL, headers)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, func(err error) bool {
		if ctx.Err() != nil {
			return false
		}
		var statusErr *StatusError
		if stderrors.As(err, &statusErr) {
			return true
		}
		return errors.IsRetryable(err) && !stderrors.Is(err, ErrCircuitOpen)
	})
	if err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		return nil, err
	}
	return resp, nil
}

func (c *HTTPClient) do(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeRateLimit, "rate limiter wait failed")
		}
	}

	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		return nil, ErrCircuitOpen
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	atomic.AddInt64(&c.totalRequests, 1)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordRequest(http.MethodGet, 0, time.Since(start))
		c.recordFailure()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
	}
	c.metrics.RecordRequest(http.MethodGet, resp.StatusCode, time.Since(start))

	c.logger.Debug("request",
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.String("etag", headerOr(resp.Header, "ETag")),
		zap.String("request_id", headerOr(resp.Header, "X-Request-Id")))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 500 {
			c.recordFailure()
		} else if c.circuitBreaker != nil {
			c.circuitBreaker.Release()
		}
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			URL:        rawURL,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordSuccess()
	}
	return resp, nil
}

func (c *HTTPClient) recordFailure() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordFailure()
	}
}

// Stats returns the request counters.
func (c *HTTPClient) Stats() (total, failed int64) {
	return atomic.LoadInt64(&c.totalRequests), atomic.LoadInt64(&c.failedRequests)
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

func headerOr(h http.Header, key string) string {
	if v := h.Get(key); v != "" {
		return v
	}
	return "Not present"
}

// parseRetryAfter accepts delta seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

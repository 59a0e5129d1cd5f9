package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout-reconciler/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

const maxResponseBody = 1 << 20

// serverError marks a 5xx reply so the breaker counts it and retry tries
// again.
type serverError struct {
	status int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("processor returned HTTP %d", e.status)
}

// FlutterwaveClient talks to the Flutterwave v3 API.
type FlutterwaveClient struct {
	baseURL   string
	secretKey string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[*Response]
	retry     retry.Config
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

type FlutterwaveOption func(*FlutterwaveClient)

func WithHTTPClient(c *http.Client) FlutterwaveOption {
	return func(f *FlutterwaveClient) { f.http = c }
}

func WithRetry(cfg retry.Config) FlutterwaveOption {
	return func(f *FlutterwaveClient) { f.retry = cfg }
}

func WithBreaker(b *gobreaker.CircuitBreaker[*Response]) FlutterwaveOption {
	return func(f *FlutterwaveClient) { f.breaker = b }
}

func NewFlutterwaveClient(baseURL, secretKey string, metrics *observability.Metrics, logger zerolog.Logger, opts ...FlutterwaveOption) *FlutterwaveClient {
	c := &FlutterwaveClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		http:      &http.Client{Timeout: 15 * time.Second},
		retry:     retry.DefaultConfig(),
		metrics:   metrics,
		logger:    logger.With().Str("component", "flutterwave").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.breaker == nil {
		c.breaker = NewBreaker("flutterwave", DefaultBreakerSettings(), metrics)
	}

	userRetryIf := c.retry.RetryIf
	c.retry.RetryIf = func(err error) bool {
		// An open breaker will not close within a request's retry window.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return false
		}
		if errors.Is(err, context.Canceled) {
			return false
		}
		return userRetryIf == nil || userRetryIf(err)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = func(n uint, err error) {
			c.logger.Debug().Uint("attempt", n).Err(err).Msg("Retrying processor request")
		}
	}
	return c
}

// Request sends payload as JSON (nil sends no body) and returns the reply.
func (c *FlutterwaveClient) Request(ctx context.Context, method, endpoint string, payload any) (*Response, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", endpoint, err)
		}
	}

	resp, err := retry.DoWithResult(ctx, c.retry, func() (*Response, error) {
		return c.breaker.Execute(func() (*Response, error) {
			return c.do(ctx, method, endpoint, body)
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %w", domainErrors.ErrProviderUnavailable, err)
		}
		return nil, &domainErrors.TransportError{Method: method, Endpoint: pathOf(endpoint), Err: err}
	}
	return resp, nil
}

func (c *FlutterwaveClient) do(ctx context.Context, method, endpoint string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	httpResp, err := c.http.Do(req)
	if err != nil {
		c.observe(endpoint, "error", start)
		var netErr net.Error
		if ctx.Err() == nil && errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: %w", domainErrors.ErrProviderTimeout, err)
		}
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	c.observe(endpoint, strconv.Itoa(httpResp.StatusCode), start)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, &serverError{status: httpResp.StatusCode}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       raw,
	}, nil
}

func (c *FlutterwaveClient) observe(endpoint, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RemoteRequestDuration.WithLabelValues(pathOf(endpoint), status).Observe(time.Since(start).Seconds())
}

func pathOf(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}

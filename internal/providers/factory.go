package providers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/config"
	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout-reconciler/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes when the processor breaker opens.
type BreakerSettings struct {
	MinRequests  uint32
	FailureRatio float64
	Interval     time.Duration
	Timeout      time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:  10,
		FailureRatio: 0.6,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
	}
}

// NewBreaker builds a breaker that reports its state to metrics.
func NewBreaker(name string, s BreakerSettings, metrics *observability.Metrics) *gobreaker.CircuitBreaker[*Response] {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureRatio
		},
	}
	if metrics != nil {
		metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		}
		settings.IsSuccessful = func(err error) bool {
			result := "success"
			if err != nil {
				result = "failure"
			}
			metrics.CircuitBreakerRequests.WithLabelValues(name, result).Inc()
			return err == nil
		}
	}
	return gobreaker.NewCircuitBreaker[*Response](settings)
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// New builds the processor client selected by cfg.Driver.
func New(cfg config.ProcessorConfig, metrics *observability.Metrics, logger zerolog.Logger) (Client, error) {
	switch cfg.Driver {
	case "flutterwave":
		breaker := NewBreaker("flutterwave", BreakerSettings{
			MinRequests:  cfg.CircuitBreakerMinRequests,
			FailureRatio: cfg.CircuitBreakerFailureRatio,
			Interval:     60 * time.Second,
			Timeout:      cfg.CircuitBreakerTimeout,
		}, metrics)

		attempts := uint(1)
		if cfg.MaxRetries > 0 {
			attempts = uint(cfg.MaxRetries)
		}
		return NewFlutterwaveClient(cfg.BaseURL, cfg.SecretKey(), metrics, logger,
			WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
			WithBreaker(breaker),
			WithRetry(retry.Config{
				MaxAttempts:  attempts,
				InitialDelay: cfg.RetryDelay,
				MaxDelay:     10 * cfg.RetryDelay,
			}),
		), nil
	case "mock":
		logger.Warn().Msg("Using the in-memory mock processor; payments settle automatically")
		return NewMockProcessor(WithLatency(150*time.Millisecond), WithAutoSettle(true)), nil
	default:
		return nil, fmt.Errorf("unknown processor driver %q", cfg.Driver)
	}
}

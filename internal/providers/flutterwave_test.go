package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout-reconciler/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts uint) retry.Config {
	return retry.Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...FlutterwaveOption) (*FlutterwaveClient, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	opts = append([]FlutterwaveOption{WithRetry(fastRetry(3))}, opts...)
	return NewFlutterwaveClient(srv.URL, "FLWSECK_TEST-abc", metrics, zerolog.Nop(), opts...), metrics
}

func TestFlutterwaveClient_Initiate(t *testing.T) {
	var gotAuth, gotContentType string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, EndpointPayments, r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","message":"Hosted Link","data":{"link":"https://checkout.flutterwave.com/v3/hosted/pay/abc"}}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv)
	resp, err := client.Request(context.Background(), http.MethodPost, EndpointPayments, map[string]any{"tx_ref": "WOOC_482_1710000000"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer FLWSECK_TEST-abc", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "WOOC_482_1710000000", gotBody["tx_ref"])

	env, err := resp.DecodeEnvelope()
	require.NoError(t, err)
	link, err := env.Link()
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.flutterwave.com/v3/hosted/pay/abc", link)
}

func TestFlutterwaveClient_VerifyQueryString(t *testing.T) {
	var gotRef string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, EndpointVerifyByReference, r.URL.Path)
		gotRef = r.URL.Query().Get("tx_ref")
		w.Write([]byte(`{"status":"success","data":{"status":"successful","amount":5000,"currency":"NGN","tx_ref":"WOOC_482_1710000000"}}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv)
	resp, err := client.Request(context.Background(), http.MethodGet, VerifyEndpoint("WOOC_482_1710000000"), nil)
	require.NoError(t, err)
	assert.Equal(t, "WOOC_482_1710000000", gotRef)

	env, err := resp.DecodeEnvelope()
	require.NoError(t, err)
	rec, err := env.Record()
	require.NoError(t, err)
	assert.True(t, rec.Successful())
	assert.Equal(t, "NGN", rec.Currency)
}

func TestFlutterwaveClient_ClientErrorIsAResponse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"error","message":"No transaction was found for this id","data":null}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv)
	resp, err := client.Request(context.Background(), http.MethodGet, VerifyEndpoint("WOOC_1_TEST"), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")

	env, err := resp.DecodeEnvelope()
	require.NoError(t, err)
	assert.Equal(t, "error", env.Status)
	_, err = env.Record()
	assert.Error(t, err)
}

func TestFlutterwaveClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"status":"success","data":{}}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv)
	resp, err := client.Request(context.Background(), http.MethodGet, VerifyEndpoint("WOOC_1_TEST"), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFlutterwaveClient_TransportErrorAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, metrics := newTestClient(t, srv)
	_, err := client.Request(context.Background(), http.MethodGet, VerifyEndpoint("WOOC_1_TEST"), nil)
	require.Error(t, err)
	assert.True(t, domainErrors.IsTransportError(err))

	var te *domainErrors.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, EndpointVerifyByReference, te.Endpoint)
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.CircuitBreakerRequests.WithLabelValues("flutterwave", "failure")))
}

func TestFlutterwaveClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client, _ := newTestClient(t, srv)
	_, err := client.Request(context.Background(), http.MethodGet, VerifyEndpoint("WOOC_1_TEST"), nil)
	assert.True(t, domainErrors.IsTransportError(err))
}

func TestFlutterwaveClient_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	breaker := NewBreaker("flutterwave", BreakerSettings{MinRequests: 2, FailureRatio: 0.5, Interval: time.Minute, Timeout: time.Minute}, metrics)
	client := NewFlutterwaveClient(srv.URL, "key", metrics, zerolog.Nop(), WithRetry(fastRetry(1)), WithBreaker(breaker))

	for i := 0; i < 2; i++ {
		_, err := client.Request(context.Background(), http.MethodGet, VerifyEndpoint("WOOC_1_TEST"), nil)
		require.Error(t, err)
	}

	_, err := client.Request(context.Background(), http.MethodGet, VerifyEndpoint("WOOC_1_TEST"), nil)
	assert.ErrorIs(t, err, domainErrors.ErrProviderUnavailable)
	assert.Equal(t, int32(2), calls.Load(), "open breaker must not reach the server")
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("flutterwave")))
}

func TestFlutterwaveClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv,
		WithHTTPClient(&http.Client{Timeout: 10 * time.Millisecond}),
		WithRetry(fastRetry(1)),
	)
	_, err := client.Request(context.Background(), http.MethodGet, VerifyEndpoint("WOOC_1_TEST"), nil)
	assert.ErrorIs(t, err, domainErrors.ErrProviderTimeout)
}

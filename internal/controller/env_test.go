package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cassiomorais/checkout-reconciler/internal/application/checkout"
	"github.com/cassiomorais/checkout-reconciler/internal/application/reconcile"
	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/config"
	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout-reconciler/internal/middleware"
	"github.com/cassiomorais/checkout-reconciler/internal/providers"
	"github.com/cassiomorais/checkout-reconciler/internal/repository/postgres"
	"github.com/cassiomorais/checkout-reconciler/internal/testutil"
	"github.com/cassiomorais/checkout-reconciler/internal/webhook"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testSecretHash = "s3cr3t"
	testJWTSecret  = "0123456789abcdef0123456789abcdef"
	testSecretKey  = "FLWSECK_TEST-abc"
)

var testURLs = config.ReconcileConfig{
	NotifyURL:        "https://api.shop.example/payment/return",
	OrderReceivedURL: "https://shop.example/checkout/order-received/{order_id}",
	CartURL:          "https://shop.example/cart",
	HomeURL:          "https://shop.example/",
}

type memoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*postgres.IdempotencyEntry
}

func (s *memoryIdempotencyStore) Get(_ context.Context, key string) (*postgres.IdempotencyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key], nil
}

func (s *memoryIdempotencyStore) Set(_ context.Context, e *postgres.IdempotencyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Key] = e
	return nil
}

type testEnv struct {
	orders    *testutil.MockOrderStore
	carts     *testutil.MockCartStore
	tokens    *testutil.MockTokenStore
	nonces    *testutil.MockNonceStore
	locker    *testutil.MockLocker
	processor *providers.MockProcessor
	metrics   *observability.Metrics
	router    http.Handler
}

func newTestEnv(t *testing.T, processor *providers.MockProcessor, secretKey string) *testEnv {
	t.Helper()
	if processor == nil {
		processor = providers.NewMockProcessor()
	}
	env := &testEnv{
		orders:    testutil.NewMockOrderStore(),
		carts:     testutil.NewMockCartStore(),
		tokens:    testutil.NewMockTokenStore(),
		nonces:    testutil.NewMockNonceStore(),
		locker:    testutil.NewMockLocker(),
		processor: processor,
		metrics:   observability.NewNopMetrics(),
	}

	deps := reconcile.Deps{
		Orders:  env.orders,
		Carts:   env.carts,
		Tokens:  env.tokens,
		Metrics: env.metrics,
		Logger:  zerolog.Nop(),
	}
	handlers := reconcile.NewHandlerFactory(deps, reconcile.DefaultPolicy(), false)
	reconciler := reconcile.NewReconciler(env.orders, processor, handlers, env.locker, env.metrics, zerolog.Nop())
	builder := checkout.NewRequestBuilder(checkout.BuilderConfig{
		NotifyURL:      testURLs.NotifyURL,
		PaymentOptions: "card",
		Title:          "Order Payment",
		Description:    "Payment for items on order",
	})
	initiate := checkout.NewInitiateUseCase(env.orders, builder, env.nonces, processor, handlers, secretKey, env.metrics, zerolog.Nop())

	env.router = NewRouter(RouterDeps{
		Health:           newHealthController(),
		Orders:           env.orders,
		Reconciler:       reconciler,
		Initiate:         initiate,
		Nonces:           env.nonces,
		IdempotencyStore: &memoryIdempotencyStore{entries: make(map[string]*postgres.IdempotencyEntry)},
		Gate:             webhook.NewGate(config.WebhookConfig{SecretHash: testSecretHash}),
		Metrics:          env.metrics,
		MetricsHandler:   http.NotFoundHandler(),
		Server:           config.ServerConfig{RateLimit: 1000},
		Reconcile:        testURLs,
		JWTSecret:        testJWTSecret,
		Logger:           zerolog.Nop(),
	})
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postWebhook(body string, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/payment/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(webhook.HeaderSecretHash, signature)
	}
	return e.do(req)
}

func (e *testEnv) requestCount(method string) int {
	n := 0
	for _, r := range e.processor.Requests() {
		if r.Method == method {
			n++
		}
	}
	return n
}

func adminToken(t *testing.T, role string) string {
	return bearerToken(t, middleware.Claims{Role: role, RegisteredClaims: jwt.RegisteredClaims{Subject: "7"}})
}

// customerToken is a storefront token for the customer who owns the test orders.
func customerToken(t *testing.T) string {
	return bearerToken(t, middleware.Claims{Role: middleware.RoleCustomer, RegisteredClaims: jwt.RegisteredClaims{Subject: "77"}})
}

func bearerToken(t *testing.T, claims middleware.Claims) string {
	t.Helper()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return "Bearer " + s
}

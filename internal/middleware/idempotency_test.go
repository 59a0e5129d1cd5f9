package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cassiomorais/checkout-reconciler/internal/repository/postgres"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*postgres.IdempotencyEntry
	getErr  error
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{entries: make(map[string]*postgres.IdempotencyEntry)}
}

func (s *memoryIdempotencyStore) Get(_ context.Context, key string) (*postgres.IdempotencyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.entries[key], nil
}

func (s *memoryIdempotencyStore) Set(_ context.Context, e *postgres.IdempotencyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.Key]; !ok {
		s.entries[e.Key] = e
	}
	return nil
}

func (s *memoryIdempotencyStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func countingHandler(calls *int, status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	store := newMemoryIdempotencyStore()
	calls := 0
	handler := Idempotency(store)(countingHandler(&calls, http.StatusOK, `{"ok":true}`))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/orders/482/checkout", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, store.len())
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	store := newMemoryIdempotencyStore()
	calls := 0
	body := `{"order_id":482,"tx_ref":"WOOC_482_1710000000","link":"https://checkout.example/pay/abc"}`
	handler := Idempotency(store)(countingHandler(&calls, http.StatusCreated, body))

	first := httptest.NewRequest(http.MethodPost, "/api/v1/orders/482/checkout", nil)
	first.Header.Set("Idempotency-Key", "k-1")
	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, first)

	second := httptest.NewRequest(http.MethodPost, "/api/v1/orders/482/checkout", nil)
	second.Header.Set("Idempotency-Key", "k-1")
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, second)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, w2.Code)
	assert.Equal(t, body, w2.Body.String())
	assert.Equal(t, "true", w2.Header().Get("X-Idempotency-Replayed"))
	assert.Empty(t, w1.Header().Get("X-Idempotency-Replayed"))
}

func TestIdempotency_KeyScopedToRoute(t *testing.T) {
	store := newMemoryIdempotencyStore()
	calls := 0
	handler := Idempotency(store)(countingHandler(&calls, http.StatusCreated, `{}`))

	for _, path := range []string{"/api/v1/orders/482/checkout", "/api/v1/orders/483/checkout"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set("Idempotency-Key", "shared")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, store.len())
}

func TestIdempotency_KeyScopedToCaller(t *testing.T) {
	store := newMemoryIdempotencyStore()
	calls := 0
	handler := Idempotency(store)(countingHandler(&calls, http.StatusCreated, `{"link":"owner-only"}`))

	var replayed string
	for _, subject := range []string{"77", "78"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/482/checkout", nil)
		req.Header.Set("Idempotency-Key", "shared")
		ctx := context.WithValue(req.Context(), ClaimsKey, &Claims{Role: RoleCustomer, RegisteredClaims: jwt.RegisteredClaims{Subject: subject}})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req.WithContext(ctx))
		replayed = w.Header().Get("X-Idempotency-Replayed")
	}

	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, store.len())
	assert.Empty(t, replayed)
}

func TestIdempotency_ServerErrorsNotStored(t *testing.T) {
	store := newMemoryIdempotencyStore()
	calls := 0
	handler := Idempotency(store)(countingHandler(&calls, http.StatusBadGateway, `{"code":"processor_unreachable"}`))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/482/checkout", nil)
		req.Header.Set("Idempotency-Key", "k-502")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	}

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, store.len())
}

func TestIdempotency_StoreDownFallsThrough(t *testing.T) {
	store := newMemoryIdempotencyStore()
	store.getErr = errors.New("connection refused")
	calls := 0
	handler := Idempotency(store)(countingHandler(&calls, http.StatusCreated, `{}`))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/482/checkout", nil)
	req.Header.Set("Idempotency-Key", "k-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, calls)
}

func TestResponseRecorder_LargeBodyNotCaptured(t *testing.T) {
	inner := httptest.NewRecorder()
	rec := &responseRecorder{ResponseWriter: inner, body: &bytes.Buffer{}, statusCode: http.StatusOK}

	large := bytes.Repeat([]byte("x"), maxIdempotencyBodySize+100)
	n, err := rec.Write(large)
	require.NoError(t, err)

	assert.Equal(t, len(large), n)
	assert.True(t, rec.bodyTruncated)
	assert.Equal(t, 0, rec.body.Len())
	assert.Equal(t, len(large), inner.Body.Len())
}

func TestResponseRecorder_CapturesStatusAndBody(t *testing.T) {
	inner := httptest.NewRecorder()
	rec := &responseRecorder{ResponseWriter: inner, body: &bytes.Buffer{}, statusCode: http.StatusOK}

	rec.WriteHeader(http.StatusConflict)
	rec.Write([]byte(`{"code":"already_paid"}`))

	assert.Equal(t, http.StatusConflict, rec.statusCode)
	assert.Equal(t, `{"code":"already_paid"}`, rec.body.String())
	assert.Equal(t, http.StatusConflict, inner.Code)
}

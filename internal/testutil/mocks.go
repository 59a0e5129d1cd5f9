package testutil

import (
	"context"
	"fmt"
	"sync"

	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/order"
	"github.com/google/uuid"
)

// --- Order Store Mock ---

// MockOrderStore is an in-memory order.Store. UpdateStatus behaves like the
// postgres compare-and-swap.
type MockOrderStore struct {
	mu     sync.Mutex
	orders map[int64]*order.Order
	notes  map[int64][]*order.Note

	GetByIDFunc      func(ctx context.Context, id int64) (*order.Order, error)
	UpdateStatusFunc func(ctx context.Context, id int64, from, to order.Status) error
	SetTxRefFunc     func(ctx context.Context, id int64, txRef string) error
	AddNoteFunc      func(ctx context.Context, note *order.Note) error
}

func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{
		orders: make(map[int64]*order.Order),
		notes:  make(map[int64][]*order.Note),
	}
}

// Put stores a copy of o, replacing any order with the same id.
func (m *MockOrderStore) Put(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	cp.Notes = nil
	m.orders[o.ID] = &cp
	m.notes[o.ID] = append([]*order.Note(nil), o.Notes...)
}

func (m *MockOrderStore) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domainErrors.ErrOrderNotFound
	}
	cp := *o
	cp.Notes = append([]*order.Note(nil), m.notes[id]...)
	return &cp, nil
}

func (m *MockOrderStore) UpdateStatus(ctx context.Context, id int64, from, to order.Status) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domainErrors.ErrOrderNotFound
	}
	if o.Status != from {
		return fmt.Errorf("order %d is %s, not %s: %w", id, o.Status, from, domainErrors.ErrStatusConflict)
	}
	o.Status = to
	return nil
}

func (m *MockOrderStore) SetTxRef(ctx context.Context, id int64, txRef string) error {
	if m.SetTxRefFunc != nil {
		return m.SetTxRefFunc(ctx, id, txRef)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domainErrors.ErrOrderNotFound
	}
	o.TxRef = txRef
	return nil
}

func (m *MockOrderStore) AddNote(ctx context.Context, note *order.Note) error {
	if m.AddNoteFunc != nil {
		return m.AddNoteFunc(ctx, note)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[note.OrderID] = append(m.notes[note.OrderID], note)
	return nil
}

// Status returns the stored status of an order.
func (m *MockOrderStore) Status(id int64) order.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		return o.Status
	}
	return ""
}

// TxRef returns the stored reference of an order.
func (m *MockOrderStore) TxRef(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		return o.TxRef
	}
	return ""
}

// Notes returns every note appended to an order.
func (m *MockOrderStore) Notes(id int64) []*order.Note {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*order.Note(nil), m.notes[id]...)
}

// CustomerNotes returns the customer-facing notes of an order.
func (m *MockOrderStore) CustomerNotes(id int64) []*order.Note {
	o := &order.Order{Notes: m.Notes(id)}
	return o.CustomerNotes()
}

// AdminNotes returns the staff-only notes of an order.
func (m *MockOrderStore) AdminNotes(id int64) []*order.Note {
	o := &order.Order{Notes: m.Notes(id)}
	return o.AdminNotes()
}

// --- Cart Store Mock ---

type MockCartStore struct {
	mu      sync.Mutex
	emptied []int64

	EmptyActiveCartFunc func(ctx context.Context, customerID int64) error
}

func NewMockCartStore() *MockCartStore {
	return &MockCartStore{}
}

func (m *MockCartStore) EmptyActiveCart(ctx context.Context, customerID int64) error {
	if m.EmptyActiveCartFunc != nil {
		return m.EmptyActiveCartFunc(ctx, customerID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emptied = append(m.emptied, customerID)
	return nil
}

// Emptied lists the customers whose carts were cleared, in call order.
func (m *MockCartStore) Emptied() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.emptied...)
}

// --- Token Store Mock ---

type MockTokenStore struct {
	mu            sync.Mutex
	orderTokens   map[int64]string
	subscriptions map[int64][]int64
	subTokens     map[int64]string

	SaveOrderTokenFunc        func(ctx context.Context, orderID int64, token string) error
	SaveSubscriptionTokenFunc func(ctx context.Context, subscriptionID int64, token string) error
}

func NewMockTokenStore() *MockTokenStore {
	return &MockTokenStore{
		orderTokens:   make(map[int64]string),
		subscriptions: make(map[int64][]int64),
		subTokens:     make(map[int64]string),
	}
}

// SetSubscriptions ties subscription ids to a parent order.
func (m *MockTokenStore) SetSubscriptions(orderID int64, ids ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[orderID] = ids
}

func (m *MockTokenStore) SaveOrderToken(ctx context.Context, orderID int64, token string) error {
	if m.SaveOrderTokenFunc != nil {
		return m.SaveOrderTokenFunc(ctx, orderID, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderTokens[orderID] = token
	return nil
}

func (m *MockTokenStore) SubscriptionIDsForOrder(ctx context.Context, orderID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.subscriptions[orderID]...), nil
}

func (m *MockTokenStore) SaveSubscriptionToken(ctx context.Context, subscriptionID int64, token string) error {
	if m.SaveSubscriptionTokenFunc != nil {
		return m.SaveSubscriptionTokenFunc(ctx, subscriptionID, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subTokens[subscriptionID] = token
	return nil
}

func (m *MockTokenStore) OrderToken(orderID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orderTokens[orderID]
}

func (m *MockTokenStore) SubscriptionToken(subscriptionID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subTokens[subscriptionID]
}

// --- Locker Mock ---

// MockLocker grants one holder per order at a time.
type MockLocker struct {
	mu       sync.Mutex
	held     map[int64]bool
	acquired int

	LockFunc func(ctx context.Context, orderID int64) (func(context.Context) error, error)
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[int64]bool)}
}

func (m *MockLocker) Lock(ctx context.Context, orderID int64) (func(context.Context) error, error) {
	if m.LockFunc != nil {
		return m.LockFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[orderID] {
		return nil, domainErrors.ErrLockAcquisitionFailed
	}
	m.held[orderID] = true
	m.acquired++
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.held[orderID] {
			return domainErrors.ErrLockNotHeld
		}
		delete(m.held, orderID)
		return nil
	}, nil
}

// Held reports whether the order's lock is currently taken.
func (m *MockLocker) Held(orderID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[orderID]
}

// Acquired counts successful Lock calls.
func (m *MockLocker) Acquired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired
}

// --- Nonce Store Mock ---

type MockNonceStore struct {
	mu     sync.Mutex
	nonces map[string]int64

	IssueFunc  func(ctx context.Context, orderID int64) (string, error)
	VerifyFunc func(ctx context.Context, nonce string, orderID int64) error
}

func NewMockNonceStore() *MockNonceStore {
	return &MockNonceStore{nonces: make(map[string]int64)}
}

func (m *MockNonceStore) Issue(ctx context.Context, orderID int64) (string, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	nonce := uuid.New().String()
	m.nonces[nonce] = orderID
	return nonce, nil
}

func (m *MockNonceStore) Verify(ctx context.Context, nonce string, orderID int64) error {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, nonce, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.nonces[nonce]
	if !ok || id != orderID {
		return domainErrors.ErrNonceInvalid
	}
	return nil
}

func (m *MockNonceStore) Revoke(ctx context.Context, nonce string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nonces, nonce)
	return nil
}

// Count returns the number of live nonces.
func (m *MockNonceStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nonces)
}

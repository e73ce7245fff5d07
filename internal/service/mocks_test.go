package service

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"payflow/internal/domain"
	"payflow/internal/provider"
	"payflow/internal/redis"
)

// ──────────────────────────────────────────────
// MOCK SESSION STORE
// ──────────────────────────────────────────────

// mockSessionStore is an in-memory session store with the same
// compare-and-swap semantics as the Redis implementation.
type mockSessionStore struct {
	mu        sync.Mutex
	sessions  map[string]*domain.PaymentSession
	byInvoice map[string]string
	active    map[string]bool

	// Counters for verification
	CASCallCount int32
	CASLossCount int32

	// Error injection
	PutError error
	GetError error
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{
		sessions:  make(map[string]*domain.PaymentSession),
		byInvoice: make(map[string]string),
		active:    make(map[string]bool),
	}
}

func cloneSession(s *domain.PaymentSession) *domain.PaymentSession {
	// Deep copy through JSON so tests never share pointers with the store.
	data, _ := json.Marshal(s)
	var out domain.PaymentSession
	_ = json.Unmarshal(data, &out)
	return &out
}

func (m *mockSessionStore) Put(ctx context.Context, session *domain.PaymentSession, ttl time.Duration) error {
	if m.PutError != nil {
		return m.PutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.SessionID] = cloneSession(session)
	if session.InvoiceID != "" {
		m.byInvoice[session.InvoiceID] = session.SessionID
	}
	m.active[session.SessionID] = true
	return nil
}

func (m *mockSessionStore) Get(ctx context.Context, sessionID string) (*domain.PaymentSession, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, redis.ErrNotFound
	}
	return cloneSession(session), nil
}

func (m *mockSessionStore) GetByInvoiceID(ctx context.Context, invoiceID string) (*domain.PaymentSession, error) {
	m.mu.Lock()
	sessionID, ok := m.byInvoice[invoiceID]
	m.mu.Unlock()
	if !ok {
		return nil, redis.ErrNotFound
	}
	return m.Get(ctx, sessionID)
}

func (m *mockSessionStore) CompareAndSwapStatus(ctx context.Context, session *domain.PaymentSession, expectedOld domain.SessionStatus) (bool, error) {
	atomic.AddInt32(&m.CASCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sessions[session.SessionID]
	if !ok {
		return false, redis.ErrNotFound
	}
	if current.Status != expectedOld {
		atomic.AddInt32(&m.CASLossCount, 1)
		return false, nil
	}
	m.sessions[session.SessionID] = cloneSession(session)
	return true, nil
}

func (m *mockSessionStore) ExpireAt(ctx context.Context, sessionID, invoiceID string, ttl time.Duration) error {
	return nil
}

func (m *mockSessionStore) RemoveActive(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, sessionID)
	return nil
}

func (m *mockSessionStore) ActiveSessions(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids, nil
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// mockLockStore is an in-memory per-session lock.
type mockLockStore struct {
	mu    sync.Mutex
	locks map[string]bool

	// Counters for verification
	AcquireCallCount int32

	// When set, every acquisition is denied.
	DenyAll bool
}

func newMockLockStore() *mockLockStore {
	return &mockLockStore{locks: make(map[string]bool)}
}

func (m *mockLockStore) AcquireSessionLock(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DenyAll || m.locks[sessionID] {
		return false, nil
	}
	m.locks[sessionID] = true
	return true, nil
}

func (m *mockLockStore) ReleaseSessionLock(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, sessionID)
	return nil
}

// ──────────────────────────────────────────────
// MOCK PROVIDER ADAPTER
// ──────────────────────────────────────────────

// mockAdapter is a configurable provider adapter.
type mockAdapter struct {
	name string

	mu sync.Mutex

	// What QueryStatus reports.
	State      provider.InvoiceState
	PaidAmount int64

	// Counters for verification
	CreateCallCount int32
	QueryCallCount  int32
	CancelCallCount int32

	// Error injection
	CreateError error
	QueryError  error
	CancelError error

	// Invoice fields returned by CreateInvoice.
	InvoiceLifetime time.Duration
}

func newMockAdapter(name string) *mockAdapter {
	return &mockAdapter{name: name, State: provider.InvoiceStatePending}
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) SetState(state provider.InvoiceState, paidAmount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.State = state
	m.PaidAmount = paidAmount
}

func (m *mockAdapter) CreateInvoice(ctx context.Context, req provider.CreateInvoiceRequest) (*provider.Invoice, error) {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	return &provider.Invoice{
		InvoiceID: "inv-" + req.SessionID,
		QRText:    "qr-payload",
		ShortURL:  "https://pay.example/i/" + req.SessionID,
		Lifetime:  m.InvoiceLifetime,
	}, nil
}

func (m *mockAdapter) QueryStatus(ctx context.Context, invoiceID string) (*provider.InvoiceStatus, error) {
	atomic.AddInt32(&m.QueryCallCount, 1)
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &provider.InvoiceStatus{State: m.State, PaidAmount: m.PaidAmount}, nil
}

func (m *mockAdapter) CancelInvoice(ctx context.Context, invoiceID string) error {
	atomic.AddInt32(&m.CancelCallCount, 1)
	return m.CancelError
}

// ──────────────────────────────────────────────
// MOCK MATERIALIZER
// ──────────────────────────────────────────────

// mockMaterializer records invocations and returns a fixed ID set.
type mockMaterializer struct {
	mu       sync.Mutex
	OrderIDs []string

	// Counters for verification
	CallCount int32

	// Error injection; FailTimes > 0 fails that many calls then succeeds.
	MaterializeError error
	FailTimes        int32
}

func newMockMaterializer(orderIDs ...string) *mockMaterializer {
	return &mockMaterializer{OrderIDs: orderIDs}
}

func (m *mockMaterializer) Materialize(ctx context.Context, session *domain.PaymentSession) ([]string, error) {
	atomic.AddInt32(&m.CallCount, 1)
	if m.MaterializeError != nil {
		if atomic.AddInt32(&m.FailTimes, -1) >= 0 {
			return nil, m.MaterializeError
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.OrderIDs...), nil
}

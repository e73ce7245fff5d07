package redis

import (
	"context"
	"time"

	"payflow/internal/domain"
)

// SessionStoreInterface defines the durable keyed storage contract for
// payment sessions.
type SessionStoreInterface interface {
	Put(ctx context.Context, session *domain.PaymentSession, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*domain.PaymentSession, error)
	GetByInvoiceID(ctx context.Context, invoiceID string) (*domain.PaymentSession, error)
	CompareAndSwapStatus(ctx context.Context, session *domain.PaymentSession, expectedOld domain.SessionStatus) (bool, error)
	ExpireAt(ctx context.Context, sessionID, invoiceID string, ttl time.Duration) error
	RemoveActive(ctx context.Context, sessionID string) error
	ActiveSessions(ctx context.Context) ([]string, error)
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireSessionLock(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)
	ReleaseSessionLock(ctx context.Context, sessionID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ SessionStoreInterface = (*SessionStore)(nil)
	_ LockStoreInterface    = (*LockStore)(nil)
)

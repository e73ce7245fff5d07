package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"payflow/internal/config"
	"payflow/internal/domain"
	"payflow/internal/provider"
	"payflow/internal/redis"
)

// winnerPollInterval is how often a materialization loser re-reads the
// session while waiting for the winner's result.
const winnerPollInterval = 100 * time.Millisecond

// ReconciliationEngine owns every legal transition of a payment session
// and guarantees at-most-once order creation. The compare-and-swap on
// the session store plus the per-session materialization lock are its
// only synchronization points; unrelated sessions proceed in parallel.
type ReconciliationEngine struct {
	store         redis.SessionStoreInterface
	locks         redis.LockStoreInterface
	providers     *provider.Registry
	materializer  OrderMaterializer
	ebarimt       *EbarimtService
	notifications *NotificationService
	cfg           config.SessionConfig
	now           func() time.Time
}

// NewReconciliationEngine creates a new ReconciliationEngine.
func NewReconciliationEngine(
	store redis.SessionStoreInterface,
	locks redis.LockStoreInterface,
	providers *provider.Registry,
	materializer OrderMaterializer,
	ebarimt *EbarimtService,
	notifications *NotificationService,
	cfg config.SessionConfig,
) *ReconciliationEngine {
	return &ReconciliationEngine{
		store:         store,
		locks:         locks,
		providers:     providers,
		materializer:  materializer,
		ebarimt:       ebarimt,
		notifications: notifications,
		cfg:           cfg,
		now:           time.Now,
	}
}

// StartSessionRequest contains the parameters for starting a payment session.
type StartSessionRequest struct {
	Provider    string
	Cart        []domain.LineItem
	Sellers     []string
	TotalAmount int64
	Coupon      *domain.Coupon
	ShippingRef string
	Ebarimt     *domain.EbarimtRequest
	Description string
}

// StartSessionResult contains the created session and the provider
// invoice payload the client needs to drive the payment UI.
type StartSessionResult struct {
	Session *domain.PaymentSession
	Invoice *provider.Invoice
	TTL     time.Duration
}

// StatusSnapshot is the externally visible state of a session.
type StatusSnapshot struct {
	SessionID      string
	Status         domain.SessionStatus
	InvoiceID      string
	OrderIDs       []string
	PaidAmount     *int64
	ExpectedAmount int64
	LastCheckAt    time.Time
	ProcessedAt    time.Time

	// Processing reports that materialization is in flight and the winner's
	// result could not be observed within the bounded wait. The client is
	// expected to poll again.
	Processing bool
}

// StartSession validates the cart, recomputes the payable total
// server-side, creates a provider invoice, and persists the session in
// PENDING with the provider-quoted TTL or the configured default.
func (e *ReconciliationEngine) StartSession(ctx context.Context, req StartSessionRequest) (*StartSessionResult, error) {
	if err := validateCart(req.Cart, req.Sellers); err != nil {
		return nil, err
	}

	total := domain.CartTotal(req.Cart, req.Coupon)
	if total <= 0 {
		return nil, ErrInvalidAmount
	}
	if total != req.TotalAmount {
		return nil, ErrAmountMismatch
	}

	adapter, err := e.providers.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.New().String()

	invoice, err := adapter.CreateInvoice(ctx, provider.CreateInvoiceRequest{
		SessionID:   sessionID,
		Amount:      total,
		Description: req.Description,
	})
	if err != nil {
		return nil, err
	}

	ttl := invoice.Lifetime
	if ttl <= 0 {
		ttl = e.cfg.DefaultTTL
	}

	now := e.now()
	session := &domain.PaymentSession{
		SessionID:      sessionID,
		Provider:       req.Provider,
		Status:         domain.SessionStatusPending,
		InvoiceID:      invoice.InvoiceID,
		ExpectedAmount: total,
		CartSnapshot:   req.Cart,
		Coupon:         req.Coupon,
		ShippingRef:    req.ShippingRef,
		Ebarimt:        req.Ebarimt,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		LastCheckAt:    now,
	}
	if req.Ebarimt != nil {
		session.EbarimtInfo = &domain.EbarimtInfo{Status: domain.EbarimtStatusNone}
	}

	// The record outlives the invoice deadline by the retention window so
	// an expired session still reports EXPIRED instead of vanishing.
	if err := e.store.Put(ctx, session, ttl+e.cfg.RetentionWindow); err != nil {
		return nil, err
	}

	return &StartSessionResult{Session: session, Invoice: invoice, TTL: ttl}, nil
}

// QueryStatus returns the current state of a session, refreshing it from
// the provider when it is still live. An expired PENDING session is
// transitioned locally without contacting the provider. A PAID result
// drives the idempotent materialization path before returning.
func (e *ReconciliationEngine) QueryStatus(ctx context.Context, sessionID string) (*StatusSnapshot, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}

	session, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status.IsTerminal() {
		// No write-back on terminal records: a receipt registration may be
		// landing its sub-record concurrently under the same status.
		return snapshotOf(session), nil
	}

	if session.Expired(e.now()) {
		session = e.finalize(ctx, session, domain.SessionStatusExpired)
		return snapshotOf(session), nil
	}

	if session.Status == domain.SessionStatusPaid {
		// Earlier materialization did not complete; re-drive it.
		return e.materialize(ctx, session)
	}

	adapter, err := e.providers.Get(session.Provider)
	if err != nil {
		return nil, err
	}

	status, err := adapter.QueryStatus(ctx, session.InvoiceID)
	if err != nil {
		e.touch(ctx, session)
		return nil, err
	}

	return e.applyProviderStatus(ctx, session, status.State, status.PaidAmount)
}

// NotifyPaid is the push path: a provider callback reports settlement
// keyed by invoice. It applies the identical amount check and
// materialization path as QueryStatus and is safe under duplicate
// deliveries and concurrent polls.
func (e *ReconciliationEngine) NotifyPaid(ctx context.Context, invoiceID string, paidAmount int64) (*StatusSnapshot, error) {
	if invoiceID == "" {
		return nil, ErrInvalidInvoiceID
	}

	session, err := e.store.GetByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	if session.Status.IsTerminal() {
		// A cancelled or expired session never transitions again, even if
		// the provider later reports paid.
		return snapshotOf(session), nil
	}

	if session.Expired(e.now()) && session.Status == domain.SessionStatusPending {
		// Deadline passed but payment arrived: honor the payment check
		// rather than racing the sweep; amount validation still applies.
		log.Printf("[RECONCILE] late payment notification for expired-deadline session %s", session.SessionID)
	}

	return e.applyProviderStatus(ctx, session, provider.InvoiceStatePaid, paidAmount)
}

// Cancel transitions a PENDING session to CANCELLED. The upstream
// invoice cancellation is advisory: its failure never blocks the local
// transition.
func (e *ReconciliationEngine) Cancel(ctx context.Context, sessionID string) (*domain.PaymentSession, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}

	session, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case domain.SessionStatusCancelled:
		return nil, ErrSessionAlreadyCancelled
	case domain.SessionStatusPending:
	default:
		return nil, ErrSessionNotPending
	}

	if adapter, err := e.providers.Get(session.Provider); err == nil {
		if err := adapter.CancelInvoice(ctx, session.InvoiceID); err != nil {
			log.Printf("[RECONCILE] upstream cancel failed for session %s: %v", session.SessionID, err)
		}
	}

	updated := *session
	updated.Status = domain.SessionStatusCancelled
	updated.LastCheckAt = e.now()

	ok, err := e.store.CompareAndSwapStatus(ctx, &updated, domain.SessionStatusPending)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Another caller moved the session first.
		return nil, ErrSessionNotPending
	}

	e.retire(ctx, &updated)
	return &updated, nil
}

// Ebarimt returns the session with its receipt sub-record, retrying a
// failed registration on demand. The receipt path is independent of the
// payment status: its failure never reverts or blocks the order.
func (e *ReconciliationEngine) Ebarimt(ctx context.Context, sessionID string) (*domain.PaymentSession, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}

	session, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status != domain.SessionStatusProcessed || session.Ebarimt == nil {
		return session, nil
	}
	if session.EbarimtInfo != nil && session.EbarimtInfo.Status == domain.EbarimtStatusRegistered {
		return session, nil
	}
	if e.ebarimt == nil {
		return nil, ErrEbarimtUnavailable
	}

	return e.ebarimt.Register(ctx, session)
}

// Sweep walks the active sessions once: expires PENDING sessions past
// their deadline and re-drives materialization for PAID sessions whose
// order creation previously failed.
func (e *ReconciliationEngine) Sweep(ctx context.Context) {
	ids, err := e.store.ActiveSessions(ctx)
	if err != nil {
		log.Printf("[SWEEP] listing active sessions failed: %v", err)
		return
	}

	for _, id := range ids {
		session, err := e.store.Get(ctx, id)
		if err != nil {
			if err == redis.ErrNotFound {
				_ = e.store.RemoveActive(ctx, id)
			}
			continue
		}

		switch {
		case session.Status.IsTerminal():
			_ = e.store.RemoveActive(ctx, id)
		case session.Expired(e.now()):
			e.finalize(ctx, session, domain.SessionStatusExpired)
		case session.Status == domain.SessionStatusPaid:
			if _, err := e.materialize(ctx, session); err != nil {
				log.Printf("[SWEEP] materialization retry failed for session %s: %v", id, err)
			}
		}
	}
}

// applyProviderStatus folds a provider-reported settlement state into
// the session. Shared by the poll and push paths so both apply the same
// amount check and the same materialization path.
func (e *ReconciliationEngine) applyProviderStatus(ctx context.Context, session *domain.PaymentSession, state provider.InvoiceState, paidAmount int64) (*StatusSnapshot, error) {
	switch state {
	case provider.InvoiceStatePaid:
		if session.Status == domain.SessionStatusPending {
			if paidAmount != session.ExpectedAmount {
				// Partial payments and overpayments are data anomalies for
				// manual reconciliation, never auto-resolved to PAID.
				log.Printf("[RECONCILE] amount mismatch on session %s: paid %d, expected %d",
					session.SessionID, paidAmount, session.ExpectedAmount)
				e.touch(ctx, session)
				return snapshotOf(session), nil
			}
			session = e.markPaid(ctx, session, paidAmount)
		}
		return e.materialize(ctx, session)

	case provider.InvoiceStateDeclined:
		session = e.finalize(ctx, session, domain.SessionStatusFailed)
		return snapshotOf(session), nil

	case provider.InvoiceStateExpired:
		session = e.finalize(ctx, session, domain.SessionStatusExpired)
		return snapshotOf(session), nil

	case provider.InvoiceStateCanceled:
		session = e.finalize(ctx, session, domain.SessionStatusCancelled)
		return snapshotOf(session), nil

	default:
		e.touch(ctx, session)
		return snapshotOf(session), nil
	}
}

// markPaid performs the PENDING -> PAID transition. paidAmount is set
// exactly once, by the winning compare-and-swap; losers re-read the
// record the winner wrote.
func (e *ReconciliationEngine) markPaid(ctx context.Context, session *domain.PaymentSession, paidAmount int64) *domain.PaymentSession {
	updated := *session
	updated.Status = domain.SessionStatusPaid
	if updated.PaidAmount == nil {
		updated.PaidAmount = &paidAmount
	}
	updated.LastCheckAt = e.now()

	ok, err := e.store.CompareAndSwapStatus(ctx, &updated, domain.SessionStatusPending)
	if err != nil {
		log.Printf("[RECONCILE] paid transition failed for session %s: %v", session.SessionID, err)
		return session
	}
	if !ok {
		if fresh, err := e.store.Get(ctx, session.SessionID); err == nil {
			return fresh
		}
		return session
	}

	if e.notifications != nil {
		_ = e.notifications.NotifyPaymentConfirmed(ctx, &updated)
	}
	return &updated
}

// materialize guarantees exactly one order set per paid session. The
// lock winner invokes the materializer and performs the PAID ->
// PROCESSED swap; losers wait bounded for the winner's result and then
// read orderIds rather than re-creating orders. When both the lock
// acquisition and the wait time out, the snapshot reports a transient
// processing state and the client polls again.
func (e *ReconciliationEngine) materialize(ctx context.Context, session *domain.PaymentSession) (*StatusSnapshot, error) {
	if session.Status == domain.SessionStatusProcessed {
		return snapshotOf(session), nil
	}
	if session.Status != domain.SessionStatusPaid {
		return snapshotOf(session), nil
	}

	locked, err := e.locks.AcquireSessionLock(ctx, session.SessionID, e.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !locked {
		return e.awaitWinner(ctx, session.SessionID)
	}
	defer func() {
		_ = e.locks.ReleaseSessionLock(ctx, session.SessionID)
	}()

	// Re-read under the lock: a previous winner may have completed
	// between our status check and the lock acquisition.
	fresh, err := e.store.Get(ctx, session.SessionID)
	if err != nil {
		return nil, err
	}
	if fresh.Status == domain.SessionStatusProcessed {
		return snapshotOf(fresh), nil
	}

	orderIDs, err := e.materializer.Materialize(ctx, fresh)
	if err != nil {
		// Status stays PAID and orderIds stays empty: payment confirmation
		// and order creation are decoupled by this durable intermediate
		// state, so a later retry can still complete materialization.
		log.Printf("[RECONCILE] materialization failed for session %s: %v", fresh.SessionID, err)
		return nil, fmt.Errorf("%w: %v", ErrMaterializationFailed, err)
	}

	updated := *fresh
	updated.Status = domain.SessionStatusProcessed
	updated.OrderIDs = orderIDs
	updated.ProcessedAt = e.now()
	updated.LastCheckAt = updated.ProcessedAt

	ok, err := e.store.CompareAndSwapStatus(ctx, &updated, domain.SessionStatusPaid)
	if err != nil {
		return nil, err
	}
	if !ok {
		if fresh, err := e.store.Get(ctx, session.SessionID); err == nil {
			return snapshotOf(fresh), nil
		}
		return snapshotOf(fresh), nil
	}

	e.retire(ctx, &updated)

	if e.notifications != nil {
		_ = e.notifications.NotifyOrdersCreated(ctx, &updated)
	}

	if e.ebarimt != nil && updated.Ebarimt != nil {
		if registered, err := e.ebarimt.Register(ctx, &updated); err == nil {
			if e.notifications != nil {
				_ = e.notifications.NotifyReceiptReady(ctx, registered)
			}
			return snapshotOf(registered), nil
		}
	}

	return snapshotOf(&updated), nil
}

// awaitWinner polls for the winner's PROCESSED record within the bounded
// wait. Timing out is not a failure: the caller reports a transient
// processing status.
func (e *ReconciliationEngine) awaitWinner(ctx context.Context, sessionID string) (*StatusSnapshot, error) {
	deadline := e.now().Add(e.cfg.LockWait)

	for {
		session, err := e.store.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session.Status != domain.SessionStatusPaid {
			return snapshotOf(session), nil
		}
		if e.now().After(deadline) {
			snapshot := snapshotOf(session)
			snapshot.Processing = true
			return snapshot, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(winnerPollInterval):
		}
	}
}

// finalize performs a PENDING -> terminal transition and retires the
// session into the audit retention window.
func (e *ReconciliationEngine) finalize(ctx context.Context, session *domain.PaymentSession, to domain.SessionStatus) *domain.PaymentSession {
	updated := *session
	updated.Status = to
	updated.LastCheckAt = e.now()

	ok, err := e.store.CompareAndSwapStatus(ctx, &updated, domain.SessionStatusPending)
	if err != nil || !ok {
		if fresh, err := e.store.Get(ctx, session.SessionID); err == nil {
			return fresh
		}
		return session
	}

	e.retire(ctx, &updated)

	if to == domain.SessionStatusFailed && e.notifications != nil {
		_ = e.notifications.NotifyPaymentFailed(ctx, &updated, "provider declined")
	}
	return &updated
}

// retire removes a session from the sweep set and re-arms its TTL for
// the audit retention window.
func (e *ReconciliationEngine) retire(ctx context.Context, session *domain.PaymentSession) {
	_ = e.store.RemoveActive(ctx, session.SessionID)
	_ = e.store.ExpireAt(ctx, session.SessionID, session.InvoiceID, e.cfg.RetentionWindow)
}

// touch refreshes lastCheckAt without changing status. The record is
// re-read immediately before the swap so a body write that landed after
// the caller's read is carried forward rather than overwritten. A lost
// swap only means a concurrent transition carried a fresher timestamp.
func (e *ReconciliationEngine) touch(ctx context.Context, session *domain.PaymentSession) {
	fresh, err := e.store.Get(ctx, session.SessionID)
	if err != nil {
		return
	}
	updated := *fresh
	updated.LastCheckAt = e.now()
	_, _ = e.store.CompareAndSwapStatus(ctx, &updated, fresh.Status)
}

func snapshotOf(session *domain.PaymentSession) *StatusSnapshot {
	return &StatusSnapshot{
		SessionID:      session.SessionID,
		Status:         session.Status,
		InvoiceID:      session.InvoiceID,
		OrderIDs:       session.OrderIDs,
		PaidAmount:     session.PaidAmount,
		ExpectedAmount: session.ExpectedAmount,
		LastCheckAt:    session.LastCheckAt,
		ProcessedAt:    session.ProcessedAt,
	}
}

func validateCart(cart []domain.LineItem, sellers []string) error {
	if len(cart) == 0 {
		return ErrInvalidCart
	}

	known := make(map[string]bool, len(sellers))
	for _, s := range sellers {
		known[s] = true
	}

	for _, li := range cart {
		if li.ProductID == "" || li.SellerID == "" || li.Quantity <= 0 || li.UnitPrice < 0 {
			return ErrInvalidCart
		}
		if len(sellers) > 0 && !known[li.SellerID] {
			return ErrUnknownSeller
		}
	}
	return nil
}

package domain

import "time"

// SessionStatus represents the current status of a payment session.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "PENDING"
	SessionStatusPaid      SessionStatus = "PAID"
	SessionStatusProcessed SessionStatus = "PROCESSED"
	SessionStatusFailed    SessionStatus = "FAILED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
	SessionStatusExpired   SessionStatus = "EXPIRED"
)

// IsTerminal reports whether the status has no outbound transitions.
// PAID is not terminal: it is the durable intermediate state between
// payment confirmation and order creation.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusProcessed, SessionStatusFailed, SessionStatusCancelled, SessionStatusExpired:
		return true
	default:
		return false
	}
}

// IsValid reports whether the status is one of the known values.
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionStatusPending, SessionStatusPaid, SessionStatusProcessed,
		SessionStatusFailed, SessionStatusCancelled, SessionStatusExpired:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the session state machine permits moving
// from one status to another. The machine is forward-only and terminal
// states have no outbound edges.
func CanTransition(from, to SessionStatus) bool {
	switch from {
	case SessionStatusPending:
		switch to {
		case SessionStatusPaid, SessionStatusFailed, SessionStatusCancelled, SessionStatusExpired:
			return true
		}
	case SessionStatusPaid:
		return to == SessionStatusProcessed
	}
	return false
}

// EbarimtStatus represents the state of the tax-receipt sub-process.
type EbarimtStatus string

const (
	EbarimtStatusNone       EbarimtStatus = "NONE"
	EbarimtStatusRegistered EbarimtStatus = "REGISTERED"
	EbarimtStatusFailed     EbarimtStatus = "FAILED"
)

// LineItem is a single frozen cart line.
type LineItem struct {
	ProductID string `json:"product_id"`
	SellerID  string `json:"seller_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"` // minor units
}

// Subtotal returns quantity * unit price in minor units.
func (li LineItem) Subtotal() int64 {
	return li.Quantity * li.UnitPrice
}

// Coupon is a discount frozen into the session at creation time.
type Coupon struct {
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discount_amount"` // minor units, absolute
}

// EbarimtRequest carries the receipt metadata supplied at checkout.
type EbarimtRequest struct {
	ReceiverType string `json:"receiver_type"` // CITIZEN or ORGANIZATION
	RegisterNo   string `json:"register_no,omitempty"`
}

// EbarimtInfo is the independently retryable receipt sub-record.
type EbarimtInfo struct {
	Status    EbarimtStatus `json:"status"`
	ReceiptID string        `json:"receipt_id,omitempty"`
	QRData    string        `json:"qr_data,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// PaymentSession is one attempt to pay a cart. The cart snapshot is
// captured at creation and never re-read from a mutable cart, so the
// amount charged always matches what was quoted.
type PaymentSession struct {
	SessionID      string          `json:"session_id"`
	Provider       string          `json:"provider"`
	Status         SessionStatus   `json:"status"`
	InvoiceID      string          `json:"invoice_id,omitempty"`
	ExpectedAmount int64           `json:"expected_amount"` // minor units
	PaidAmount     *int64          `json:"paid_amount,omitempty"`
	CartSnapshot   []LineItem      `json:"cart_snapshot"`
	Coupon         *Coupon         `json:"coupon,omitempty"`
	ShippingRef    string          `json:"shipping_ref,omitempty"`
	OrderIDs       []string        `json:"order_ids,omitempty"`
	Ebarimt        *EbarimtRequest `json:"ebarimt_request,omitempty"`
	EbarimtInfo    *EbarimtInfo    `json:"ebarimt_info,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	LastCheckAt    time.Time       `json:"last_check_at"`
	ProcessedAt    time.Time       `json:"processed_at,omitzero"`
}

// Expired reports whether a still-pending session has passed its deadline.
func (s *PaymentSession) Expired(now time.Time) bool {
	return s.Status == SessionStatusPending && now.After(s.ExpiresAt)
}

// SnapshotTotal recomputes the payable amount from the frozen cart lines
// and the frozen coupon. Client-sent totals are validated against this,
// never trusted verbatim.
func (s *PaymentSession) SnapshotTotal() int64 {
	return CartTotal(s.CartSnapshot, s.Coupon)
}

// CartTotal computes the payable amount for a set of lines and an
// optional coupon. A discount never takes the total below zero.
func CartTotal(items []LineItem, coupon *Coupon) int64 {
	var total int64
	for _, li := range items {
		total += li.Subtotal()
	}
	if coupon != nil {
		total -= coupon.DiscountAmount
	}
	if total < 0 {
		return 0
	}
	return total
}

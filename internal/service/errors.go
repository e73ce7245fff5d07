package service

import "errors"

var (
	// ErrInvalidSessionID is returned when session ID is empty.
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrInvalidInvoiceID is returned when invoice ID is empty.
	ErrInvalidInvoiceID = errors.New("invalid invoice id")

	// ErrInvalidCart is returned when the cart is empty or a line is malformed.
	ErrInvalidCart = errors.New("invalid cart")

	// ErrInvalidAmount is returned when the payable amount is not positive.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAmountMismatch is returned when the client-sent total does not match
	// the server-side recomputation from the cart.
	ErrAmountMismatch = errors.New("total amount does not match cart")

	// ErrUnknownSeller is returned when a cart line references a seller
	// missing from the declared seller set.
	ErrUnknownSeller = errors.New("cart line references unknown seller")

	// ErrSessionNotPending is returned when an operation legal only from
	// PENDING hits a session in another state.
	ErrSessionNotPending = errors.New("session not pending")

	// ErrSessionAlreadyCancelled is returned when cancelling an already
	// cancelled session.
	ErrSessionAlreadyCancelled = errors.New("session already cancelled")

	// ErrMaterializationFailed is returned when order creation failed after
	// a confirmed payment. The session stays PAID and a later retry can
	// still complete materialization.
	ErrMaterializationFailed = errors.New("order materialization failed")

	// ErrEbarimtUnavailable is returned when the receipt sub-process is not
	// configured.
	ErrEbarimtUnavailable = errors.New("ebarimt service unavailable")
)

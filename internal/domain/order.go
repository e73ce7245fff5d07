package domain

import "time"

// Order is one persisted order materialized from a paid session. A
// session yields one order per seller present in its cart snapshot.
type Order struct {
	ID        string
	SessionID string
	SellerID  string
	Items     []LineItem
	Amount    int64 // minor units
	Token     string
	CreatedAt time.Time
}

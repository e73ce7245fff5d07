package provider

import (
	"context"
	"encoding/json"
	"time"
)

// InvoiceState is the provider-reported state of an invoice.
type InvoiceState string

const (
	InvoiceStatePending  InvoiceState = "PENDING"
	InvoiceStatePaid     InvoiceState = "PAID"
	InvoiceStateDeclined InvoiceState = "DECLINED"
	InvoiceStateExpired  InvoiceState = "EXPIRED"
	InvoiceStateCanceled InvoiceState = "CANCELED"
)

// Deeplink is a bank-app link attached to a QR invoice.
type Deeplink struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Link        string `json:"link"`
}

// Invoice is the provider-side representation of a payment request.
// QR-style providers fill the QR fields and deeplinks; card-style
// providers fill the client secret.
type Invoice struct {
	InvoiceID    string
	QRText       string
	QRImage      string
	ShortURL     string
	Deeplinks    []Deeplink
	ClientSecret string
	Lifetime     time.Duration // provider-quoted; zero means no quote
}

// CreateInvoiceRequest carries what a provider needs to open an invoice.
type CreateInvoiceRequest struct {
	SessionID   string
	Amount      int64 // minor units
	Description string
	ReceiverRef string
}

// InvoiceStatus is the normalized result of a provider status query.
type InvoiceStatus struct {
	State      InvoiceState
	PaidAmount int64 // minor units, meaningful when State is PAID
	Payload    json.RawMessage
}

// Adapter is the polymorphic capability over payment providers.
type Adapter interface {
	// Name returns the provider name used in gateway routes.
	Name() string

	// CreateInvoice opens a payment request with the provider.
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)

	// QueryStatus fetches the current settlement state of an invoice.
	QueryStatus(ctx context.Context, invoiceID string) (*InvoiceStatus, error)

	// CancelInvoice voids an invoice upstream. Advisory: the session is
	// cancelled locally even when this fails.
	CancelInvoice(ctx context.Context, invoiceID string) error
}

package client

import (
	"context"
	"net/http"
	"net/url"
)

// SeedSessionRequest is the wire request for starting a payment session.
type SeedSessionRequest struct {
	Cart        []SeedSessionItem `json:"cart"`
	Sellers     []string          `json:"sellers"`
	TotalAmount int64             `json:"total_amount"`
	ShippingRef string            `json:"shipping_ref,omitempty"`
	Coupon      *SeedCoupon       `json:"coupon,omitempty"`
	Ebarimt     *SeedEbarimt      `json:"ebarimt,omitempty"`
	Description string            `json:"description,omitempty"`
}

// SeedSessionItem is one cart line at checkout.
type SeedSessionItem struct {
	ProductID string `json:"product_id"`
	SellerID  string `json:"seller_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// SeedCoupon is the discount applied at checkout.
type SeedCoupon struct {
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discount_amount"`
}

// SeedEbarimt is the receipt metadata supplied at checkout.
type SeedEbarimt struct {
	ReceiverType string `json:"receiver_type"`
	RegisterNo   string `json:"register_no,omitempty"`
}

// InvoicePayload is the provider-specific payment payload.
type InvoicePayload struct {
	InvoiceID    string         `json:"invoice_id"`
	QRText       string         `json:"qr_text,omitempty"`
	QRImage      string         `json:"qr_image,omitempty"`
	ShortURL     string         `json:"short_url,omitempty"`
	Deeplinks    []DeeplinkInfo `json:"deeplinks,omitempty"`
	ClientSecret string         `json:"client_secret,omitempty"`
}

// DeeplinkInfo is one bank-app link on a QR invoice.
type DeeplinkInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Link        string `json:"link"`
}

// SeedSessionResponse is the wire response for starting a session.
type SeedSessionResponse struct {
	Success   bool            `json:"success"`
	SessionID string          `json:"session_id,omitempty"`
	TTLSec    int64           `json:"ttl_sec,omitempty"`
	Invoice   *InvoicePayload `json:"invoice,omitempty"`
	Error     string          `json:"error,omitempty"`
	Details   string          `json:"details,omitempty"`
}

// StatusResponse is the wire response for a status poll.
type StatusResponse struct {
	OK             bool     `json:"ok"`
	SessionID      string   `json:"session_id"`
	Status         string   `json:"status"`
	InvoiceID      string   `json:"invoice_id,omitempty"`
	OrderIDs       []string `json:"order_ids,omitempty"`
	PaidAmount     *int64   `json:"paid_amount,omitempty"`
	ExpectedAmount int64    `json:"expected_amount"`
	LastCheckAt    string   `json:"last_check_at,omitempty"`
	ProcessedAt    string   `json:"processed_at,omitempty"`
	Processing     bool     `json:"processing,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// CancelResponse is the wire response for a cancel request.
type CancelResponse struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// EbarimtResponse is the wire response for a receipt lookup.
type EbarimtResponse struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Ebarimt   *struct {
		Status    string `json:"status"`
		ReceiptID string `json:"receipt_id,omitempty"`
		QRData    string `json:"qr_data,omitempty"`
		LastError string `json:"last_error,omitempty"`
	} `json:"ebarimt,omitempty"`
}

// SeedSession starts a payment session with the given provider.
func (c *Client) SeedSession(ctx context.Context, providerName string, req SeedSessionRequest) (*SeedSessionResponse, error) {
	var resp SeedSessionResponse
	err := c.Do(ctx, Request{
		Method:       http.MethodPost,
		Path:         "/v1/payments/" + providerName + "/seed-session",
		Body:         req,
		RequiresAuth: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status polls a session's settlement state.
func (c *Client) Status(ctx context.Context, providerName, sessionID string) (*StatusResponse, error) {
	var resp StatusResponse
	err := c.Do(ctx, Request{
		Method:       http.MethodGet,
		Path:         "/v1/payments/" + providerName + "/status?sessionId=" + url.QueryEscape(sessionID),
		RequiresAuth: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel cancels a pending session.
func (c *Client) Cancel(ctx context.Context, providerName, sessionID string) (*CancelResponse, error) {
	var resp CancelResponse
	err := c.Do(ctx, Request{
		Method:       http.MethodPost,
		Path:         "/v1/payments/" + providerName + "/cancel",
		Body:         map[string]string{"session_id": sessionID},
		RequiresAuth: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ebarimt looks up a session's tax-receipt sub-status.
func (c *Client) Ebarimt(ctx context.Context, providerName, sessionID string) (*EbarimtResponse, error) {
	var resp EbarimtResponse
	err := c.Do(ctx, Request{
		Method:       http.MethodGet,
		Path:         "/v1/payments/" + providerName + "/ebarimt?sessionId=" + url.QueryEscape(sessionID),
		RequiresAuth: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

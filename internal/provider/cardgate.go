package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"payflow/internal/config"
)

const cardgateName = "cardgate"

// CardGateAdapter is the card-network style provider. An invoice maps to
// a payment intent whose client secret drives the card form; settlement
// is reported on the intent itself.
type CardGateAdapter struct {
	cfg        config.CardGateConfig
	httpClient *http.Client
}

// NewCardGateAdapter creates a new CardGateAdapter.
func NewCardGateAdapter(cfg config.CardGateConfig) *CardGateAdapter {
	return &CardGateAdapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name used in gateway routes.
func (a *CardGateAdapter) Name() string { return cardgateName }

type cardIntentRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
	Description string `json:"description,omitempty"`
}

type cardIntentResponse struct {
	ID             string `json:"id"`
	ClientSecret   string `json:"client_secret"`
	Status         string `json:"status"`
	AmountReceived int64  `json:"amount_received"`
}

// CreateInvoice opens a payment intent with the provider.
func (a *CardGateAdapter) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	body := cardIntentRequest{
		Amount:      req.Amount,
		Currency:    "mnt",
		Reference:   req.SessionID,
		Description: req.Description,
	}

	raw, err := a.call(ctx, http.MethodPost, "/v1/intents", body)
	if err != nil {
		return nil, err
	}

	var intent cardIntentResponse
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, Transient("create-invoice", err)
	}

	return &Invoice{
		InvoiceID:    intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// QueryStatus fetches the current state of a payment intent.
func (a *CardGateAdapter) QueryStatus(ctx context.Context, invoiceID string) (*InvoiceStatus, error) {
	raw, err := a.call(ctx, http.MethodGet, "/v1/intents/"+invoiceID, nil)
	if err != nil {
		return nil, err
	}

	var intent cardIntentResponse
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, Transient("query-status", err)
	}

	status := &InvoiceStatus{State: InvoiceStatePending, Payload: raw}
	switch intent.Status {
	case "succeeded":
		status.State = InvoiceStatePaid
		status.PaidAmount = intent.AmountReceived
	case "declined":
		status.State = InvoiceStateDeclined
	case "canceled":
		status.State = InvoiceStateCanceled
	case "expired":
		status.State = InvoiceStateExpired
	}
	return status, nil
}

// CancelInvoice cancels a payment intent upstream.
func (a *CardGateAdapter) CancelInvoice(ctx context.Context, invoiceID string) error {
	_, err := a.call(ctx, http.MethodPost, "/v1/intents/"+invoiceID+"/cancel", nil)
	return err
}

func (a *CardGateAdapter) call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, Transient("encode", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, Transient("request", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, Transient("request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient("request", err)
	}

	if resp.StatusCode >= 500 {
		return nil, Transient("request", fmt.Errorf("provider returned %d: %s", resp.StatusCode, raw))
	}
	if resp.StatusCode >= 400 {
		return nil, Terminal("request", errors.New(string(raw)))
	}
	return raw, nil
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"payflow/internal/config"
)

const qpayName = "qpay"

// QPayAdapter is the QR-invoice style provider. Invoices carry QR
// text/image and bank deeplinks; settlement is reported via payment
// check or push callback.
type QPayAdapter struct {
	cfg        config.QPayConfig
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewQPayAdapter creates a new QPayAdapter.
func NewQPayAdapter(cfg config.QPayConfig) *QPayAdapter {
	return &QPayAdapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name used in gateway routes.
func (a *QPayAdapter) Name() string { return qpayName }

type qpayTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// token returns a cached bearer token, fetching a fresh one through the
// basic-auth token endpoint when the cache is cold or expired.
func (a *QPayAdapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/auth/token", nil)
	if err != nil {
		return "", Transient("auth", err)
	}
	req.SetBasicAuth(a.cfg.Username, a.cfg.Password)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", Transient("auth", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", Transient("auth", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body))
	}

	var token qpayTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", Transient("auth", err)
	}

	a.accessToken = token.AccessToken
	// Renew one minute early so in-flight calls never carry a stale token.
	a.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)

	return a.accessToken, nil
}

type qpayInvoiceRequest struct {
	InvoiceCode     string `json:"invoice_code"`
	SenderInvoiceNo string `json:"sender_invoice_no"`
	ReceiverCode    string `json:"invoice_receiver_code"`
	Description     string `json:"invoice_description"`
	Amount          int64  `json:"amount"`
	CallbackURL     string `json:"callback_url"`
}

type qpayInvoiceResponse struct {
	InvoiceID string     `json:"invoice_id"`
	QRText    string     `json:"qr_text"`
	QRImage   string     `json:"qr_image"`
	ShortURL  string     `json:"qPay_shortUrl"`
	URLs      []Deeplink `json:"urls"`
	ExpirySec int64      `json:"expiry_sec"`
}

// CreateInvoice opens a QR invoice with the provider.
func (a *QPayAdapter) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	token, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	receiver := req.ReceiverRef
	if receiver == "" {
		receiver = req.SessionID
	}

	body := qpayInvoiceRequest{
		InvoiceCode:     a.cfg.InvoiceCode,
		SenderInvoiceNo: req.SessionID,
		ReceiverCode:    receiver,
		Description:     req.Description,
		Amount:          req.Amount,
		CallbackURL:     a.cfg.CallbackURL,
	}

	var invoice qpayInvoiceResponse
	if err := a.post(ctx, token, "/invoice", body, &invoice); err != nil {
		return nil, err
	}

	return &Invoice{
		InvoiceID: invoice.InvoiceID,
		QRText:    invoice.QRText,
		QRImage:   invoice.QRImage,
		ShortURL:  invoice.ShortURL,
		Deeplinks: invoice.URLs,
		Lifetime:  time.Duration(invoice.ExpirySec) * time.Second,
	}, nil
}

type qpayCheckRequest struct {
	ObjectType string `json:"object_type"`
	ObjectID   string `json:"object_id"`
}

type qpayCheckResponse struct {
	Count      int   `json:"count"`
	PaidAmount int64 `json:"paid_amount"`
	Rows       []struct {
		PaymentID     string `json:"payment_id"`
		PaymentStatus string `json:"payment_status"`
	} `json:"rows"`
}

// QueryStatus fetches the settlement state of an invoice via payment check.
func (a *QPayAdapter) QueryStatus(ctx context.Context, invoiceID string) (*InvoiceStatus, error) {
	token, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	body := qpayCheckRequest{ObjectType: "INVOICE", ObjectID: invoiceID}

	raw, err := a.postRaw(ctx, token, "/payment/check", body)
	if err != nil {
		return nil, err
	}

	var check qpayCheckResponse
	if err := json.Unmarshal(raw, &check); err != nil {
		return nil, Transient("query-status", err)
	}

	status := &InvoiceStatus{State: InvoiceStatePending, Payload: raw}
	for _, row := range check.Rows {
		switch row.PaymentStatus {
		case "PAID":
			status.State = InvoiceStatePaid
			status.PaidAmount = check.PaidAmount
		case "DECLINED":
			status.State = InvoiceStateDeclined
		case "EXPIRED":
			status.State = InvoiceStateExpired
		}
	}
	return status, nil
}

// CancelInvoice voids an invoice upstream.
func (a *QPayAdapter) CancelInvoice(ctx context.Context, invoiceID string) error {
	token, err := a.token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.cfg.BaseURL+"/invoice/"+invoiceID, nil)
	if err != nil {
		return Transient("cancel-invoice", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Transient("cancel-invoice", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Transient("cancel-invoice", fmt.Errorf("provider returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return Terminal("cancel-invoice", fmt.Errorf("provider rejected cancel: %s", body))
	}
	return nil
}

// post issues an authenticated JSON POST and decodes the response into out.
func (a *QPayAdapter) post(ctx context.Context, token, path string, body, out any) error {
	raw, err := a.postRaw(ctx, token, path, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return Transient("decode", err)
	}
	return nil
}

func (a *QPayAdapter) postRaw(ctx context.Context, token, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, Transient("encode", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, Transient("request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

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

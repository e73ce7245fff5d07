package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"payflow/internal/domain"
	"payflow/internal/provider"
	"payflow/internal/redis"
	"payflow/internal/service"
)

// PaymentHandler handles HTTP requests for payment sessions.
type PaymentHandler struct {
	engine *service.ReconciliationEngine
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(engine *service.ReconciliationEngine) *PaymentHandler {
	return &PaymentHandler{engine: engine}
}

// CartItemRequest is one cart line in the seed-session body.
type CartItemRequest struct {
	ProductID string `json:"product_id"`
	SellerID  string `json:"seller_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// CouponRequest is the discount applied at checkout.
type CouponRequest struct {
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discount_amount"`
}

// EbarimtMetaRequest is the receipt metadata supplied at checkout.
type EbarimtMetaRequest struct {
	ReceiverType string `json:"receiver_type"`
	RegisterNo   string `json:"register_no,omitempty"`
}

// SeedSessionRequest is the HTTP request body for starting a session.
type SeedSessionRequest struct {
	Cart        []CartItemRequest   `json:"cart"`
	Sellers     []string            `json:"sellers"`
	TotalAmount int64               `json:"total_amount"`
	ShippingRef string              `json:"shipping_ref,omitempty"`
	Coupon      *CouponRequest      `json:"coupon,omitempty"`
	Ebarimt     *EbarimtMetaRequest `json:"ebarimt,omitempty"`
	Description string              `json:"description,omitempty"`
}

// InvoicePayload is the provider-specific payment payload returned to
// the storefront.
type InvoicePayload struct {
	InvoiceID    string              `json:"invoice_id"`
	QRText       string              `json:"qr_text,omitempty"`
	QRImage      string              `json:"qr_image,omitempty"`
	ShortURL     string              `json:"short_url,omitempty"`
	Deeplinks    []provider.Deeplink `json:"deeplinks,omitempty"`
	ClientSecret string              `json:"client_secret,omitempty"`
}

// SeedSessionResponse is the HTTP response for starting a session.
type SeedSessionResponse struct {
	Success   bool            `json:"success"`
	SessionID string          `json:"session_id,omitempty"`
	TTLSec    int64           `json:"ttl_sec,omitempty"`
	Invoice   *InvoicePayload `json:"invoice,omitempty"`
	Error     string          `json:"error,omitempty"`
	Details   string          `json:"details,omitempty"`
}

// SeedSession handles POST /v1/payments/:provider/seed-session
func (h *PaymentHandler) SeedSession(c *gin.Context) {
	var req SeedSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, SeedSessionResponse{Success: false, Error: "invalid request body", Details: err.Error()})
		return
	}

	cart := make([]domain.LineItem, 0, len(req.Cart))
	for _, item := range req.Cart {
		cart = append(cart, domain.LineItem{
			ProductID: item.ProductID,
			SellerID:  item.SellerID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	serviceReq := service.StartSessionRequest{
		Provider:    c.Param("provider"),
		Cart:        cart,
		Sellers:     req.Sellers,
		TotalAmount: req.TotalAmount,
		ShippingRef: req.ShippingRef,
		Description: req.Description,
	}
	if req.Coupon != nil {
		serviceReq.Coupon = &domain.Coupon{Code: req.Coupon.Code, DiscountAmount: req.Coupon.DiscountAmount}
	}
	if req.Ebarimt != nil {
		serviceReq.Ebarimt = &domain.EbarimtRequest{ReceiverType: req.Ebarimt.ReceiverType, RegisterNo: req.Ebarimt.RegisterNo}
	}

	result, err := h.engine.StartSession(c.Request.Context(), serviceReq)
	if err != nil {
		code := mapErrorToHTTPStatus(err)
		c.JSON(code, SeedSessionResponse{Success: false, Error: "seed session failed", Details: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, SeedSessionResponse{
		Success:   true,
		SessionID: result.Session.SessionID,
		TTLSec:    int64(result.TTL / time.Second),
		Invoice: &InvoicePayload{
			InvoiceID:    result.Invoice.InvoiceID,
			QRText:       result.Invoice.QRText,
			QRImage:      result.Invoice.QRImage,
			ShortURL:     result.Invoice.ShortURL,
			Deeplinks:    result.Invoice.Deeplinks,
			ClientSecret: result.Invoice.ClientSecret,
		},
	})
}

// StatusResponse is the HTTP response for a status poll.
type StatusResponse struct {
	OK             bool     `json:"ok"`
	SessionID      string   `json:"session_id,omitempty"`
	Status         string   `json:"status,omitempty"`
	InvoiceID      string   `json:"invoice_id,omitempty"`
	OrderIDs       []string `json:"order_ids,omitempty"`
	PaidAmount     *int64   `json:"paid_amount,omitempty"`
	ExpectedAmount int64    `json:"expected_amount,omitempty"`
	LastCheckAt    string   `json:"last_check_at,omitempty"`
	ProcessedAt    string   `json:"processed_at,omitempty"`
	Processing     bool     `json:"processing,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Status handles GET /v1/payments/:provider/status?sessionId=
//
// Internal failures come back as a structured {ok:false} payload with a
// 200 transport status so storefront polling loops degrade gracefully
// instead of crashing on a bare 5xx.
func (h *PaymentHandler) Status(c *gin.Context) {
	sessionID := c.Query("sessionId")

	snapshot, err := h.engine.QueryStatus(c.Request.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, redis.ErrNotFound):
			c.JSON(http.StatusNotFound, StatusResponse{OK: false, SessionID: sessionID, Error: "session not found"})
		case errors.Is(err, service.ErrInvalidSessionID):
			c.JSON(http.StatusBadRequest, StatusResponse{OK: false, Error: err.Error()})
		default:
			c.JSON(http.StatusOK, StatusResponse{
				OK:        false,
				SessionID: sessionID,
				Status:    string(domain.SessionStatusFailed),
				Error:     err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, statusPayload(snapshot))
}

func statusPayload(snapshot *service.StatusSnapshot) StatusResponse {
	resp := StatusResponse{
		OK:             true,
		SessionID:      snapshot.SessionID,
		Status:         string(snapshot.Status),
		InvoiceID:      snapshot.InvoiceID,
		OrderIDs:       snapshot.OrderIDs,
		PaidAmount:     snapshot.PaidAmount,
		ExpectedAmount: snapshot.ExpectedAmount,
		Processing:     snapshot.Processing,
	}
	if !snapshot.LastCheckAt.IsZero() {
		resp.LastCheckAt = snapshot.LastCheckAt.Format(time.RFC3339)
	}
	if !snapshot.ProcessedAt.IsZero() {
		resp.ProcessedAt = snapshot.ProcessedAt.Format(time.RFC3339)
	}
	return resp
}

// CancelRequest is the HTTP request body for cancelling a session.
type CancelRequest struct {
	SessionID string `json:"session_id"`
}

// CancelResponse is the HTTP response for cancelling a session.
type CancelResponse struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Cancel handles POST /v1/payments/:provider/cancel
func (h *PaymentHandler) Cancel(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, CancelResponse{OK: false, Message: "invalid request body"})
		return
	}

	session, err := h.engine.Cancel(c.Request.Context(), req.SessionID)
	if err != nil {
		code := mapErrorToHTTPStatus(err)
		c.JSON(code, CancelResponse{OK: false, Message: err.Error(), SessionID: req.SessionID})
		return
	}

	c.JSON(http.StatusOK, CancelResponse{
		OK:        true,
		Message:   "session cancelled",
		SessionID: session.SessionID,
		Status:    string(session.Status),
	})
}

// EbarimtInfoPayload is the nested receipt sub-status.
type EbarimtInfoPayload struct {
	Status    string `json:"status"`
	ReceiptID string `json:"receipt_id,omitempty"`
	QRData    string `json:"qr_data,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// EbarimtResponse is the HTTP response for a receipt lookup.
type EbarimtResponse struct {
	OK        bool                `json:"ok"`
	SessionID string              `json:"session_id,omitempty"`
	Status    string              `json:"status,omitempty"`
	Ebarimt   *EbarimtInfoPayload `json:"ebarimt,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// Ebarimt handles GET /v1/payments/:provider/ebarimt?sessionId=
func (h *PaymentHandler) Ebarimt(c *gin.Context) {
	sessionID := c.Query("sessionId")

	session, err := h.engine.Ebarimt(c.Request.Context(), sessionID)
	if err != nil {
		code := mapErrorToHTTPStatus(err)
		c.JSON(code, EbarimtResponse{OK: false, SessionID: sessionID, Error: err.Error()})
		return
	}

	resp := EbarimtResponse{
		OK:        true,
		SessionID: session.SessionID,
		Status:    string(session.Status),
	}
	if session.EbarimtInfo != nil {
		resp.Ebarimt = &EbarimtInfoPayload{
			Status:    string(session.EbarimtInfo.Status),
			ReceiptID: session.EbarimtInfo.ReceiptID,
			QRData:    session.EbarimtInfo.QRData,
			LastError: session.EbarimtInfo.LastError,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// CallbackRequest is the push notification body from the provider.
type CallbackRequest struct {
	InvoiceID  string `json:"invoice_id"`
	PaidAmount int64  `json:"paid_amount"`
}

// Callback handles POST /v1/payments/:provider/callback
//
// Providers redeliver callbacks; the engine's materialization path makes
// duplicates harmless, so any outcome that leaves the session in a
// consistent state acknowledges with 200.
func (h *PaymentHandler) Callback(c *gin.Context) {
	var req CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body"})
		return
	}

	snapshot, err := h.engine.NotifyPaid(c.Request.Context(), req.InvoiceID, req.PaidAmount)
	if err != nil {
		switch {
		case errors.Is(err, redis.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "unknown invoice"})
		case errors.Is(err, service.ErrInvalidInvoiceID):
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		default:
			// Provider will redeliver; a transient failure here must not be
			// acknowledged as processed.
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, statusPayload(snapshot))
}

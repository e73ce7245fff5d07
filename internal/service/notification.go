package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"payflow/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationPaymentConfirmed NotificationType = "PAYMENT_CONFIRMED"
	NotificationPaymentFailed    NotificationType = "PAYMENT_FAILED"
	NotificationOrdersCreated    NotificationType = "ORDERS_CREATED"
	NotificationReceiptReady     NotificationType = "RECEIPT_READY"
)

// Notification represents a notification to be sent.
type Notification struct {
	Type      NotificationType
	SessionID string
	Title     string
	Message   string
	Data      map[string]interface{}
	CreatedAt time.Time
}

// NotificationService handles notification delivery for payment events.
type NotificationService struct {
	// In a real deployment this would carry push/SMS/email clients and
	// WebSocket connections for the storefront's order page.
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

// NotifyPaymentConfirmed notifies that a session's payment settled.
func (s *NotificationService) NotifyPaymentConfirmed(ctx context.Context, session *domain.PaymentSession) error {
	paid := int64(0)
	if session.PaidAmount != nil {
		paid = *session.PaidAmount
	}
	return s.send(ctx, Notification{
		Type:      NotificationPaymentConfirmed,
		SessionID: session.SessionID,
		Title:     "Payment Confirmed",
		Message:   fmt.Sprintf("Payment of %d was confirmed", paid),
		Data: map[string]interface{}{
			"session_id":  session.SessionID,
			"paid_amount": paid,
			"provider":    session.Provider,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyOrdersCreated notifies that a paid session materialized into orders.
func (s *NotificationService) NotifyOrdersCreated(ctx context.Context, session *domain.PaymentSession) error {
	return s.send(ctx, Notification{
		Type:      NotificationOrdersCreated,
		SessionID: session.SessionID,
		Title:     "Orders Created",
		Message:   fmt.Sprintf("%d order(s) created from your payment", len(session.OrderIDs)),
		Data: map[string]interface{}{
			"session_id": session.SessionID,
			"order_ids":  session.OrderIDs,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyPaymentFailed notifies that a session ended in a provider decline.
func (s *NotificationService) NotifyPaymentFailed(ctx context.Context, session *domain.PaymentSession, reason string) error {
	return s.send(ctx, Notification{
		Type:      NotificationPaymentFailed,
		SessionID: session.SessionID,
		Title:     "Payment Failed",
		Message:   "Your payment could not be completed. Please try again.",
		Data: map[string]interface{}{
			"session_id": session.SessionID,
			"reason":     reason,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyReceiptReady notifies that the tax receipt was registered.
func (s *NotificationService) NotifyReceiptReady(ctx context.Context, session *domain.PaymentSession) error {
	receiptID := ""
	if session.EbarimtInfo != nil {
		receiptID = session.EbarimtInfo.ReceiptID
	}
	return s.send(ctx, Notification{
		Type:      NotificationReceiptReady,
		SessionID: session.SessionID,
		Title:     "Receipt Ready",
		Message:   "Your tax receipt is ready",
		Data: map[string]interface{}{
			"session_id": session.SessionID,
			"receipt_id": receiptID,
		},
		CreatedAt: time.Now(),
	})
}

// send delivers a notification (mock implementation).
func (s *NotificationService) send(ctx context.Context, notification Notification) error {
	log.Printf("[NOTIFICATION] Type=%s, Session=%s, Title=%s, Message=%s",
		notification.Type, notification.SessionID, notification.Title, notification.Message)
	return nil
}

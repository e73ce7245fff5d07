package domain

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := map[SessionStatus][]SessionStatus{
		SessionStatusPending: {SessionStatusPaid, SessionStatusFailed, SessionStatusCancelled, SessionStatusExpired},
		SessionStatusPaid:    {SessionStatusProcessed},
	}

	all := []SessionStatus{
		SessionStatusPending, SessionStatusPaid, SessionStatusProcessed,
		SessionStatusFailed, SessionStatusCancelled, SessionStatusExpired,
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, legal := range allowed[from] {
				if to == legal {
					want = true
				}
			}
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()

	terminal := map[SessionStatus]bool{
		SessionStatusPending:   false,
		SessionStatusPaid:      false,
		SessionStatusProcessed: true,
		SessionStatusFailed:    true,
		SessionStatusCancelled: true,
		SessionStatusExpired:   true,
	}

	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestExpired_OnlyAppliesToPending(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Minute)

	pending := &PaymentSession{Status: SessionStatusPending, ExpiresAt: past}
	if !pending.Expired(time.Now()) {
		t.Error("expected pending session past its deadline to be expired")
	}

	paid := &PaymentSession{Status: SessionStatusPaid, ExpiresAt: past}
	if paid.Expired(time.Now()) {
		t.Error("expected paid session to never expire by deadline")
	}

	live := &PaymentSession{Status: SessionStatusPending, ExpiresAt: time.Now().Add(time.Minute)}
	if live.Expired(time.Now()) {
		t.Error("expected session before its deadline to not be expired")
	}
}

func TestCartTotal(t *testing.T) {
	t.Parallel()

	items := []LineItem{
		{ProductID: "p-1", SellerID: "s-1", Quantity: 2, UnitPrice: 10000},
		{ProductID: "p-2", SellerID: "s-2", Quantity: 1, UnitPrice: 30000},
	}

	if got := CartTotal(items, nil); got != 50000 {
		t.Errorf("CartTotal without coupon = %d, want 50000", got)
	}

	coupon := &Coupon{Code: "SAVE", DiscountAmount: 5000}
	if got := CartTotal(items, coupon); got != 45000 {
		t.Errorf("CartTotal with coupon = %d, want 45000", got)
	}

	oversized := &Coupon{Code: "FREE", DiscountAmount: 100000}
	if got := CartTotal(items, oversized); got != 0 {
		t.Errorf("CartTotal with oversized coupon = %d, want 0", got)
	}
}

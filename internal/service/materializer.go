package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"payflow/internal/domain"
	"payflow/internal/repository"
)

// OrderMaterializer turns a paid session into persisted orders. The
// implementation must be idempotent given the materialization token
// derived from the session ID.
type OrderMaterializer interface {
	Materialize(ctx context.Context, session *domain.PaymentSession) ([]string, error)
}

// RepositoryMaterializer materializes orders through an OrderRepository.
type RepositoryMaterializer struct {
	orders repository.OrderRepository
	now    func() time.Time
}

// NewRepositoryMaterializer creates a new RepositoryMaterializer.
func NewRepositoryMaterializer(orders repository.OrderRepository) *RepositoryMaterializer {
	return &RepositoryMaterializer{
		orders: orders,
		now:    time.Now,
	}
}

// Materialize splits the frozen cart snapshot per seller and persists
// one order per seller. Tokens are derived from the session ID, so
// repeated invocations for the same session converge on the same ID set.
func (m *RepositoryMaterializer) Materialize(ctx context.Context, session *domain.PaymentSession) ([]string, error) {
	bySeller := make(map[string][]domain.LineItem)
	for _, li := range session.CartSnapshot {
		bySeller[li.SellerID] = append(bySeller[li.SellerID], li)
	}

	sellers := make([]string, 0, len(bySeller))
	for seller := range bySeller {
		sellers = append(sellers, seller)
	}
	sort.Strings(sellers)

	subtotals := make(map[string]int64, len(sellers))
	var gross int64
	for seller, items := range bySeller {
		var sub int64
		for _, li := range items {
			sub += li.Subtotal()
		}
		subtotals[seller] = sub
		gross += sub
	}

	discounts := splitDiscount(session.Coupon, sellers, subtotals, gross)

	now := m.now()
	orders := make([]*domain.Order, 0, len(sellers))
	for _, seller := range sellers {
		amount := subtotals[seller] - discounts[seller]
		if amount < 0 {
			amount = 0
		}
		orders = append(orders, &domain.Order{
			ID:        uuid.New().String(),
			SessionID: session.SessionID,
			SellerID:  seller,
			Items:     bySeller[seller],
			Amount:    amount,
			Token:     fmt.Sprintf("%s:%s", session.SessionID, seller),
			CreatedAt: now,
		})
	}

	return m.orders.CreateBatch(ctx, orders)
}

// splitDiscount allocates a coupon discount across sellers in proportion
// to their subtotals. Rounding remainder lands on the first seller in
// sorted order so the allocated parts always sum to the discount.
func splitDiscount(coupon *domain.Coupon, sellers []string, subtotals map[string]int64, gross int64) map[string]int64 {
	discounts := make(map[string]int64, len(sellers))
	if coupon == nil || coupon.DiscountAmount <= 0 || gross <= 0 {
		return discounts
	}

	var allocated int64
	for _, seller := range sellers {
		share := coupon.DiscountAmount * subtotals[seller] / gross
		discounts[seller] = share
		allocated += share
	}
	if remainder := coupon.DiscountAmount - allocated; remainder > 0 && len(sellers) > 0 {
		discounts[sellers[0]] += remainder
	}
	return discounts
}

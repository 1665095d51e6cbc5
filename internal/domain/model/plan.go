package model

import (
	"time"

	"edu-subscription-payments/internal/domain"
)

// SubscriptionPlan is a purchasable plan with a fixed duration in months and
// two prices: the original list price and the discounted price actually
// charged. Plans are reference data maintained by an administrator; the
// payment flow never mutates them.
type SubscriptionPlan struct {
	ID              string
	Name            string
	DurationMonths  int
	OriginalPrice   int64 // Toman
	DiscountedPrice int64 // Toman; authoritative base for charging
	HasInstallment  bool
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// plan durations sold by the platform
var allowedDurations = map[int]bool{1: true, 2: true, 3: true, 6: true, 12: true}

// NewSubscriptionPlan validates and constructs a plan.
func NewSubscriptionPlan(id, name string, durationMonths int, originalPrice, discountedPrice int64) (*SubscriptionPlan, error) {
	if id == "" || name == "" || !allowedDurations[durationMonths] {
		return nil, domain.ErrInvalidArgument
	}
	if originalPrice <= 0 || discountedPrice < 0 || discountedPrice > originalPrice {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &SubscriptionPlan{
		ID:              id,
		Name:            name,
		DurationMonths:  durationMonths,
		OriginalPrice:   originalPrice,
		DiscountedPrice: discountedPrice,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (p *SubscriptionPlan) IsZero() bool { return p == nil || p.ID == "" }

// Duration returns the entitlement window granted by one purchase.
// A month counts as 30 days; the end date is computed once at reservation
// time and never recomputed.
func (p *SubscriptionPlan) Duration() time.Duration {
	return time.Duration(p.DurationMonths) * 30 * 24 * time.Hour
}

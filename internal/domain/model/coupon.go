package model

import (
	"time"

	"edu-subscription-payments/internal/domain"
)

type CouponType string

const (
	CouponTypePercent CouponType = "percent"
	CouponTypeFixed   CouponType = "fixed"
)

// Coupon is a discount code with a validity window and a usage cap.
// number_of_uses is only ever incremented through the guarded UPDATE in the
// coupon repository, so two concurrent redemptions cannot both squeeze under
// MaximumUse.
type Coupon struct {
	ID           string
	Code         string
	Type         CouponType
	Amount       int64 // percent (0..100) or fixed Toman amount depending on Type
	MaximumUse   int
	NumberOfUses int
	ValidFrom    time.Time
	ValidTo      time.Time
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsValid reports whether the coupon can still be redeemed at the given time.
func (c *Coupon) IsValid(now time.Time) bool {
	if c == nil || !c.IsActive {
		return false
	}
	return c.NumberOfUses < c.MaximumUse && now.After(c.ValidFrom) && now.Before(c.ValidTo)
}

// Apply computes the discounted price for a base amount. The result is
// clamped at zero: a coupon can fully cover a plan but never produce a
// negative price.
func (c *Coupon) Apply(base int64) (int64, error) {
	var final int64
	switch c.Type {
	case CouponTypePercent:
		if c.Amount < 0 || c.Amount > 100 {
			return 0, domain.ErrInvalidArgument
		}
		final = base - base*c.Amount/100
	case CouponTypeFixed:
		if c.Amount < 0 {
			return 0, domain.ErrInvalidArgument
		}
		final = base - c.Amount
	default:
		return 0, domain.ErrInvalidArgument
	}
	if final < 0 {
		final = 0
	}
	return final, nil
}

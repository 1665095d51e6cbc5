package repository

import (
	"context"

	"edu-subscription-payments/internal/domain/model"
)

// CouponRepository is the port for discount codes.
type CouponRepository interface {
	Save(ctx context.Context, tx Tx, c *model.Coupon) error
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Coupon, error)

	// Redeem increments number_of_uses for one coupon, guarded by the same
	// validity predicate as Coupon.IsValid. The guard and the increment run
	// in a single UPDATE so two concurrent redemptions cannot both pass just
	// under the usage cap. Returns domain.ErrCouponInvalid when the guard
	// rejects the row.
	Redeem(ctx context.Context, tx Tx, code string) error
}

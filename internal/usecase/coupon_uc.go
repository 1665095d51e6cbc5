package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"edu-subscription-payments/internal/domain"
	"edu-subscription-payments/internal/domain/model"
	"edu-subscription-payments/internal/domain/ports/repository"
)

// Compile-time check
var _ CouponEngine = (*couponUC)(nil)

// CouponEngine validates coupon codes and computes discounted prices from a
// plan's discounted price (the authoritative base).
type CouponEngine interface {
	// PriceFor returns the final price for the plan. An empty code returns
	// the plan's discounted price unchanged; an unknown code fails with
	// domain.ErrCouponNotFound and an invalid one with domain.ErrCouponInvalid.
	// The result is never negative; zero means fully covered by the coupon.
	PriceFor(ctx context.Context, plan *model.SubscriptionPlan, code string) (int64, error)

	// Redeem counts one use of the coupon. The usage-cap guard and the
	// increment execute as one atomic statement in the repository.
	Redeem(ctx context.Context, tx repository.Tx, code string) error
}

type couponUC struct {
	coupons repository.CouponRepository
	log     *zerolog.Logger
}

func NewCouponEngine(coupons repository.CouponRepository, logger *zerolog.Logger) *couponUC {
	return &couponUC{coupons: coupons, log: logger}
}

func (u *couponUC) PriceFor(ctx context.Context, plan *model.SubscriptionPlan, code string) (int64, error) {
	if plan.IsZero() {
		return 0, domain.ErrInvalidArgument
	}
	base := plan.DiscountedPrice
	if code == "" {
		return base, nil
	}

	c, err := u.coupons.FindByCode(ctx, nil, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, domain.ErrCouponNotFound
		}
		return 0, err
	}
	if !c.IsValid(time.Now()) {
		u.log.Debug().Str("coupon", code).Msg("coupon rejected by validity check")
		return 0, domain.ErrCouponInvalid
	}

	final, err := c.Apply(base)
	if err != nil {
		return 0, err
	}
	u.log.Debug().
		Str("coupon", code).
		Int64("base", base).
		Int64("final", final).
		Msg("coupon applied")
	return final, nil
}

func (u *couponUC) Redeem(ctx context.Context, tx repository.Tx, code string) error {
	if code == "" {
		return domain.ErrInvalidArgument
	}
	return u.coupons.Redeem(ctx, tx, code)
}

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"edu-subscription-payments/internal/domain"
	"edu-subscription-payments/internal/domain/model"
	"edu-subscription-payments/internal/domain/ports/repository"
)

var _ repository.CouponRepository = (*couponRepo)(nil)

type couponRepo struct{ pool *pgxpool.Pool }

func NewCouponRepo(pool *pgxpool.Pool) *couponRepo {
	return &couponRepo{pool: pool}
}

const couponColumns = `id, code, coupon_type, amount, maximum_use, number_of_uses, valid_from, valid_to, is_active, created_at, updated_at`

func (r *couponRepo) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	const q = `
INSERT INTO coupons (id, code, coupon_type, amount, maximum_use, number_of_uses, valid_from, valid_to, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  code=$2, coupon_type=$3, amount=$4, maximum_use=$5, number_of_uses=$6, valid_from=$7, valid_to=$8, is_active=$9, updated_at=$11;`

	_, err := execSQL(ctx, r.pool, tx, q, c.ID, c.Code, c.Type, c.Amount, c.MaximumUse, c.NumberOfUses, c.ValidFrom, c.ValidTo, c.IsActive, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *couponRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	const q = `SELECT ` + couponColumns + ` FROM coupons WHERE code=$1 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}

	c := &model.Coupon{}
	if err := row.Scan(&c.ID, &c.Code, &c.Type, &c.Amount, &c.MaximumUse, &c.NumberOfUses, &c.ValidFrom, &c.ValidTo, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return c, nil
}

// Redeem increments the usage counter only while the validity predicate
// still holds. The single UPDATE makes the cap check and the increment
// atomic; zero affected rows means another redemption won the race or the
// coupon is no longer valid.
func (r *couponRepo) Redeem(ctx context.Context, tx repository.Tx, code string) error {
	const q = `
UPDATE coupons
   SET number_of_uses = number_of_uses + 1,
       updated_at = NOW()
 WHERE code = $1
   AND is_active
   AND number_of_uses < maximum_use
   AND valid_from < NOW()
   AND valid_to > NOW();`

	cmd, err := execSQL(ctx, r.pool, tx, q, code)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrCouponInvalid
	}
	return nil
}

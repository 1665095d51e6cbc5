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

var _ repository.SubscriptionPlanRepository = (*planRepo)(nil)

type planRepo struct{ pool *pgxpool.Pool }

func NewPlanRepo(pool *pgxpool.Pool) *planRepo {
	return &planRepo{pool: pool}
}

const planColumns = `id, name, duration_months, original_price, discounted_price, has_installment, is_active, created_at, updated_at`

func (r *planRepo) Save(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	const q = `
INSERT INTO subscription_plans (id, name, duration_months, original_price, discounted_price, has_installment, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  name=$2, duration_months=$3, original_price=$4, discounted_price=$5, has_installment=$6, is_active=$7, updated_at=$9;`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Name, p.DurationMonths, p.OriginalPrice, p.DiscountedPrice, p.HasInstallment, p.IsActive, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *planRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	const q = `SELECT ` + planColumns + ` FROM subscription_plans WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPlan(row)
}

func (r *planRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	const q = `SELECT ` + planColumns + ` FROM subscription_plans WHERE is_active ORDER BY duration_months, id;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.SubscriptionPlan
	for rows.Next() {
		p := new(model.SubscriptionPlan)
		if err := rows.Scan(&p.ID, &p.Name, &p.DurationMonths, &p.OriginalPrice, &p.DiscountedPrice, &p.HasInstallment, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, nil
}

func scanPlan(row pgx.Row) (*model.SubscriptionPlan, error) {
	p := &model.SubscriptionPlan{}
	if err := row.Scan(&p.ID, &p.Name, &p.DurationMonths, &p.OriginalPrice, &p.DiscountedPrice, &p.HasInstallment, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"edu-subscription-payments/internal/domain"
	"edu-subscription-payments/internal/domain/model"
	"edu-subscription-payments/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subColumns = `id, user_id, plan_id, start_date, end_date, status, transaction_id, created_at, updated_at`

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.UserSubscription) error {
	const q = `
INSERT INTO user_subscriptions (id, user_id, plan_id, start_date, end_date, status, transaction_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  start_date=$4, end_date=$5, status=$6, transaction_id=$7, updated_at=$9;`

	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.UserID, s.PlanID, s.StartDate, s.EndDate, s.Status, s.TransactionID, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserSubscription, error) {
	q := `SELECT ` + subColumns + ` FROM user_subscriptions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) FindLiveByUser(ctx context.Context, tx repository.Tx, userID string, now time.Time) (*model.UserSubscription, error) {
	const q = `
SELECT ` + subColumns + `
  FROM user_subscriptions
 WHERE user_id=$1 AND status='active' AND start_date<=$2 AND end_date>=$2
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, now)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) FindReserveByUserAndPlan(ctx context.Context, tx repository.Tx, userID, planID string) (*model.UserSubscription, error) {
	q := `SELECT ` + subColumns + ` FROM user_subscriptions WHERE user_id=$1 AND plan_id=$2 AND status='reserve' ORDER BY created_at DESC LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, userID, planID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.UserSubscription, error) {
	q := `SELECT ` + subColumns + ` FROM user_subscriptions WHERE transaction_id=$1 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, transactionID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.UserSubscription, error) {
	const q = `SELECT ` + subColumns + ` FROM user_subscriptions WHERE user_id=$1 ORDER BY created_at DESC OFFSET $2 LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, offset, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.UserSubscription
	for rows.Next() {
		s := new(model.UserSubscription)
		if err := rows.Scan(&s.ID, &s.UserID, &s.PlanID, &s.StartDate, &s.EndDate, &s.Status, &s.TransactionID, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	return out, nil
}

// UpdateStatus transitions a row only when it currently holds the expected
// status, reporting whether a row actually changed.
func (r *subscriptionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, from, to model.SubscriptionStatus) (bool, error) {
	const q = `UPDATE user_subscriptions SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, from, to)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *subscriptionRepo) ExpireDue(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	const q = `UPDATE user_subscriptions SET status='expired', updated_at=NOW() WHERE status='active' AND end_date < $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, domain.ErrOperationFailed
	}
	return cmd.RowsAffected(), nil
}

// CancelStaleReserves abandons reserve rows that never saw a verification:
// created before the cutoff and with no payment result for their
// transaction id.
func (r *subscriptionRepo) CancelStaleReserves(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	const q = `
UPDATE user_subscriptions s
   SET status='canceled', updated_at=NOW()
 WHERE s.status='reserve'
   AND s.created_at < $1
   AND NOT EXISTS (
         SELECT 1 FROM payment_results pr WHERE pr.order_id = s.transaction_id
       );`
	cmd, err := execSQL(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		return 0, domain.ErrOperationFailed
	}
	return cmd.RowsAffected(), nil
}

func scanSubscription(row pgx.Row) (*model.UserSubscription, error) {
	s := &model.UserSubscription{}
	if err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.StartDate, &s.EndDate, &s.Status, &s.TransactionID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

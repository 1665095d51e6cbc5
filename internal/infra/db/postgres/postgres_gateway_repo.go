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

var _ repository.GatewayRepository = (*gatewayRepo)(nil)

type gatewayRepo struct{ pool *pgxpool.Pool }

func NewGatewayRepo(pool *pgxpool.Pool) *gatewayRepo {
	return &gatewayRepo{pool: pool}
}

const attemptColumns = `id, user_id, plan_id, order_id, track_id, result_code, message, amount, is_complete, is_active, created_at, updated_at`

func (r *gatewayRepo) SaveAttempt(ctx context.Context, tx repository.Tx, a *model.GatewayAttempt) error {
	const q = `
INSERT INTO gateway_attempts (id, user_id, plan_id, order_id, track_id, result_code, message, amount, is_complete, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`

	_, err := execSQL(ctx, r.pool, tx, q, a.ID, a.UserID, a.PlanID, a.OrderID, a.TrackID, a.ResultCode, a.Message, a.Amount, a.IsComplete, a.IsActive, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

// FindByTrackID is scoped to the user and to is_active rows so an inbound
// callback cannot be replayed against another user's attempt.
func (r *gatewayRepo) FindByTrackID(ctx context.Context, tx repository.Tx, trackID, userID string) (*model.GatewayAttempt, error) {
	q := `SELECT ` + attemptColumns + ` FROM gateway_attempts WHERE track_id=$1 AND user_id=$2 AND is_active LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, trackID, userID)
	if err != nil {
		return nil, err
	}
	return scanAttempt(row)
}

func (r *gatewayRepo) FindAttemptByID(ctx context.Context, tx repository.Tx, id string) (*model.GatewayAttempt, error) {
	const q = `SELECT ` + attemptColumns + ` FROM gateway_attempts WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanAttempt(row)
}

// MarkComplete flips is_complete exactly once. RowsAffected distinguishes
// the first confirm from a replay racing it.
func (r *gatewayRepo) MarkComplete(ctx context.Context, tx repository.Tx, attemptID string) (bool, error) {
	const q = `UPDATE gateway_attempts SET is_complete=TRUE, updated_at=NOW() WHERE id=$1 AND NOT is_complete;`
	cmd, err := execSQL(ctx, r.pool, tx, q, attemptID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *gatewayRepo) SaveResult(ctx context.Context, tx repository.Tx, p *model.PaymentResult) error {
	const q = `
INSERT INTO payment_results (id, attempt_id, paid_at, amount, status_code, result_code, ref_number, card_number, order_id, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.AttemptID, p.PaidAt, p.Amount, p.StatusCode, p.ResultCode, p.RefNumber, p.CardNumber, p.OrderID, p.Message, p.CreatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *gatewayRepo) FindResultByAttemptID(ctx context.Context, tx repository.Tx, attemptID string) (*model.PaymentResult, error) {
	const q = `SELECT id, attempt_id, paid_at, amount, status_code, result_code, ref_number, card_number, order_id, message, created_at FROM payment_results WHERE attempt_id=$1 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, attemptID)
	if err != nil {
		return nil, err
	}

	p := &model.PaymentResult{}
	if err := row.Scan(&p.ID, &p.AttemptID, &p.PaidAt, &p.Amount, &p.StatusCode, &p.ResultCode, &p.RefNumber, &p.CardNumber, &p.OrderID, &p.Message, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *gatewayRepo) ListIncompleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.GatewayAttempt, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + attemptColumns + `
  FROM gateway_attempts
 WHERE NOT is_complete AND is_active AND track_id IS NOT NULL AND created_at < $1
 ORDER BY created_at ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, cutoff, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.GatewayAttempt
	for rows.Next() {
		a := new(model.GatewayAttempt)
		if err := rows.Scan(&a.ID, &a.UserID, &a.PlanID, &a.OrderID, &a.TrackID, &a.ResultCode, &a.Message, &a.Amount, &a.IsComplete, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, a)
	}
	return out, nil
}

func scanAttempt(row pgx.Row) (*model.GatewayAttempt, error) {
	a := &model.GatewayAttempt{}
	if err := row.Scan(&a.ID, &a.UserID, &a.PlanID, &a.OrderID, &a.TrackID, &a.ResultCode, &a.Message, &a.Amount, &a.IsComplete, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return a, nil
}

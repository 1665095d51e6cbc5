package usecase

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"edu-subscription-payments/internal/domain"
	"edu-subscription-payments/internal/domain/model"
	"edu-subscription-payments/internal/domain/ports/repository"
)

// Compile-time check
var _ SubscriptionLedger = (*subscriptionUC)(nil)

// SubscriptionLedger owns the UserSubscription lifecycle
// (reserve -> active/expired/canceled) and enforces the single-active-plan
// invariant.
type SubscriptionLedger interface {
	// GuardNoActivePlan fails with domain.ErrActivePlanExists when the user
	// holds a subscription that is active and overlapping now.
	GuardNoActivePlan(ctx context.Context, tx repository.Tx, userID string) error

	// Reserve creates a reserve row for the user and plan. transactionID is
	// the idempotency key: a retried call with the same id returns the
	// existing row instead of creating a duplicate. A lingering reserve row
	// for the same user and plan is re-keyed to the new transaction id so
	// retried purchases do not accumulate rows.
	Reserve(ctx context.Context, userID string, plan *model.SubscriptionPlan, transactionID string) (*model.UserSubscription, error)

	// Activate transitions reserve -> active. Fails with
	// domain.ErrInvalidTransition when the row is not currently reserve.
	Activate(ctx context.Context, tx repository.Tx, subscriptionID string) error

	// FastTrackActivate creates the row directly as active, used only when
	// the computed price is exactly zero and no gateway round-trip happens.
	FastTrackActivate(ctx context.Context, userID string, plan *model.SubscriptionPlan, transactionID string) (*model.UserSubscription, error)

	FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserSubscription, error)
	FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.UserSubscription, error)

	// FindReserveByUserAndPlan returns the user's pending reserve row for the
	// plan regardless of which transaction id it is currently keyed by.
	FindReserveByUserAndPlan(ctx context.Context, tx repository.Tx, userID, planID string) (*model.UserSubscription, error)

	ListByUser(ctx context.Context, userID string, offset, limit int) ([]*model.UserSubscription, error)

	// ExpireDue and CancelStaleReserves are driven by the sweep worker.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	CancelStaleReserves(ctx context.Context, olderThan time.Duration) (int64, error)
}

type subscriptionUC struct {
	subs repository.SubscriptionRepository
	pool *pgxpool.Pool // optional; enables the advisory-lock path
	log  *zerolog.Logger
}

// NewSubscriptionLedger constructs the ledger. pool may be nil (tests with
// in-memory repositories); with a pool, guard+create runs inside a
// transaction holding a per-user advisory lock.
func NewSubscriptionLedger(subs repository.SubscriptionRepository, pool *pgxpool.Pool, logger *zerolog.Logger) *subscriptionUC {
	return &subscriptionUC{subs: subs, pool: pool, log: logger}
}

func hashToInt64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64() & ((1 << 63) - 1))
}

func (uc *subscriptionUC) GuardNoActivePlan(ctx context.Context, tx repository.Tx, userID string) error {
	live, err := uc.subs.FindLiveByUser(ctx, tx, userID, time.Now())
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if live != nil {
		return domain.ErrActivePlanExists
	}
	return nil
}

func (uc *subscriptionUC) Reserve(ctx context.Context, userID string, plan *model.SubscriptionPlan, transactionID string) (*model.UserSubscription, error) {
	return uc.createLocked(ctx, userID, plan, transactionID, model.SubscriptionStatusReserve)
}

func (uc *subscriptionUC) FastTrackActivate(ctx context.Context, userID string, plan *model.SubscriptionPlan, transactionID string) (*model.UserSubscription, error) {
	return uc.createLocked(ctx, userID, plan, transactionID, model.SubscriptionStatusActive)
}

// createLocked serializes guard+create per user. With a pool the check and
// the insert run inside one transaction holding pg_advisory_xact_lock on the
// user id, so two concurrent start-payment calls cannot both pass the guard.
func (uc *subscriptionUC) createLocked(ctx context.Context, userID string, plan *model.SubscriptionPlan, transactionID string, status model.SubscriptionStatus) (*model.UserSubscription, error) {
	if uc.pool == nil {
		return uc.create(ctx, nil, userID, plan, transactionID, status)
	}

	conn, err := uc.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", hashToInt64(userID)); err != nil {
		return nil, err
	}

	sub, err := uc.create(ctx, tx, userID, plan, transactionID, status)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return sub, nil
}

func (uc *subscriptionUC) create(ctx context.Context, tx repository.Tx, userID string, plan *model.SubscriptionPlan, transactionID string, status model.SubscriptionStatus) (*model.UserSubscription, error) {
	// idempotent replay of the same transaction id
	if existing, err := uc.subs.FindByTransactionID(ctx, tx, transactionID); err == nil && existing != nil {
		return existing, nil
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if status == model.SubscriptionStatusActive {
		if err := uc.GuardNoActivePlan(ctx, tx, userID); err != nil {
			return nil, err
		}
	}

	// re-key a lingering reserve row for the same user and plan
	if status == model.SubscriptionStatusReserve {
		if stale, err := uc.subs.FindReserveByUserAndPlan(ctx, tx, userID, plan.ID); err == nil && stale != nil {
			now := time.Now()
			stale.TransactionID = transactionID
			stale.StartDate = now
			stale.EndDate = now.Add(plan.Duration())
			stale.UpdatedAt = now
			if err := uc.subs.Save(ctx, tx, stale); err != nil {
				return nil, err
			}
			return stale, nil
		} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	sub, err := model.NewUserSubscription(uuid.NewString(), userID, plan, transactionID, status)
	if err != nil {
		return nil, err
	}
	if err := uc.subs.Save(ctx, tx, sub); err != nil {
		return nil, err
	}
	uc.log.Info().
		Str("subscription_id", sub.ID).
		Str("user_id", userID).
		Str("plan_id", plan.ID).
		Str("status", string(status)).
		Msg("subscription created")
	return sub, nil
}

func (uc *subscriptionUC) Activate(ctx context.Context, tx repository.Tx, subscriptionID string) error {
	ok, err := uc.subs.UpdateStatus(ctx, tx, subscriptionID, model.SubscriptionStatusReserve, model.SubscriptionStatusActive)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (uc *subscriptionUC) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserSubscription, error) {
	return uc.subs.FindByID(ctx, tx, id)
}

func (uc *subscriptionUC) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.UserSubscription, error) {
	return uc.subs.FindByTransactionID(ctx, tx, transactionID)
}

func (uc *subscriptionUC) FindReserveByUserAndPlan(ctx context.Context, tx repository.Tx, userID, planID string) (*model.UserSubscription, error) {
	return uc.subs.FindReserveByUserAndPlan(ctx, tx, userID, planID)
}

func (uc *subscriptionUC) ListByUser(ctx context.Context, userID string, offset, limit int) ([]*model.UserSubscription, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return uc.subs.ListByUser(ctx, nil, userID, offset, limit)
}

func (uc *subscriptionUC) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	n, err := uc.subs.ExpireDue(ctx, nil, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		uc.log.Info().Int64("count", n).Msg("subscriptions expired")
	}
	return n, nil
}

func (uc *subscriptionUC) CancelStaleReserves(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := uc.subs.CancelStaleReserves(ctx, nil, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		uc.log.Info().Int64("count", n).Msg("stale reserve subscriptions canceled")
	}
	return n, nil
}

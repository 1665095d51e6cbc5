package repository

import (
	"context"
	"time"

	"edu-subscription-payments/internal/domain/model"
)

// SubscriptionRepository is the port for user subscriptions. Only the
// ledger use case writes through it; other subsystems read.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, sub *model.UserSubscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.UserSubscription, error)
	FindLiveByUser(ctx context.Context, tx Tx, userID string, now time.Time) (*model.UserSubscription, error)
	FindReserveByUserAndPlan(ctx context.Context, tx Tx, userID, planID string) (*model.UserSubscription, error)
	FindByTransactionID(ctx context.Context, tx Tx, transactionID string) (*model.UserSubscription, error)
	ListByUser(ctx context.Context, tx Tx, userID string, offset, limit int) ([]*model.UserSubscription, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, from, to model.SubscriptionStatus) (bool, error)

	// ExpireDue flips active rows whose end_date has passed to expired and
	// returns how many rows changed.
	ExpireDue(ctx context.Context, tx Tx, now time.Time) (int64, error)

	// CancelStaleReserves cancels reserve rows created before the cutoff that
	// never got a payment result, returning how many rows changed.
	CancelStaleReserves(ctx context.Context, tx Tx, cutoff time.Time) (int64, error)
}

package repository

import (
	"context"

	"edu-subscription-payments/internal/domain/model"
)

// SubscriptionPlanRepository is the port for the read-mostly plan catalog.
type SubscriptionPlanRepository interface {
	Save(ctx context.Context, tx Tx, plan *model.SubscriptionPlan) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.SubscriptionPlan, error)
	ListActive(ctx context.Context, tx Tx) ([]*model.SubscriptionPlan, error)
}

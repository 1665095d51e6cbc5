package repository

import (
	"context"
	"time"

	"edu-subscription-payments/internal/domain/model"
)

// GatewayRepository owns GatewayAttempt and PaymentResult rows, the audit
// and idempotency anchors for the payment flow.
type GatewayRepository interface {
	SaveAttempt(ctx context.Context, tx Tx, a *model.GatewayAttempt) error

	// FindByTrackID re-associates an inbound callback with the originating
	// attempt. Scoped to the user and to is_active rows so a track id cannot
	// be replayed across users.
	FindByTrackID(ctx context.Context, tx Tx, trackID, userID string) (*model.GatewayAttempt, error)
	FindAttemptByID(ctx context.Context, tx Tx, id string) (*model.GatewayAttempt, error)

	// MarkComplete flips is_complete false -> true. Returns false when the
	// attempt was already complete, letting callers detect a replay.
	MarkComplete(ctx context.Context, tx Tx, attemptID string) (bool, error)

	SaveResult(ctx context.Context, tx Tx, r *model.PaymentResult) error
	FindResultByAttemptID(ctx context.Context, tx Tx, attemptID string) (*model.PaymentResult, error)

	// ListIncompleteOlderThan feeds the reconciler: attempts with a track id
	// that never completed, created before the cutoff.
	ListIncompleteOlderThan(ctx context.Context, tx Tx, cutoff time.Time, limit int) ([]*model.GatewayAttempt, error)
}

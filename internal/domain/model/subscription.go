package model

import (
	"time"

	"edu-subscription-payments/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusReserve  SubscriptionStatus = "reserve"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// UserSubscription is one purchased (or pending) entitlement window.
//
// Invariant: for any user at most one row may simultaneously satisfy
// status=active AND StartDate <= now <= EndDate. The ledger enforces this
// with a per-user advisory lock around guard+reserve plus a partial unique
// index in the schema.
type UserSubscription struct {
	ID            string
	UserID        string
	PlanID        string
	StartDate     time.Time
	EndDate       time.Time
	Status        SubscriptionStatus
	TransactionID string // correlation key; also the orderId sent to the gateway
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewUserSubscription creates a subscription in the given initial status.
// Only reserve and active are legal starting points: reserve for the normal
// gateway round-trip, active for the zero-price fast path.
func NewUserSubscription(id, userID string, plan *SubscriptionPlan, transactionID string, status SubscriptionStatus) (*UserSubscription, error) {
	if id == "" || userID == "" || plan.IsZero() || transactionID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if status != SubscriptionStatusReserve && status != SubscriptionStatusActive {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &UserSubscription{
		ID:            id,
		UserID:        userID,
		PlanID:        plan.ID,
		StartDate:     now,
		EndDate:       now.Add(plan.Duration()),
		Status:        status,
		TransactionID: transactionID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// IsLive reports whether the subscription entitles the user at the given time.
func (s *UserSubscription) IsLive(now time.Time) bool {
	return s != nil &&
		s.Status == SubscriptionStatusActive &&
		!now.Before(s.StartDate) &&
		!now.After(s.EndDate)
}

// Activate flips a reserved subscription to active. Any other starting
// status is an invalid transition; callers that want idempotent confirm
// replay must check for an already-active row themselves.
func (s *UserSubscription) Activate() error {
	if s.Status != SubscriptionStatusReserve {
		return domain.ErrInvalidTransition
	}
	s.Status = SubscriptionStatusActive
	s.UpdatedAt = time.Now()
	return nil
}

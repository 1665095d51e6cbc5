package model

import "time"

// GatewayAttempt records one call to the provider's request-payment endpoint.
// One row per call, persisted regardless of the provider's immediate answer
// (audit-first). Immutable after creation except IsComplete, which goes
// false -> true exactly once when verification succeeds. The flag, not the
// existence of a PaymentResult row, is the authoritative completion marker.
type GatewayAttempt struct {
	ID         string
	UserID     string
	PlanID     string
	OrderID    string  // our transaction id, echoed back in the callback
	TrackID    *string // assigned by the gateway; nil when the request was rejected outright
	ResultCode int
	Message    string
	Amount     int64
	IsComplete bool
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PaymentResult is the append-only audit record of one successful
// verification. Exactly one row exists per verified attempt.
type PaymentResult struct {
	ID         string
	AttemptID  string
	PaidAt     time.Time
	Amount     int64
	StatusCode int
	ResultCode int
	RefNumber  string
	CardNumber string // masked by the provider
	OrderID    string
	Message    string
	CreatedAt  time.Time
}

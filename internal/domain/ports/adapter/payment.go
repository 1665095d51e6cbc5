package adapter

import (
	"context"
	"time"
)

// VerifyOutcome is the closed set of verification results. The provider's
// numeric status codes are opaque and mapped to this enum at the adapter
// boundary, so the orchestrator never branches on raw integers.
type VerifyOutcome int

const (
	OutcomeUnknown VerifyOutcome = iota
	OutcomeSuccess
	OutcomeAlreadyVerified
	OutcomeProcessing
	OutcomeGatewayFailure
	OutcomeUserCanceled
	OutcomeRateLimited       // too many requests, general
	OutcomeRateLimitedCount  // daily payment count exceeded
	OutcomeRateLimitedAmount // daily payment amount exceeded
	OutcomeInvalidCardIssuer
	OutcomeSwitchError
	OutcomeCardNotFound
)

func (o VerifyOutcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeAlreadyVerified:
		return "already_verified"
	case OutcomeProcessing:
		return "processing"
	case OutcomeGatewayFailure:
		return "gateway_failure"
	case OutcomeUserCanceled:
		return "user_canceled"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeRateLimitedCount:
		return "rate_limited_count"
	case OutcomeRateLimitedAmount:
		return "rate_limited_amount"
	case OutcomeInvalidCardIssuer:
		return "invalid_card_issuer"
	case OutcomeSwitchError:
		return "switch_error"
	case OutcomeCardNotFound:
		return "card_not_found"
	default:
		return "unknown"
	}
}

// RequestReply is the provider's immediate answer to a payment request.
// Result 100 means accepted; that code is informational only, the
// authoritative confirmation happens at verify time.
type RequestReply struct {
	TrackID string
	Result  int
	Message string
	PayURL  string
}

// Accepted reports whether the provider accepted the payment request.
func (r *RequestReply) Accepted() bool { return r.Result == 100 }

// VerifyReply is the provider's answer to a verification call. Outcome is
// the mapped classification of StatusCode; the raw codes are kept for audit.
type VerifyReply struct {
	Outcome    VerifyOutcome
	StatusCode int
	ResultCode int
	RefNumber  string
	Amount     int64
	CardNumber string
	OrderID    string
	PaidAt     time.Time
	Message    string
}

// PaymentGateway is the hex port for the external payment provider.
// Both calls block on network I/O and must run under the adapter's bounded
// timeout; callers never retry them automatically.
type PaymentGateway interface {
	Name() string

	// RequestPayment initiates a payment for the given amount and returns the
	// provider's track id and redirect URL. orderID is our transaction id and
	// is echoed back in the verification callback.
	RequestPayment(ctx context.Context, amount int64, description, orderID, mobile string) (*RequestReply, error)

	// VerifyPayment asks the provider whether the payment identified by
	// trackID actually succeeded. Safe to call more than once for the same
	// trackID.
	VerifyPayment(ctx context.Context, trackID string) (*VerifyReply, error)
}

package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"edu-subscription-payments/internal/domain"
	"edu-subscription-payments/internal/domain/model"
	"edu-subscription-payments/internal/domain/ports/adapter"
	"edu-subscription-payments/internal/domain/ports/repository"
)

// Compile-time check
var _ PaymentOrchestrator = (*paymentUC)(nil)

// UserLocker serializes one user's payment flow across requests. The redis
// implementation satisfies it; a nil locker disables the fast-reject path.
type UserLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// StartReply is what the start-payment handler returns to the client. The
// gateway's result code is informational at this stage; confirmation only
// happens through ConfirmPayment.
type StartReply struct {
	TrackID        *string
	Result         int
	Message        string
	PayURL         string
	Amount         int64
	TransactionID  string
	SubscriptionID string
	FastTracked    bool
}

// Accepted reports whether the purchase can proceed: either the gateway
// accepted the request or the zero-price fast path already activated it.
func (r *StartReply) Accepted() bool { return r.FastTracked || r.Result == 100 }

// ConfirmReply is the terminal view of one verification callback.
type ConfirmReply struct {
	TrackID    string
	Success    bool
	Outcome    adapter.VerifyOutcome
	PlanID     string
	PlanStatus model.SubscriptionStatus
	RefNumber  string
	Amount     int64
	Message    string
}

// PaymentOrchestrator composes the coupon engine, the subscription ledger,
// the gateway adapter and the gateway record store into the two top-level
// workflow operations.
type PaymentOrchestrator interface {
	StartPayment(ctx context.Context, userID, mobile, planID, description, couponCode string) (*StartReply, error)
	ConfirmPayment(ctx context.Context, userID, trackID, orderID string) (*ConfirmReply, error)
}

type paymentUC struct {
	plans   repository.SubscriptionPlanRepository
	records repository.GatewayRepository
	coupons CouponEngine
	ledger  SubscriptionLedger
	gateway adapter.PaymentGateway
	tm      repository.TransactionManager
	locker  UserLocker
	lockTTL time.Duration
	log     *zerolog.Logger
}

func NewPaymentOrchestrator(
	plans repository.SubscriptionPlanRepository,
	records repository.GatewayRepository,
	coupons CouponEngine,
	ledger SubscriptionLedger,
	gateway adapter.PaymentGateway,
	tm repository.TransactionManager,
	locker UserLocker,
	logger *zerolog.Logger,
) *paymentUC {
	return &paymentUC{
		plans:   plans,
		records: records,
		coupons: coupons,
		ledger:  ledger,
		gateway: gateway,
		tm:      tm,
		locker:  locker,
		lockTTL: 30 * time.Second,
		log:     logger,
	}
}

func paymentLockKey(userID string) string { return "payment:lock:" + userID }

// newTransactionID mints the order id sent to the gateway. ULIDs sort by
// creation time, which keeps the gateway panel and our audit queries aligned.
func newTransactionID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

func (u *paymentUC) StartPayment(ctx context.Context, userID, mobile, planID, description, couponCode string) (*StartReply, error) {
	if userID == "" || planID == "" {
		return nil, domain.ErrInvalidArgument
	}

	// Serialize guard+reserve per user. The advisory lock inside the ledger
	// is the authoritative guard; this lock rejects concurrent attempts
	// early instead of queueing them behind the database.
	if u.locker != nil {
		token, err := u.locker.TryLock(ctx, paymentLockKey(userID), u.lockTTL)
		if err != nil {
			return nil, domain.ErrLockNotAcquired
		}
		defer func() { _ = u.locker.Unlock(ctx, paymentLockKey(userID), token) }()
	}

	if err := u.ledger.GuardNoActivePlan(ctx, nil, userID); err != nil {
		return nil, err
	}

	plan, err := u.plans.FindByID(ctx, nil, planID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, err
	}
	if !plan.IsActive {
		return nil, domain.ErrPlanNotFound
	}

	price, err := u.coupons.PriceFor(ctx, plan, couponCode)
	if err != nil {
		return nil, err
	}
	if couponCode != "" {
		// Redemption is counted when the purchase starts; the guarded UPDATE
		// makes the cap check and the increment one atomic step.
		if err := u.coupons.Redeem(ctx, nil, couponCode); err != nil {
			return nil, err
		}
	}

	transactionID := newTransactionID()

	if price == 0 {
		return u.fastTrack(ctx, userID, plan, transactionID)
	}

	reply, gwErr := u.gateway.RequestPayment(ctx, price, description, transactionID, mobile)
	if gwErr != nil {
		// A timed-out or failed request is still recorded; it must never
		// become a silently abandoned attempt.
		attempt := newAttempt(userID, plan.ID, transactionID, nil, 0, gwErr.Error(), price, false)
		if err := u.records.SaveAttempt(ctx, nil, attempt); err != nil {
			u.log.Error().Err(err).Str("user_id", userID).Msg("failed to record failed gateway request")
		}
		return nil, fmt.Errorf("gateway request: %w", gwErr)
	}

	var trackID *string
	if reply.TrackID != "" {
		trackID = &reply.TrackID
	}
	attempt := newAttempt(userID, plan.ID, transactionID, trackID, reply.Result, reply.Message, price, false)
	if err := u.records.SaveAttempt(ctx, nil, attempt); err != nil {
		return nil, err
	}

	sub, err := u.ledger.Reserve(ctx, userID, plan, transactionID)
	if err != nil {
		return nil, err
	}

	u.log.Info().
		Str("user_id", userID).
		Str("plan_id", plan.ID).
		Str("transaction_id", transactionID).
		Int("result", reply.Result).
		Int64("amount", price).
		Msg("payment started")

	return &StartReply{
		TrackID:        trackID,
		Result:         reply.Result,
		Message:        reply.Message,
		PayURL:         reply.PayURL,
		Amount:         price,
		TransactionID:  transactionID,
		SubscriptionID: sub.ID,
	}, nil
}

// fastTrack handles a fully discounted purchase: a synthetic complete
// attempt for audit, an immediately active subscription, no gateway call.
func (u *paymentUC) fastTrack(ctx context.Context, userID string, plan *model.SubscriptionPlan, transactionID string) (*StartReply, error) {
	attempt := newAttempt(userID, plan.ID, transactionID, nil, 100, "fully covered by coupon", 0, true)
	if err := u.records.SaveAttempt(ctx, nil, attempt); err != nil {
		return nil, err
	}
	sub, err := u.ledger.FastTrackActivate(ctx, userID, plan, transactionID)
	if err != nil {
		return nil, err
	}
	u.log.Info().
		Str("user_id", userID).
		Str("plan_id", plan.ID).
		Str("transaction_id", transactionID).
		Msg("zero-price purchase fast-tracked")
	return &StartReply{
		Result:         100,
		Message:        "fully covered by coupon",
		Amount:         0,
		TransactionID:  transactionID,
		SubscriptionID: sub.ID,
		FastTracked:    true,
	}, nil
}

func newAttempt(userID, planID, orderID string, trackID *string, result int, message string, amount int64, complete bool) *model.GatewayAttempt {
	now := time.Now()
	return &model.GatewayAttempt{
		ID:         uuid.NewString(),
		UserID:     userID,
		PlanID:     planID,
		OrderID:    orderID,
		TrackID:    trackID,
		ResultCode: result,
		Message:    message,
		Amount:     amount,
		IsComplete: complete,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (u *paymentUC) ConfirmPayment(ctx context.Context, userID, trackID, orderID string) (*ConfirmReply, error) {
	if trackID == "" || orderID == "" {
		return nil, domain.ErrBadCallback
	}

	attempt, err := u.records.FindByTrackID(ctx, nil, trackID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if attempt.OrderID != orderID {
		return nil, domain.ErrNotFound
	}

	// Replay after a successful confirm: the flag is authoritative, answer
	// success again without touching the ledger or the result table.
	if attempt.IsComplete {
		return u.replayReply(ctx, attempt)
	}

	sub, err := u.ledger.FindByTransactionID(ctx, nil, orderID)
	if errors.Is(err, domain.ErrNotFound) {
		// A newer start for the same plan re-keys the reserve row to its own
		// transaction id. The gateway session behind this attempt is still
		// payable, so a captured payment must land on the pending reserve.
		sub, err = u.ledger.FindReserveByUserAndPlan(ctx, nil, userID, attempt.PlanID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if sub.UserID != userID {
		return nil, domain.ErrNotFound
	}

	verify, err := u.gateway.VerifyPayment(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("gateway verify: %w", err)
	}

	switch verify.Outcome {
	case adapter.OutcomeSuccess, adapter.OutcomeAlreadyVerified:
		return u.finalize(ctx, attempt, sub, verify)

	case adapter.OutcomeProcessing:
		// legitimate retry-later state, subscription stays reserve
		return &ConfirmReply{
			TrackID:    trackID,
			Outcome:    verify.Outcome,
			PlanID:     sub.PlanID,
			PlanStatus: sub.Status,
			Message:    verify.Message,
		}, nil

	case adapter.OutcomeGatewayFailure, adapter.OutcomeUserCanceled,
		adapter.OutcomeRateLimited, adapter.OutcomeRateLimitedCount, adapter.OutcomeRateLimitedAmount,
		adapter.OutcomeInvalidCardIssuer, adapter.OutcomeSwitchError, adapter.OutcomeCardNotFound:
		u.log.Warn().
			Str("track_id", trackID).
			Int("status", verify.StatusCode).
			Str("outcome", verify.Outcome.String()).
			Msg("payment verification did not succeed")
		return &ConfirmReply{
			TrackID:    trackID,
			Outcome:    verify.Outcome,
			PlanID:     sub.PlanID,
			PlanStatus: sub.Status,
			Message:    verify.Message,
		}, nil

	default:
		// Unknown provider codes fail closed, never as success.
		u.log.Error().
			Str("track_id", trackID).
			Int("status", verify.StatusCode).
			Msg("unrecognized gateway status code")
		return nil, domain.ErrNotAcceptable
	}
}

// finalize applies a successful verification: activate the reserved row,
// persist the result and flip is_complete, all in one transaction.
func (u *paymentUC) finalize(ctx context.Context, attempt *model.GatewayAttempt, sub *model.UserSubscription, verify *adapter.VerifyReply) (*ConfirmReply, error) {
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if sub.Status == model.SubscriptionStatusReserve {
			if err := u.ledger.Activate(ctx, tx, sub.ID); err != nil {
				if !errors.Is(err, domain.ErrInvalidTransition) {
					return err
				}
				// a concurrent confirm may have won the activation race;
				// anything other than an already-active row is a real failure
				cur, lookErr := u.ledger.FindByID(ctx, tx, sub.ID)
				if lookErr != nil || cur.Status != model.SubscriptionStatusActive {
					return err
				}
			}
			sub.Status = model.SubscriptionStatusActive
		}

		flipped, err := u.records.MarkComplete(ctx, tx, attempt.ID)
		if err != nil {
			return err
		}
		if !flipped {
			// lost the race against a concurrent confirm; result row exists
			return nil
		}

		paidAt := verify.PaidAt
		if paidAt.IsZero() {
			paidAt = time.Now()
		}
		return u.records.SaveResult(ctx, tx, &model.PaymentResult{
			ID:         uuid.NewString(),
			AttemptID:  attempt.ID,
			PaidAt:     paidAt,
			Amount:     verify.Amount,
			StatusCode: verify.StatusCode,
			ResultCode: verify.ResultCode,
			RefNumber:  verify.RefNumber,
			CardNumber: verify.CardNumber,
			OrderID:    attempt.OrderID,
			Message:    verify.Message,
			CreatedAt:  time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	u.log.Info().
		Str("track_id", derefTrackID(attempt)).
		Str("subscription_id", sub.ID).
		Str("ref_number", verify.RefNumber).
		Int64("amount", verify.Amount).
		Msg("payment verified")

	return &ConfirmReply{
		TrackID:    derefTrackID(attempt),
		Success:    true,
		Outcome:    verify.Outcome,
		PlanID:     sub.PlanID,
		PlanStatus: model.SubscriptionStatusActive,
		RefNumber:  verify.RefNumber,
		Amount:     verify.Amount,
		Message:    verify.Message,
	}, nil
}

// replayReply answers an idempotent confirm for an already completed attempt.
func (u *paymentUC) replayReply(ctx context.Context, attempt *model.GatewayAttempt) (*ConfirmReply, error) {
	reply := &ConfirmReply{
		TrackID: derefTrackID(attempt),
		Success: true,
		Outcome: adapter.OutcomeAlreadyVerified,
		PlanID:  attempt.PlanID,
	}
	if sub, err := u.ledger.FindByTransactionID(ctx, nil, attempt.OrderID); err == nil {
		reply.PlanStatus = sub.Status
	}
	if res, err := u.records.FindResultByAttemptID(ctx, nil, attempt.ID); err == nil {
		reply.RefNumber = res.RefNumber
		reply.Amount = res.Amount
	}
	return reply, nil
}

func derefTrackID(a *model.GatewayAttempt) string {
	if a.TrackID == nil {
		return ""
	}
	return *a.TrackID
}

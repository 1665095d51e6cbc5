package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"edu-subscription-payments/internal/domain"
	"edu-subscription-payments/internal/domain/ports/adapter"
	"edu-subscription-payments/internal/infra/logging"
	"edu-subscription-payments/internal/infra/metrics"
	red "edu-subscription-payments/internal/infra/redis"
)

type startPaymentRequest struct {
	PlanID      string `json:"plan_id"`
	Description string `json:"description"`
	CouponCode  string `json:"coupon_code"`
}

type startPaymentResponse struct {
	TrackID       *string `json:"track_id"`
	Result        int     `json:"result"`
	Message       string  `json:"message"`
	PayURL        string  `json:"pay_url,omitempty"`
	Amount        int64   `json:"amount"`
	TransactionID string  `json:"transaction_id"`
	FastTracked   bool    `json:"fast_tracked,omitempty"`
}

type verifyPaymentResponse struct {
	TrackID    string `json:"track_id"`
	Success    bool   `json:"success"`
	PlanID     string `json:"plan_id,omitempty"`
	PlanStatus string `json:"plan_status,omitempty"`
	RefNumber  string `json:"ref_number,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (s *Server) handleStartPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, mobile := userFromContext(ctx)
	log := logging.With(ctx, s.log)

	var req startPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PlanID == "" {
		http.Error(w, "plan_id is required", http.StatusBadRequest)
		return
	}

	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, red.StartPaymentKey(userID), s.startRate, time.Minute)
		if err != nil {
			log.Error().Err(err).Msg("rate limiter unavailable")
		} else if !ok {
			s.writeStartError(w, log, domain.ErrRateLimited)
			return
		}
	}

	log.Debug().
		Str("plan_id", req.PlanID).
		Str("mobile", logging.Redact(mobile)).
		Msg("payment start requested")

	reply, err := s.payUC.StartPayment(ctx, userID, mobile, req.PlanID, req.Description, req.CouponCode)
	if err != nil {
		metrics.IncPaymentStarted("error")
		s.writeStartError(w, log, err)
		return
	}

	resp := startPaymentResponse{
		TrackID:       reply.TrackID,
		Result:        reply.Result,
		Message:       reply.Message,
		PayURL:        reply.PayURL,
		Amount:        reply.Amount,
		TransactionID: reply.TransactionID,
		FastTracked:   reply.FastTracked,
	}
	if !reply.Accepted() {
		// gateway rejected the request outright; the attempt is recorded
		metrics.IncPaymentStarted("rejected")
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	if reply.FastTracked {
		metrics.IncPaymentStarted("fast_tracked")
	} else {
		metrics.IncPaymentStarted("accepted")
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) writeStartError(w http.ResponseWriter, log *zerolog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrActivePlanExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrPlanNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrCouponNotFound), errors.Is(err, domain.ErrCouponInvalid):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrRateLimited), errors.Is(err, domain.ErrLockNotAcquired):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Error().Err(err).Msg("start payment failed")
		http.Error(w, "Failed to start payment", http.StatusInternalServerError)
	}
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := userFromContext(ctx)
	started := time.Now()

	q := r.URL.Query()
	trackID := q.Get("trackId")
	orderID := q.Get("orderId")
	status := q.Get("status")
	if trackID == "" || orderID == "" || status == "" {
		metrics.IncPaymentVerify("bad_callback")
		http.Error(w, domain.ErrBadCallback.Error(), http.StatusBadRequest)
		return
	}

	ctx = logging.WithTrackID(ctx, trackID)
	log := logging.With(ctx, s.log)

	reply, err := s.payUC.ConfirmPayment(ctx, userID, trackID, orderID)
	if err != nil {
		outcome := s.writeVerifyError(w, log, err)
		metrics.IncPaymentVerify(outcome)
		metrics.ObservePaymentVerify(outcome, time.Since(started).Seconds())
		return
	}

	metrics.IncPaymentVerify(reply.Outcome.String())
	metrics.ObservePaymentVerify(reply.Outcome.String(), time.Since(started).Seconds())

	resp := verifyPaymentResponse{
		TrackID:    reply.TrackID,
		Success:    reply.Success,
		PlanID:     reply.PlanID,
		PlanStatus: string(reply.PlanStatus),
		RefNumber:  reply.RefNumber,
		Message:    reply.Message,
	}

	switch reply.Outcome {
	case adapter.OutcomeSuccess, adapter.OutcomeAlreadyVerified:
		if reply.Outcome == adapter.OutcomeSuccess && reply.Success {
			metrics.AddPaymentRevenue(reply.Amount)
			metrics.IncSubscriptionTransition("active")
		}
		writeJSON(w, http.StatusOK, resp)

	case adapter.OutcomeProcessing:
		// retry-later state, not an error
		w.WriteHeader(http.StatusNoContent)

	case adapter.OutcomeGatewayFailure, adapter.OutcomeUserCanceled:
		writeJSON(w, http.StatusBadRequest, resp)

	case adapter.OutcomeRateLimited, adapter.OutcomeRateLimitedCount, adapter.OutcomeRateLimitedAmount:
		resp.Message = rateLimitMessage(reply.Outcome)
		writeJSON(w, http.StatusTooManyRequests, resp)

	case adapter.OutcomeInvalidCardIssuer, adapter.OutcomeSwitchError, adapter.OutcomeCardNotFound:
		resp.Message = cardErrorMessage(reply.Outcome)
		writeJSON(w, http.StatusUnprocessableEntity, resp)

	default:
		http.Error(w, domain.ErrNotAcceptable.Error(), http.StatusNotAcceptable)
	}
}

func (s *Server) writeVerifyError(w http.ResponseWriter, log *zerolog.Logger, err error) (outcome string) {
	switch {
	case errors.Is(err, domain.ErrBadCallback):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "bad_callback"
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "unknown order or track id", http.StatusNotFound)
		return "not_found"
	case errors.Is(err, domain.ErrNotAcceptable):
		http.Error(w, err.Error(), http.StatusNotAcceptable)
		return "unknown"
	default:
		log.Error().Err(err).Msg("confirm payment failed")
		http.Error(w, "Failed to verify payment", http.StatusInternalServerError)
		return "error"
	}
}

func rateLimitMessage(o adapter.VerifyOutcome) string {
	switch o {
	case adapter.OutcomeRateLimitedCount:
		return "daily payment count exceeded, try again tomorrow"
	case adapter.OutcomeRateLimitedAmount:
		return "daily payment amount exceeded, try again tomorrow"
	default:
		return "too many requests, slow down"
	}
}

func cardErrorMessage(o adapter.VerifyOutcome) string {
	switch o {
	case adapter.OutcomeInvalidCardIssuer:
		return "card issuer is not valid"
	case adapter.OutcomeSwitchError:
		return "payment switch error, contact support"
	default:
		return "card is not accessible"
	}
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.plans.ListActive(r.Context(), nil)
	if err != nil {
		http.Error(w, "Failed to list plans", http.StatusInternalServerError)
		return
	}

	type planView struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		DurationMonths  int    `json:"duration_months"`
		OriginalPrice   int64  `json:"original_price"`
		DiscountedPrice int64  `json:"discounted_price"`
		HasInstallment  bool   `json:"has_installment"`
	}
	out := make([]planView, 0, len(plans))
	for _, p := range plans {
		out = append(out, planView{
			ID:              p.ID,
			Name:            p.Name,
			DurationMonths:  p.DurationMonths,
			OriginalPrice:   p.OriginalPrice,
			DiscountedPrice: p.DiscountedPrice,
			HasInstallment:  p.HasInstallment,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := userFromContext(ctx)

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	subs, err := s.ledger.ListByUser(ctx, userID, offset, limit)
	if err != nil {
		http.Error(w, "Failed to list subscriptions", http.StatusInternalServerError)
		return
	}

	type subView struct {
		ID            string `json:"id"`
		PlanID        string `json:"plan_id"`
		StartDate     string `json:"start_date"`
		EndDate       string `json:"end_date"`
		Status        string `json:"status"`
		TransactionID string `json:"transaction_id"`
	}
	out := make([]subView, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subView{
			ID:            sub.ID,
			PlanID:        sub.PlanID,
			StartDate:     sub.StartDate.Format(time.RFC3339),
			EndDate:       sub.EndDate.Format(time.RFC3339),
			Status:        string(sub.Status),
			TransactionID: sub.TransactionID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"edu-subscription-payments/internal/domain"
	"edu-subscription-payments/internal/domain/ports/repository"
	"edu-subscription-payments/internal/usecase"
)

// PaymentReconciler periodically scans for stale incomplete attempts and
// tries to finalize them through the orchestrator. This covers callbacks
// that never arrived and confirms interrupted mid-flight.
type PaymentReconciler struct {
	uc         usecase.PaymentOrchestrator
	records    repository.GatewayRepository
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	log        *zerolog.Logger
}

func NewPaymentReconciler(uc usecase.PaymentOrchestrator, records repository.GatewayRepository, interval, staleAfter time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	compLog := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{
		uc:         uc,
		records:    records,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  200,
		log:        &compLog,
	}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting payment reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.records.ListIncompleteOlderThan(ctx, nil, cutoff, w.batchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("list incomplete attempts failed")
		return
	}
	for _, a := range stale {
		if a.TrackID == nil || *a.TrackID == "" {
			continue
		}
		reply, err := w.uc.ConfirmPayment(ctx, a.UserID, *a.TrackID, a.OrderID)
		if err != nil {
			// ErrNotAcceptable means an unknown provider code; keep the row
			// for the next pass and for manual review.
			if !errors.Is(err, domain.ErrNotAcceptable) {
				w.log.Warn().Err(err).
					Str("attempt_id", a.ID).
					Str("track_id", *a.TrackID).
					Msg("reconcile confirm failed")
			}
			continue
		}
		if reply.Success {
			w.log.Info().
				Str("attempt_id", a.ID).
				Str("track_id", *a.TrackID).
				Str("ref_number", reply.RefNumber).
				Msg("stale payment reconciled")
		}
	}
}

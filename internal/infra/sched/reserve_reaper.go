package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"edu-subscription-payments/internal/infra/metrics"
	"edu-subscription-payments/internal/usecase"
)

// ReserveReaper sweeps the subscription ledger: active rows past their end
// date become expired, reserve rows that never saw a payment result and
// outlived the TTL become canceled.
type ReserveReaper struct {
	interval   time.Duration
	reserveTTL time.Duration
	ledger     usecase.SubscriptionLedger
	log        *zerolog.Logger
}

func NewReserveReaper(interval, reserveTTL time.Duration, ledger usecase.SubscriptionLedger, logger *zerolog.Logger) *ReserveReaper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if reserveTTL <= 0 {
		reserveTTL = 24 * time.Hour
	}
	compLog := logger.With().Str("component", "ReserveReaper").Logger()
	return &ReserveReaper{
		interval:   interval,
		reserveTTL: reserveTTL,
		ledger:     ledger,
		log:        &compLog,
	}
}

func (w *ReserveReaper) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting reserve reaper")
	// Sweep once on startup, then on every tick.
	w.sweep(ctx)

	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping reserve reaper")
			return ctx.Err()
		case <-t.C:
			w.sweep(ctx)
		}
	}
}

func (w *ReserveReaper) sweep(ctx context.Context) {
	expired, err := w.ledger.ExpireDue(ctx, time.Now())
	if err != nil {
		w.log.Error().Err(err).Msg("expire sweep failed")
	} else if expired > 0 {
		metrics.AddSubscriptionSweep("expired", expired)
		w.log.Info().Int64("count", expired).Msg("subscriptions expired")
	}

	canceled, err := w.ledger.CancelStaleReserves(ctx, w.reserveTTL)
	if err != nil {
		w.log.Error().Err(err).Msg("stale reserve sweep failed")
	} else if canceled > 0 {
		metrics.AddSubscriptionSweep("canceled", canceled)
		w.log.Info().Int64("count", canceled).Msg("stale reserves canceled")
	}
}

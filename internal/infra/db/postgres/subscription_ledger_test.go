//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"edu-subscription-payments/internal/domain"
	"edu-subscription-payments/internal/domain/model"
	"edu-subscription-payments/internal/usecase"
)

// Exercises the per-user advisory lock inside the ledger against the real
// pool: concurrent guarded creates for one user must admit exactly one.
func TestSubscriptionLedger_AdvisoryLock(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	logger := zerolog.Nop()
	ledger := usecase.NewSubscriptionLedger(NewSubscriptionRepo(testPool), testPool, &logger)
	planRepo := NewPlanRepo(testPool)

	plan, _ := model.NewSubscriptionPlan(uuid.NewString(), "Monthly", 1, 90000, 80000)

	setup := func(t *testing.T) {
		cleanup(t)
		if err := planRepo.Save(ctx, nil, plan); err != nil {
			t.Fatalf("failed to save plan: %v", err)
		}
	}

	t.Run("concurrent activations admit exactly one", func(t *testing.T) {
		setup(t)
		const workers = 12

		var wg sync.WaitGroup
		var mu sync.Mutex
		successes, rejected := 0, 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := ledger.FastTrackActivate(ctx, "user-conc", plan, uuid.NewString())
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, domain.ErrActivePlanExists):
					rejected++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if successes != 1 || rejected != workers-1 {
			t.Fatalf("expected 1 activation and %d rejections, got %d and %d", workers-1, successes, rejected)
		}
		var active int
		if err := testPool.QueryRow(ctx, "SELECT COUNT(*) FROM user_subscriptions WHERE user_id=$1 AND status='active'", "user-conc").Scan(&active); err != nil {
			t.Fatalf("count query failed: %v", err)
		}
		if active != 1 {
			t.Fatalf("expected exactly one active row, got %d", active)
		}
	})

	t.Run("concurrent reserves collapse onto one re-keyed row", func(t *testing.T) {
		setup(t)
		const workers = 8

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := ledger.Reserve(ctx, "user-res", plan, uuid.NewString()); err != nil {
					t.Errorf("reserve failed: %v", err)
				}
			}()
		}
		wg.Wait()

		var reserves int
		if err := testPool.QueryRow(ctx, "SELECT COUNT(*) FROM user_subscriptions WHERE user_id=$1 AND status='reserve'", "user-res").Scan(&reserves); err != nil {
			t.Fatalf("count query failed: %v", err)
		}
		if reserves != 1 {
			t.Fatalf("expected a single re-keyed reserve row, got %d", reserves)
		}
	})
}

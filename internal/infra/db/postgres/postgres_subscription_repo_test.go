//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"edu-subscription-payments/internal/domain"
	"edu-subscription-payments/internal/domain/model"
)

func TestSubscriptionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewSubscriptionRepo(testPool)
	planRepo := NewPlanRepo(testPool)

	plan, _ := model.NewSubscriptionPlan(uuid.NewString(), "Quarterly", 3, 120000, 100000)

	setup := func(t *testing.T) {
		cleanup(t)
		if err := planRepo.Save(ctx, nil, plan); err != nil {
			t.Fatalf("failed to save plan: %v", err)
		}
	}

	newSub := func(userID string, status model.SubscriptionStatus) *model.UserSubscription {
		sub, err := model.NewUserSubscription(uuid.NewString(), userID, plan, uuid.NewString(), status)
		if err != nil {
			t.Fatalf("failed to build subscription: %v", err)
		}
		return sub
	}

	t.Run("save and find by id, transaction id and live status", func(t *testing.T) {
		setup(t)
		sub := newSub("user-1", model.SubscriptionStatusActive)
		if err := repo.Save(ctx, nil, sub); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		byID, err := repo.FindByID(ctx, nil, sub.ID)
		if err != nil || byID.ID != sub.ID {
			t.Fatalf("FindByID failed: %v", err)
		}
		byTxn, err := repo.FindByTransactionID(ctx, nil, sub.TransactionID)
		if err != nil || byTxn.ID != sub.ID {
			t.Fatalf("FindByTransactionID failed: %v", err)
		}
		live, err := repo.FindLiveByUser(ctx, nil, "user-1", time.Now())
		if err != nil || live.ID != sub.ID {
			t.Fatalf("FindLiveByUser failed: %v", err)
		}
	})

	t.Run("reserve rows are not live", func(t *testing.T) {
		setup(t)
		if err := repo.Save(ctx, nil, newSub("user-1", model.SubscriptionStatusReserve)); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		_, err := repo.FindLiveByUser(ctx, nil, "user-1", time.Now())
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for a reserve row, got %v", err)
		}
	})

	t.Run("UpdateStatus is conditional on the current status", func(t *testing.T) {
		setup(t)
		sub := newSub("user-1", model.SubscriptionStatusReserve)
		if err := repo.Save(ctx, nil, sub); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		ok, err := repo.UpdateStatus(ctx, nil, sub.ID, model.SubscriptionStatusReserve, model.SubscriptionStatusActive)
		if err != nil || !ok {
			t.Fatalf("expected transition to succeed, ok=%v err=%v", ok, err)
		}
		// second transition from reserve must not match
		ok, err = repo.UpdateStatus(ctx, nil, sub.ID, model.SubscriptionStatusReserve, model.SubscriptionStatusActive)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected the replayed transition to report no change")
		}
	})

	t.Run("partial unique index rejects a second active row per user", func(t *testing.T) {
		setup(t)
		if err := repo.Save(ctx, nil, newSub("user-1", model.SubscriptionStatusActive)); err != nil {
			t.Fatalf("first save failed: %v", err)
		}
		if err := repo.Save(ctx, nil, newSub("user-1", model.SubscriptionStatusActive)); err == nil {
			t.Fatal("expected the unique index to reject a second active row")
		}
	})

	t.Run("ExpireDue flips only past-due active rows", func(t *testing.T) {
		setup(t)
		due := newSub("user-1", model.SubscriptionStatusActive)
		due.EndDate = time.Now().Add(-time.Hour)
		if err := repo.Save(ctx, nil, due); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		current := newSub("user-2", model.SubscriptionStatusActive)
		if err := repo.Save(ctx, nil, current); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		n, err := repo.ExpireDue(ctx, nil, time.Now())
		if err != nil {
			t.Fatalf("ExpireDue failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 expired row, got %d", n)
		}
		got, _ := repo.FindByID(ctx, nil, current.ID)
		if got.Status != model.SubscriptionStatusActive {
			t.Errorf("current subscription must stay active, got %s", got.Status)
		}
	})

	t.Run("CancelStaleReserves skips reserves that have a payment result", func(t *testing.T) {
		setup(t)
		gwRepo := NewGatewayRepo(testPool)

		paid := newSub("user-1", model.SubscriptionStatusReserve)
		unpaid := newSub("user-2", model.SubscriptionStatusReserve)
		for _, s := range []*model.UserSubscription{paid, unpaid} {
			if err := repo.Save(ctx, nil, s); err != nil {
				t.Fatalf("save failed: %v", err)
			}
			// backdate past the cutoff
			if _, err := testPool.Exec(ctx, `UPDATE user_subscriptions SET created_at = NOW() - INTERVAL '2 days' WHERE id=$1`, s.ID); err != nil {
				t.Fatalf("backdate failed: %v", err)
			}
		}

		track := "12345"
		attempt := &model.GatewayAttempt{
			ID: uuid.NewString(), UserID: paid.UserID, PlanID: plan.ID,
			OrderID: paid.TransactionID, TrackID: &track,
			ResultCode: 100, Amount: 100000, IsActive: true,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}
		if err := gwRepo.SaveAttempt(ctx, nil, attempt); err != nil {
			t.Fatalf("save attempt failed: %v", err)
		}
		if err := gwRepo.SaveResult(ctx, nil, &model.PaymentResult{
			ID: uuid.NewString(), AttemptID: attempt.ID, PaidAt: time.Now(),
			Amount: 100000, StatusCode: 1, ResultCode: 100,
			OrderID: paid.TransactionID, CreatedAt: time.Now(),
		}); err != nil {
			t.Fatalf("save result failed: %v", err)
		}

		n, err := repo.CancelStaleReserves(ctx, nil, time.Now().Add(-24*time.Hour))
		if err != nil {
			t.Fatalf("CancelStaleReserves failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 canceled row, got %d", n)
		}
		got, _ := repo.FindByID(ctx, nil, paid.ID)
		if got.Status != model.SubscriptionStatusReserve {
			t.Errorf("the reserve with a payment result must survive, got %s", got.Status)
		}
	})

	t.Run("ListByUser paginates newest first", func(t *testing.T) {
		setup(t)
		for i := 0; i < 3; i++ {
			s := newSub("user-1", model.SubscriptionStatusReserve)
			s.Status = model.SubscriptionStatusCanceled
			if err := repo.Save(ctx, nil, s); err != nil {
				t.Fatalf("save failed: %v", err)
			}
		}
		page, err := repo.ListByUser(ctx, nil, "user-1", 0, 2)
		if err != nil {
			t.Fatalf("ListByUser failed: %v", err)
		}
		if len(page) != 2 {
			t.Errorf("expected 2 rows, got %d", len(page))
		}
		rest, err := repo.ListByUser(ctx, nil, "user-1", 2, 2)
		if err != nil {
			t.Fatalf("ListByUser failed: %v", err)
		}
		if len(rest) != 1 {
			t.Errorf("expected 1 row, got %d", len(rest))
		}
	})
}

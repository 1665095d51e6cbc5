//go:build !integration

package postgres

import (
	"context"
	"time"

	"edu-subscription-payments/internal/domain"
	"edu-subscription-payments/internal/domain/model"
	"edu-subscription-payments/internal/domain/ports/repository"
	red "edu-subscription-payments/internal/infra/redis"
)

// mockRedisClient lets cache decorator tests script redis behavior per call.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
}

var _ red.RedisClient = (*mockRedisClient)(nil)

func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return "", domain.ErrNotFound
}

func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	return nil
}

func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc != nil {
		return m.DelFunc(ctx, keys...)
	}
	return nil
}

func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	if m.IncrFunc != nil {
		return m.IncrFunc(ctx, key)
	}
	return 1, nil
}

func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	if m.ExpireFunc != nil {
		return m.ExpireFunc(ctx, key, expiration)
	}
	return nil
}

func (m *mockRedisClient) Close() error { return nil }

// mockInnerPlanRepo stands in for the database-backed plan repository.
type mockInnerPlanRepo struct {
	SaveFunc       func(ctx context.Context, tx repository.Tx, plan *model.SubscriptionPlan) error
	FindByIDFunc   func(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error)
	ListActiveFunc func(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error)
}

var _ repository.SubscriptionPlanRepository = (*mockInnerPlanRepo)(nil)

func (m *mockInnerPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.SubscriptionPlan) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, plan)
	}
	return nil
}

func (m *mockInnerPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockInnerPlanRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx, tx)
	}
	return nil, nil
}

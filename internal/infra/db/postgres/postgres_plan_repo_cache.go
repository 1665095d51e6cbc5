package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"edu-subscription-payments/internal/domain/model"
	"edu-subscription-payments/internal/domain/ports/repository"
	"edu-subscription-payments/internal/infra/metrics"
	red "edu-subscription-payments/internal/infra/redis"
)

var _ repository.SubscriptionPlanRepository = (*planRepoCacheDecorator)(nil)

// planRepoCacheDecorator caches the read-mostly plan catalog in redis. Plans
// change only through admin edits, so a short TTL plus write invalidation is
// enough.
type planRepoCacheDecorator struct {
	inner repository.SubscriptionPlanRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewPlanRepoCacheDecorator(inner repository.SubscriptionPlanRepository, cache red.RedisClient) repository.SubscriptionPlanRepository {
	return &planRepoCacheDecorator{inner: inner, cache: cache, ttl: time.Hour}
}

const planListKey = "plans:active"

func (d *planRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	key := fmt.Sprintf("plan:%s", id)
	if val, err := d.cache.Get(ctx, key); err == nil {
		metrics.IncCacheRequest("plan", "hit")
		var plan model.SubscriptionPlan
		if json.Unmarshal([]byte(val), &plan) == nil {
			return &plan, nil
		}
	}

	metrics.IncCacheRequest("plan", "miss")
	plan, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(plan); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return plan, nil
}

func (d *planRepoCacheDecorator) ListActive(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	if val, err := d.cache.Get(ctx, planListKey); err == nil {
		metrics.IncCacheRequest("plan_list", "hit")
		var plans []*model.SubscriptionPlan
		if json.Unmarshal([]byte(val), &plans) == nil {
			return plans, nil
		}
	}

	metrics.IncCacheRequest("plan_list", "miss")
	plans, err := d.inner.ListActive(ctx, tx)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(plans); err == nil {
		_ = d.cache.Set(ctx, planListKey, b, d.ttl)
	}
	return plans, nil
}

func (d *planRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, plan *model.SubscriptionPlan) error {
	_ = d.cache.Del(ctx, fmt.Sprintf("plan:%s", plan.ID), planListKey)
	return d.inner.Save(ctx, tx, plan)
}

//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"edu-subscription-payments/internal/domain"
	"edu-subscription-payments/internal/domain/model"
	"edu-subscription-payments/internal/domain/ports/adapter"
	"edu-subscription-payments/internal/domain/ports/repository"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// =============================
// Repositories
// =============================

// ---- Mock SubscriptionPlanRepository ----

type MockPlanRepo struct {
	mu    sync.RWMutex
	store map[string]*model.SubscriptionPlan

	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error)
}

var _ repository.SubscriptionPlanRepository = (*MockPlanRepo)(nil)

func NewMockPlanRepo() *MockPlanRepo {
	return &MockPlanRepo{store: make(map[string]*model.SubscriptionPlan)}
}

func (m *MockPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *MockPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPlanRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.SubscriptionPlan
	for _, p := range m.store {
		if p.IsActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- Mock CouponRepository ----

type MockCouponRepo struct {
	mu    sync.Mutex
	store map[string]*model.Coupon // by code

	RedeemFunc func(ctx context.Context, tx repository.Tx, code string) error
}

var _ repository.CouponRepository = (*MockCouponRepo)(nil)

func NewMockCouponRepo() *MockCouponRepo {
	return &MockCouponRepo{store: make(map[string]*model.Coupon)}
}

func (m *MockCouponRepo) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.store[c.Code] = &cp
	return nil
}

func (m *MockCouponRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// Redeem mirrors the guarded UPDATE of the real repository: the validity
// predicate and the increment happen under one lock.
func (m *MockCouponRepo) Redeem(ctx context.Context, tx repository.Tx, code string) error {
	if m.RedeemFunc != nil {
		return m.RedeemFunc(ctx, tx, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[code]
	if !ok || !c.IsValid(time.Now()) {
		return domain.ErrCouponInvalid
	}
	c.NumberOfUses++
	return nil
}

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu    sync.Mutex
	store map[string]*model.UserSubscription // by subscription ID

	SaveFunc         func(ctx context.Context, tx repository.Tx, sub *model.UserSubscription) error
	UpdateStatusFunc func(ctx context.Context, tx repository.Tx, id string, from, to model.SubscriptionStatus) (bool, error)
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{store: make(map[string]*model.UserSubscription)}
}

func (m *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, sub *model.UserSubscription) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, sub)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sub
	m.store[sub.ID] = &cp
	return nil
}

func (m *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSubscriptionRepo) FindLiveByUser(ctx context.Context, tx repository.Tx, userID string, now time.Time) (*model.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.store {
		if s.UserID == userID && s.IsLive(now) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) FindReserveByUserAndPlan(ctx context.Context, tx repository.Tx, userID, planID string) (*model.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.store {
		if s.UserID == userID && s.PlanID == planID && s.Status == model.SubscriptionStatusReserve {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.store {
		if s.TransactionID == transactionID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.UserSubscription
	for _, s := range m.store {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockSubscriptionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, from, to model.SubscriptionStatus) (bool, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, tx, id, from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockSubscriptionRepo) ExpireDue(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.store {
		if s.Status == model.SubscriptionStatusActive && s.EndDate.Before(now) {
			s.Status = model.SubscriptionStatusExpired
			n++
		}
	}
	return n, nil
}

func (m *MockSubscriptionRepo) CancelStaleReserves(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.store {
		if s.Status == model.SubscriptionStatusReserve && s.CreatedAt.Before(cutoff) {
			s.Status = model.SubscriptionStatusCanceled
			n++
		}
	}
	return n, nil
}

// ---- Mock GatewayRepository ----

type MockGatewayRepo struct {
	mu       sync.Mutex
	attempts map[string]*model.GatewayAttempt // by attempt ID
	results  map[string]*model.PaymentResult  // by attempt ID

	SaveAttemptFunc func(ctx context.Context, tx repository.Tx, a *model.GatewayAttempt) error
	SaveResultFunc  func(ctx context.Context, tx repository.Tx, r *model.PaymentResult) error
}

var _ repository.GatewayRepository = (*MockGatewayRepo)(nil)

func NewMockGatewayRepo() *MockGatewayRepo {
	return &MockGatewayRepo{
		attempts: make(map[string]*model.GatewayAttempt),
		results:  make(map[string]*model.PaymentResult),
	}
}

func (m *MockGatewayRepo) SaveAttempt(ctx context.Context, tx repository.Tx, a *model.GatewayAttempt) error {
	if m.SaveAttemptFunc != nil {
		return m.SaveAttemptFunc(ctx, tx, a)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m *MockGatewayRepo) FindByTrackID(ctx context.Context, tx repository.Tx, trackID, userID string) (*model.GatewayAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.TrackID != nil && *a.TrackID == trackID && a.UserID == userID && a.IsActive {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockGatewayRepo) FindAttemptByID(ctx context.Context, tx repository.Tx, id string) (*model.GatewayAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MockGatewayRepo) MarkComplete(ctx context.Context, tx repository.Tx, attemptID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok || a.IsComplete {
		return false, nil
	}
	a.IsComplete = true
	a.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockGatewayRepo) SaveResult(ctx context.Context, tx repository.Tx, r *model.PaymentResult) error {
	if m.SaveResultFunc != nil {
		return m.SaveResultFunc(ctx, tx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.results[r.AttemptID] = &cp
	return nil
}

func (m *MockGatewayRepo) FindResultByAttemptID(ctx context.Context, tx repository.Tx, attemptID string) (*model.PaymentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[attemptID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockGatewayRepo) ListIncompleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.GatewayAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.GatewayAttempt
	for _, a := range m.attempts {
		if !a.IsComplete && a.IsActive && a.TrackID != nil && a.CreatedAt.Before(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ResultCount reports how many result rows were written; used by tests
// asserting that failed verifications leave no result behind.
func (m *MockGatewayRepo) ResultCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}

// AttemptCount reports how many attempts were audited, including ones with
// no track id that FindByTrackID cannot reach.
func (m *MockGatewayRepo) AttemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	mu           sync.Mutex
	RequestCalls int
	VerifyCalls  int

	RequestPaymentFunc func(ctx context.Context, amount int64, description, orderID, mobile string) (*adapter.RequestReply, error)
	VerifyPaymentFunc  func(ctx context.Context, trackID string) (*adapter.VerifyReply, error)
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() string { return "mockpay" }

func (m *MockPaymentGateway) RequestPayment(ctx context.Context, amount int64, description, orderID, mobile string) (*adapter.RequestReply, error) {
	m.mu.Lock()
	m.RequestCalls++
	m.mu.Unlock()
	if m.RequestPaymentFunc != nil {
		return m.RequestPaymentFunc(ctx, amount, description, orderID, mobile)
	}
	track := "TRK-" + uuid.NewString()
	return &adapter.RequestReply{
		TrackID: track,
		Result:  100,
		Message: "success",
		PayURL:  "https://gateway.example/start/" + track,
	}, nil
}

func (m *MockPaymentGateway) VerifyPayment(ctx context.Context, trackID string) (*adapter.VerifyReply, error) {
	m.mu.Lock()
	m.VerifyCalls++
	m.mu.Unlock()
	if m.VerifyPaymentFunc != nil {
		return m.VerifyPaymentFunc(ctx, trackID)
	}
	return &adapter.VerifyReply{
		Outcome:    adapter.OutcomeSuccess,
		StatusCode: 1,
		ResultCode: 100,
		RefNumber:  "REF-" + trackID,
		PaidAt:     time.Now(),
	}, nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs the function immediately without a real transaction. Tests
// that verify transactional behavior assign WithTxFunc.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, nil)
}

// ---- Mock UserLocker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ErrOn[key]; err != nil {
		return "", err
	}
	if _, taken := l.held[key]; taken {
		return "", domain.ErrLockNotAcquired
	}
	token := uuid.NewString()
	l.held[key] = token
	return token, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"edu-subscription-payments/internal/domain/ports/repository"
	"edu-subscription-payments/internal/infra/logging"
	red "edu-subscription-payments/internal/infra/redis"
	"edu-subscription-payments/internal/usecase"
)

// Server wires the payment API routes to the orchestrator and ledger.
type Server struct {
	payUC     usecase.PaymentOrchestrator
	ledger    usecase.SubscriptionLedger
	plans     repository.SubscriptionPlanRepository
	limiter   *red.RateLimiter
	startRate int // start-payment calls per user per minute
	auth      *AuthManager
	log       *zerolog.Logger
}

func NewServer(
	payUC usecase.PaymentOrchestrator,
	ledger usecase.SubscriptionLedger,
	plans repository.SubscriptionPlanRepository,
	limiter *red.RateLimiter,
	startRate int,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	if startRate <= 0 {
		startRate = 5
	}
	return &Server{
		payUC:     payUC,
		ledger:    ledger,
		plans:     plans,
		limiter:   limiter,
		startRate: startRate,
		auth:      auth,
		log:       logger,
	}
}

// Router builds the chi router with all routes attached.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(traceContext)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api/v1/plans", s.handleListPlans)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/api/v1/payment/start", s.handleStartPayment)
		r.Get("/api/v1/payment/verify", s.handleVerifyPayment)
		r.Get("/api/v1/subscriptions", s.handleListSubscriptions)
	})

	return r
}

// traceContext copies the chi request id into the logging context so every
// log line emitted for a request carries its trace_id.
func traceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = logging.WithTraceID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

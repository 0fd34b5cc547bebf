package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
)

// Ledger is the set of ledger operations the API binds to routes.
// services.LedgerService implements it.
type Ledger interface {
	CreateTransaction(ctx context.Context, in services.Purchase) ([]core.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, in services.TransactionUpdate) (core.Transaction, error)
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	ListTransactions(ctx context.Context, c core.Competency) ([]core.Transaction, error)
	ListTransactionsBetween(ctx context.Context, from, to core.Date) ([]core.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error

	ListInstallments(ctx context.Context, groupID string) ([]core.Transaction, error)
	ReplanGroup(ctx context.Context, groupID string, newTotal *core.Money, newDate *core.Date) ([]core.Transaction, error)
	DeleteGroup(ctx context.Context, groupID string) error

	GenerateRecurring(ctx context.Context, c core.Competency) (services.GenerationResult, error)
	CreateTemplate(ctx context.Context, in services.TemplateInput) (core.RecurringTemplate, error)
	UpdateTemplate(ctx context.Context, id string, in services.TemplateInput) (core.RecurringTemplate, error)
	GetTemplate(ctx context.Context, id string) (core.RecurringTemplate, error)
	ListTemplates(ctx context.Context) ([]core.RecurringTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error
	TemplateState(ctx context.Context, templateID string, c core.Competency) (services.ScheduleState, error)

	CloseMonth(ctx context.Context, c core.Competency) ([]core.ClosedMonth, error)
	ReopenMonth(ctx context.Context, c core.Competency) ([]core.ClosedMonth, error)
	ListClosedMonths(ctx context.Context) ([]core.ClosedMonth, error)
}

var _ Ledger = (*services.LedgerService)(nil)

// TransactionListCache holds GET /api/transactions results per competency.
type TransactionListCache = cache.LRUCache[core.Competency, []core.Transaction]

// NewTransactionListCache builds the list cache. Register a
// cache.Invalidator over it as an event publisher of the ledger service so
// mutations evict their months.
func NewTransactionListCache(ttl time.Duration, opts ...cache.Option) *TransactionListCache {
	return cache.NewLRUCache[core.Competency, []core.Transaction](120, ttl, opts...)
}

// Config holds the server settings supplied by the process.
type Config struct {
	Addr               string
	RateLimitPerMinute int
	Logger             *log.Logger
	// ListCache is optional; nil serves every list from the store.
	ListCache            *TransactionListCache
	CacheCleanupInterval time.Duration
	// Ready backs /readyz, typically the store ping.
	Ready func(context.Context) error
	Now   func() time.Time
}

type Server struct {
	http.Server
	ledger    Ledger
	listCache *TransactionListCache
	caches    *cache.Manager
	limiter   *ratelimit.Limiter
	tracer    *trace.Middleware
	detector  *security.Detector
	ready     func(context.Context) error
	now       func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(cfg Config, l Ledger) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.DefaultConfig())
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CacheCleanupInterval <= 0 {
		cfg.CacheCleanupInterval = 10 * time.Minute
	}

	limitCfg := ratelimit.DefaultConfig()
	if cfg.RateLimitPerMinute > 0 {
		limitCfg.RequestsPerMinute = cfg.RateLimitPerMinute
	}

	s := &Server{
		ledger:    l,
		listCache: cfg.ListCache,
		caches:    cache.NewManager(),
		limiter:   ratelimit.NewLimiter(limitCfg),
		detector:  security.NewDetector(),
		ready:     cfg.Ready,
		now:       cfg.Now,
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)

	if s.listCache != nil {
		s.caches.Register(s.listCache)
		s.caches.StartCleanup(cfg.CacheCleanupInterval)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /api/installments/{groupId}", s.handleListInstallments)
	mux.HandleFunc("PUT /api/installments/{groupId}", s.handleReplanGroup)
	mux.HandleFunc("DELETE /api/installments/{groupId}", s.handleDeleteGroup)

	mux.HandleFunc("POST /api/recurring-transactions/generate", s.handleGenerateRecurring)
	mux.HandleFunc("GET /api/recurring-transactions", s.handleListTemplates)
	mux.HandleFunc("POST /api/recurring-transactions", s.handleCreateTemplate)
	mux.HandleFunc("GET /api/recurring-transactions/{id}", s.handleGetTemplate)
	mux.HandleFunc("PUT /api/recurring-transactions/{id}", s.handleUpdateTemplate)
	mux.HandleFunc("DELETE /api/recurring-transactions/{id}", s.handleDeleteTemplate)
	mux.HandleFunc("GET /api/recurring-transactions/{id}/state", s.handleTemplateState)

	mux.HandleFunc("GET /api/closed-months", s.handleListClosedMonths)
	mux.HandleFunc("POST /api/closed-months", s.handleCloseMonth)
	mux.HandleFunc("DELETE /api/closed-months", s.handleReopenMonth)

	tooMany := func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, KindRateLimited, "rate limit exceeded, try again later").Write(w)
	}

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, limitCfg.Methods, tooMany)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = log.RequestIDMiddleware(trace.RequestIDFromRequest)(handler)
	handler = log.Middleware(cfg.Logger.WithComponent(log.ComponentHTTP))(handler)
	handler = s.tracer.Middleware(handler)
	handler = s.detector.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Counters exposes the request totals recorded by the trace middleware.
func (s *Server) Counters() trace.Counters {
	return s.tracer.Counters()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, KindInternal, "store unavailable").Write(w)
			return
		}
	}
	NewJSONResponse().Data(map[string]string{"status": "ready"}).Write(w)
}

package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"moneybook/internal/cache"
	"moneybook/internal/core"
	"moneybook/internal/ledger"
	applog "moneybook/internal/log"
	"moneybook/internal/middleware/ratelimit"
	"moneybook/internal/middleware/security"
	"moneybook/internal/middleware/trace"
	"moneybook/internal/worker"
)

const (
	summaryCacheSize = 128
	summaryCacheTTL  = 5 * time.Minute
	readyTimeout     = 5 * time.Second
)

type (
	// Ledger is the transaction collection the API reads and writes.
	Ledger interface {
		List() []core.Transaction
		Get(id string) (core.Transaction, bool)
		Len() int
		Version() uint64
		Add(ctx context.Context, d ledger.Draft) (core.Transaction, error)
		Update(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		Delete(ctx context.Context, id string) error
		Clear(ctx context.Context) error
		Replace(ctx context.Context, txs []core.Transaction) error
	}

	// Syncer pushes to and pulls from the remote mirror.
	Syncer interface {
		SyncAll(ctx context.Context, txs []core.Transaction) worker.SyncResult
		Pull(ctx context.Context, l worker.Ledger) (int, error)
	}

	// ReadinessCheck is one dependency probed by /readyz.
	ReadinessCheck struct {
		Name  string
		Check func(ctx context.Context) error
	}

	Options struct {
		Addr      string
		Ledger    Ledger
		Syncer    Syncer
		Checks    []ReadinessCheck
		Language  string
		Logger    *applog.Logger
		RateLimit ratelimit.Config
		// TrustedProxies are CIDRs whose X-Forwarded-For header is believed.
		TrustedProxies []string
	}
)

type appMetrics struct {
	started             time.Time
	transactionsCreated atomic.Int64
	exports             atomic.Int64
	syncRuns            atomic.Int64
}

type Server struct {
	http.Server
	ledger    Ledger
	syncer    Syncer
	checks    []ReadinessCheck
	lang      string
	logger    *applog.Logger
	events    *applog.StructuredLogger
	summaries *cache.Summaries
	caches    *cache.Manager

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	appMetrics   appMetrics
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware. The returned server owns a cache
// cleanup goroutine and a rate limiter; call Shutdown to stop them.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		ledger:           opts.Ledger,
		syncer:           opts.Syncer,
		checks:           opts.Checks,
		lang:             opts.Language,
		logger:           logger,
		events:           applog.NewStructuredLogger(logger),
		summaries:        cache.NewSummaries(opts.Ledger, summaryCacheSize, summaryCacheTTL),
		caches:           cache.NewManager(),
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit),
		securityDetector: security.NewDetector(),
		now:              time.Now,
	}
	s.appMetrics.started = time.Now()
	for _, cidr := range opts.TrustedProxies {
		if err := s.securityDetector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, applog.FieldError, err)
		}
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	s.caches.Register(s.summaries)
	s.caches.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /categories", s.handleCategories)
	mux.HandleFunc("GET /transactions", s.handleListTransactions)
	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("DELETE /transactions", s.handleClearTransactions)

	analytics := applog.ComponentMiddleware(applog.ComponentAnalytics)
	mux.Handle("GET /analytics/summary", analytics(http.HandlerFunc(s.handleSummary)))
	mux.Handle("GET /analytics/categories", analytics(http.HandlerFunc(s.handleCategoryBreakdown)))
	mux.Handle("GET /analytics/trend", analytics(http.HandlerFunc(s.handleTrend)))
	mux.Handle("GET /history", analytics(http.HandlerFunc(s.handleHistory)))
	mux.Handle("GET /export", applog.ComponentMiddleware(applog.ComponentExport)(http.HandlerFunc(s.handleExport)))

	mux.HandleFunc("POST /sync", s.handleSyncPush)
	mux.HandleFunc("POST /sync/pull", s.handleSyncPull)

	s.Handler = s.withMiddleware(mux)
	return s
}

// withMiddleware applies, outermost first: request logger, tracing,
// suspicious request detection, security headers and the write rate limit.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	h := s.limitWrites(next)
	h = security.NoStore(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.securityDetector.Middleware(h)
	h = s.traceMiddleware.Middleware(h)
	h = applog.RequestIDMiddleware(func(r *http.Request) string { return trace.GetRequestID(r.Context()) })(h)
	return applog.Middleware(s.logger)(h)
}

// limitWrites rate limits every method except GET and HEAD.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})
}

// Shutdown stops background goroutines and the HTTP server. Only the first
// call has any effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/walletscope/internal/analysis"
	"github.com/mbd888/walletscope/internal/chain"
	"github.com/mbd888/walletscope/internal/config"
	"github.com/mbd888/walletscope/internal/health"
	"github.com/mbd888/walletscope/internal/intel"
	"github.com/mbd888/walletscope/internal/logging"
	"github.com/mbd888/walletscope/internal/metrics"
	"github.com/mbd888/walletscope/internal/ratelimit"
	"github.com/mbd888/walletscope/internal/realtime"
	"github.com/mbd888/walletscope/internal/risk"
	"github.com/mbd888/walletscope/internal/security"
	"github.com/mbd888/walletscope/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	fetcher      chain.Fetcher
	svc          *analysis.Service
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	healthReg    *health.Registry
	db           *sql.DB      // nil if using in-memory
	reportPruner reportPruner // nil without Postgres
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithFetcher sets a custom transaction fetcher (for testing)
func WithFetcher(f chain.Fetcher) Option {
	return func(s *Server) {
		s.fetcher = f
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logging.New(cfg.LogLevel, cfg.LogFormat),
		healthReg: health.NewRegistry(),
	}

	// Apply options first (may set fetcher/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var assessmentStore risk.Store
	var reportStore analysis.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		assessmentStore = risk.NewPostgresStore(db)
		pgReports := analysis.NewPostgresStore(db)
		reportStore = pgReports
		s.reportPruner = pgReports
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		s.healthReg.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		assessmentStore = risk.NewMemoryStore()
		reportStore = analysis.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Risk lists: curated file in production, built-in defaults for dev
	lists := risk.DefaultLists()
	if cfg.ListsFile != "" {
		loaded, err := risk.LoadLists(cfg.ListsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load risk lists: %w", err)
		}
		lists = loaded
		s.logger.Info("risk lists loaded", "file", cfg.ListsFile)
	}

	engine := risk.NewEngine(lists).WithStore(assessmentStore)

	// Transaction fetcher against the indexer API, unless injected
	if s.fetcher == nil {
		s.fetcher = chain.NewClient(cfg.IndexerURL, cfg.IndexerAPIKey)
	}

	// Threat-intel providers: remote API (when configured) plus the
	// community lists we already hold for risk scoring
	var providers []intel.Provider
	if cfg.IntelAPIURL != "" {
		providers = append(providers, intel.NewHTTPProvider(cfg.IntelAPIName, cfg.IntelAPIURL, cfg.IntelAPIKey))
		s.logger.Info("remote intel provider enabled", "name", cfg.IntelAPIName)
	}
	providers = append(providers, intel.NewListProvider("Community Lists", communityListings(lists)))

	// Remote community blocklist, refreshed at startup. A fetch failure is
	// logged and skipped so one bad list never blocks boot.
	if cfg.CommunityListURL != "" {
		if err := security.ValidateEndpointURL(cfg.CommunityListURL); err != nil {
			return nil, fmt.Errorf("invalid COMMUNITY_LIST_URL: %w", err)
		}
		fetchCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		listings, err := intel.FetchListings(fetchCtx, cfg.CommunityListURL)
		cancel()
		if err != nil {
			s.logger.Warn("failed to fetch community blocklist", "error", err, "url", cfg.CommunityListURL)
		} else {
			providers = append(providers, intel.NewListProvider("Community Blocklist", listings))
			s.logger.Info("community blocklist loaded", "entries", len(listings))
		}
	}

	aggregator := intel.NewAggregator(providers,
		intel.WithCache(intel.NewCache(cfg.IntelCacheTTL, cfg.IntelCacheSize)),
		intel.WithProviderTimeout(cfg.ProviderTimeout),
		intel.WithStaticFallback(cfg.StaticFallback),
		intel.WithLogger(s.logger),
	)

	// Realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)

	s.svc = analysis.NewService(s.fetcher, engine, aggregator,
		analysis.WithStore(reportStore),
		analysis.WithBroadcaster(&hubBroadcaster{s.realtimeHub}),
		analysis.WithCounterpartyLimit(cfg.CounterpartyLimit),
		analysis.WithLogger(s.logger),
	)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// communityListings folds the risk lists into intel blocklist entries.
func communityListings(lists *risk.Lists) map[string]intel.Listing {
	listings := make(map[string]intel.Listing)
	for addr := range lists.Mixers {
		listings[addr] = intel.Listing{Tier: intel.TierHigh, Tag: "mixer"}
	}
	for addr := range lists.ScamContracts {
		listings[addr] = intel.Listing{Tier: intel.TierHigh, Tag: "scam-contract"}
	}
	for addr := range lists.Blacklist {
		listings[addr] = intel.Listing{Tier: intel.TierCritical, Tag: "blacklist"}
	}
	return listings
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :address URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.AddressParamMiddleware())

	analysis.NewHandler(s.svc).RegisterRoutes(v1)

	// Realtime hub statistics (for dashboards)
	v1.GET("/stream/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.healthReg.CheckAll(ctx)

	checks := make(map[string]string)
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Walletscope",
		"description": "Wallet risk scoring and transaction-graph analysis",
		"version":     "0.1.0",
		"endpoints": []string{
			"GET /v1/wallets/:address/report",
			"GET /v1/wallets/:address/graph",
			"GET /v1/wallets/:address/history",
			"GET /v1/wallets/:address/assessments",
			"GET /v1/threat/:address",
			"POST /v1/threat/batch",
			"GET /ws",
		},
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start DB stats collector
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Start report retention sweeps
	if s.reportPruner != nil && s.cfg.ReportRetention > 0 {
		go runRetention(runCtx, s.reportPruner, s.cfg.ReportRetention, retentionSweepInterval, s.logger)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Retention
// -----------------------------------------------------------------------------

// retentionSweepInterval is how often stored reports are checked against
// the retention window.
const retentionSweepInterval = time.Hour

// reportPruner is the retention surface of the report store.
type reportPruner interface {
	PruneBefore(ctx context.Context, t time.Time) (int64, error)
}

// runRetention periodically deletes reports older than the retention
// window until the context is cancelled.
func runRetention(ctx context.Context, p reportPruner, retention, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PruneBefore(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Warn("report retention sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("pruned old reports", "count", n, "retention", retention.String())
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// -----------------------------------------------------------------------------
// Realtime adapter
// -----------------------------------------------------------------------------

// hubBroadcaster adapts realtime.Hub to analysis.Broadcaster
type hubBroadcaster struct {
	hub *realtime.Hub
}

func (b *hubBroadcaster) AnalysisCompleted(r *analysis.Report) {
	b.hub.BroadcastAnalysis(map[string]interface{}{
		"reportId":      r.ID,
		"address":       r.Address,
		"score":         r.Score,
		"combinedScore": r.CombinedScore,
		"level":         string(r.Level),
		"clusterCount":  r.ClusterCount,
	})
}

func (b *hubBroadcaster) ThreatAlert(r *analysis.Report) {
	data := map[string]interface{}{
		"address":       r.Address,
		"combinedScore": r.CombinedScore,
		"level":         string(r.Level),
	}
	if r.Threat != nil {
		data["tier"] = string(r.Threat.Tier)
		data["tags"] = r.Threat.Tags
		data["sources"] = r.Threat.Sources
	}
	b.hub.BroadcastThreatAlert(data)
}

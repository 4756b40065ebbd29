package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/config"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/audit"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/beds"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/clinicalfile"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/orders"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/patient"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/rounds"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/timeline"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/vitals"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/ai"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/auth"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/db"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/metrics"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/middleware"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/websocket"
)

const version = "0.1.0"

type services struct {
	patients *patient.Service
	orders   *orders.Service
	rounds   *rounds.Service
	vitals   *vitals.Service
	timeline *timeline.Service
	clinical *clinicalfile.Service
	beds     *beds.Service
	audit    *audit.Service
}

// app owns everything the server and the seed command share.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool
	store  *patient.Store
	hub    *websocket.Hub
	svc    services
	echo   *echo.Echo

	unpublish  func()
	stopFollow context.CancelFunc
	followDone chan struct{}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// newApp connects storage, loads the patient store and wires the services
// and routes. The caller must close the app.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &app{cfg: cfg, logger: logger}

	var (
		patientRepo patient.Repository
		auditRepo   audit.Repository
		bedRepo     beds.Repository
	)
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.pool = pool
		patientRepo = patient.NewRepoPG(pool)
		auditRepo = audit.NewRepoPG(pool)
		bedRepo = beds.NewRepoPG(pool)
		logger.Info().Msg("connected to database")
	default:
		patientRepo = patient.NewMemoryRepo()
		auditRepo = audit.NewMemoryRepo()
		bedRepo = beds.NewMemoryRepo()
		logger.Warn().Msg("using in-memory storage; data is lost on exit")
	}

	a.store = patient.NewStore(patientRepo, logger, patient.StoreOptions{PersistTimeout: cfg.PersistTimeout})
	if err := a.store.Load(ctx); err != nil {
		a.closePool()
		return nil, fmt.Errorf("load patients: %w", err)
	}
	if a.pool != nil {
		followCtx, cancel := context.WithCancel(context.Background())
		a.stopFollow = cancel
		a.followDone = make(chan struct{})
		go func() {
			defer close(a.followDone)
			if err := a.store.Follow(followCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("patient change feed stopped")
			}
		}()
	}

	gateway, err := newGateway(ctx, cfg, logger)
	if err != nil {
		a.close(context.Background())
		return nil, err
	}

	a.svc.audit = audit.NewService(auditRepo, logger)
	mut := patient.NewMutator(a.store, auth.ContextSessions{}, a.svc.audit, logger)
	a.svc.patients = patient.NewService(mut, gateway, logger)
	a.svc.orders = orders.NewService(mut, gateway, logger)
	a.svc.rounds = rounds.NewService(mut, gateway, logger)
	a.svc.vitals = vitals.NewService(mut, gateway, logger)
	a.svc.timeline = timeline.NewService(mut)
	a.svc.clinical = clinicalfile.NewService(mut, gateway, logger)
	a.svc.beds = beds.NewService(bedRepo, mut, logger)
	a.svc.patients.SetBedReleaser(a.svc.beds)

	a.hub = websocket.NewHub(logger)
	a.unpublish = patient.PublishChanges(a.store, a.hub, logger)

	a.echo = a.routes()
	return a, nil
}

func newGateway(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ai.Gateway, error) {
	if !cfg.AIEnabled() {
		logger.Warn().Msg("GEMINI_API_KEY not set; AI features will report degraded results")
		return ai.Disabled{}, nil
	}
	model, err := ai.NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.AIModel)
	if err != nil {
		return nil, err
	}
	return ai.NewClient(model, cfg.AITimeout, logger), nil
}

func (a *app) routes() *echo.Echo {
	cfg, logger := a.cfg, a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	var authMW echo.MiddlewareFunc
	if cfg.ResolvedAuthMode() == "development" {
		authMW = auth.DevAuthMiddleware()
	} else {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		})
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":   "ok",
			"version":  version,
			"backend":  cfg.StoreBackend,
			"unsynced": len(a.store.UnsyncedStatuses()),
		})
	})
	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool))
	}
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	apiV1 := e.Group("/api/v1", authMW, middleware.RateLimit(rateLimitCfg),
		middleware.BodyLimit(cfg.BodyLimit), middleware.AccessLog(logger))
	patient.NewHandler(a.svc.patients).RegisterRoutes(apiV1)
	orders.NewHandler(a.svc.orders).RegisterRoutes(apiV1)
	rounds.NewHandler(a.svc.rounds).RegisterRoutes(apiV1)
	vitals.NewHandler(a.svc.vitals).RegisterRoutes(apiV1)
	timeline.NewHandler(a.svc.timeline).RegisterRoutes(apiV1)
	clinicalfile.NewHandler(a.svc.clinical).RegisterRoutes(apiV1)
	beds.NewHandler(a.svc.beds).RegisterRoutes(apiV1)
	audit.NewHandler(a.svc.audit).RegisterRoutes(apiV1)

	websocket.NewHandler(a.hub, cfg.CORSOrigins, auth.UserIDFromContext).RegisterRoutes(e, authMW)
	return e
}

// close stops the change feed and drains pending patient writes before the
// pool goes away.
func (a *app) close(ctx context.Context) error {
	if a.unpublish != nil {
		a.unpublish()
	}
	if a.stopFollow != nil {
		a.stopFollow()
		<-a.followDone
	}
	var err error
	if a.store != nil {
		if err = a.store.Close(ctx); err != nil {
			a.logger.Error().Err(err).Msg("patient store did not drain")
		}
	}
	a.closePool()
	return err
}

func (a *app) closePool() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		fallback := newLogger(nil)
		fallback.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)

	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start")
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("backend", cfg.StoreBackend).Bool("ai", cfg.AIEnabled()).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	return a.close(ctx)
}

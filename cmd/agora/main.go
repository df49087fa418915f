package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/agora/pkg/api"
	"github.com/platinummonkey/agora/pkg/audit"
	"github.com/platinummonkey/agora/pkg/auth"
	"github.com/platinummonkey/agora/pkg/config"
	"github.com/platinummonkey/agora/pkg/database"
	"github.com/platinummonkey/agora/pkg/middleware"
	"github.com/platinummonkey/agora/pkg/observability"
	"github.com/platinummonkey/agora/pkg/rbac"
	"github.com/platinummonkey/agora/pkg/session"
	"github.com/platinummonkey/agora/pkg/storage"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the environment is parsed")
	flag.Parse()

	if err := run(*envFile); err != nil {
		log.Fatalf("agora: %v", err)
	}
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", version).Info("Starting agora")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Observability.OTel.ServiceVersion == "dev" {
		cfg.Observability.OTel.ServiceVersion = version
	}
	telemetry, err := observability.StartTelemetry(ctx, cfg.Observability.OTel, logger)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return err
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, append(auth.Models(), rbac.Models()...)...); err != nil {
			return err
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	logger.WithField("driver", cfg.Database.Driver).Info("Database connected")

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("Redis connected")
	}

	var revocations session.RevocationStore
	if cfg.Session.Revocations == "redis" {
		revocations = session.NewRedisRevocations(redisClient)
	} else {
		revocations = session.NewMemoryRevocations(cfg.Session.RevocationCapacity, cfg.Session.TTL)
	}
	sessions, err := session.NewManager(cfg.Session, revocations)
	if err != nil {
		return err
	}

	users := auth.NewStore(db)
	authService := auth.NewService(users, 0)
	roles := rbac.NewStore(db)

	if err := seedRoles(ctx, cfg.Roles, roles, logger); err != nil {
		return err
	}
	if err := bootstrapAdmin(ctx, cfg.Bootstrap, authService, roles, logger); err != nil {
		return err
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	backends, closers, err := openBackends(ctx, cfg.Storage, metrics)
	if err != nil {
		return err
	}

	auditLogger, err := newAuditLogger(cfg.Audit, logger)
	if err != nil {
		return err
	}

	// sign-in attempts are counted in Redis when it is available so every
	// instance enforces the same budget
	var limiter middleware.Limiter = middleware.NewRateLimiter(cfg.RateLimit)
	if redisClient != nil {
		limiter = middleware.NewDistributedRateLimiter(redisClient, cfg.RateLimit, "agora:signin")
	}

	server, err := api.NewServer(cfg.Server, api.Dependencies{
		Logger:        logger,
		Metrics:       metrics,
		Auth:          authService,
		Sessions:      sessions,
		Roles:         roles,
		Storage:       backends.registry,
		Audit:         auditLogger,
		SignInLimiter: limiter,
		DefaultRole:   cfg.Roles.DefaultRole,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// health and metrics listen separately so they stay off the public port
	var redisHealth redis.UniversalClient
	if redisClient != nil {
		redisHealth = redisClient
	}
	health := observability.NewHealthChecker(sqlDB, redisHealth, version)
	for name, check := range backends.checks {
		health.AddCheck("storage_"+name, false, check)
	}
	healthRouter := mux.NewRouter()
	health.RegisterRoutes(healthRouter)
	if metrics != nil {
		healthRouter.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}
	healthServer := &http.Server{
		Addr:        cfg.Server.HealthAddr,
		Handler:     healthRouter,
		ReadTimeout: 5 * time.Second,
	}

	scheduler := cron.New()
	if metrics != nil {
		collector := &statsCollector{users: users, roles: roles, db: sqlDB, metrics: metrics}
		if err := scheduleStats(ctx, scheduler, cfg.Observability.StatsSchedule, collector, logger); err != nil {
			return err
		}
	}
	scheduler.Start()

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	registerShutdown(shutdown, shutdownTargets{
		healthServer: healthServer,
		scheduler:    scheduler,
		audit:        auditLogger,
		db:           db,
		redis:        redisClient,
		otel:         telemetry,
		closers:      closers,
	})

	serveErr := make(chan error, 2)
	serve := func(name string, srv *http.Server) {
		observability.Go(logger, name, func() {
			logger.WithField("addr", srv.Addr).Infof("%s listening", name)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		})
	}
	serve("HTTP server", httpServer)
	if cfg.Server.HealthAddr != "" {
		serve("Health server", healthServer)
	}

	if err := shutdown.WaitForShutdown(ctx); err != nil {
		return err
	}
	select {
	case err := <-serveErr:
		return err
	default:
	}
	logger.Info("agora stopped")
	return nil
}

func seedRoles(ctx context.Context, cfg config.RolesConfig, roles *rbac.Store, logger *observability.Logger) error {
	seed, err := rbac.LoadSeedFile(cfg.SeedFile)
	if err != nil {
		return err
	}

	result, err := rbac.ApplySeed(ctx, roles, seed)
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"created":  result.Created,
		"existing": len(result.Existing),
	}).Info("Roles seeded")
	return nil
}

func bootstrapAdmin(ctx context.Context, cfg config.BootstrapConfig, svc *auth.Service, roles *rbac.Store, logger *observability.Logger) error {
	if cfg.Email == "" {
		return nil
	}

	user, created, err := svc.EnsureAdmin(ctx, cfg.Email, cfg.Name, cfg.Password)
	if err != nil {
		return fmt.Errorf("failed to bootstrap administrator: %w", err)
	}
	if err := rbac.EnsureAssignment(ctx, roles, user.ID, "admin"); err != nil {
		return fmt.Errorf("failed to assign administrator role: %w", err)
	}
	if created {
		logger.WithField("email", user.Email).Info("Bootstrap administrator created")
	}
	return nil
}

type openedBackends struct {
	registry *storage.Registry
	checks   map[string]observability.CheckFunc
}

func openBackends(ctx context.Context, cfg config.StorageConfig, metrics *observability.Metrics) (*openedBackends, []func() error, error) {
	var recorder storage.OperationRecorder
	if metrics != nil {
		recorder = metrics
	}

	out := &openedBackends{
		registry: storage.NewRegistry(),
		checks:   make(map[string]observability.CheckFunc),
	}
	var closers []func() error

	for _, name := range cfg.Backends {
		var gw storage.Gateway
		switch name {
		case config.BackendLocal:
			local, err := storage.NewFileSystemStorage(cfg.LocalRoot)
			if err != nil {
				return nil, nil, err
			}
			closers = append(closers, local.Close)
			gw = local
		case config.BackendS3:
			s3, err := storage.NewS3Backend(ctx, cfg.S3)
			if err != nil {
				return nil, nil, err
			}
			out.checks[name] = s3.HealthCheck
			gw = s3
		case config.BackendWebDAV:
			dav, err := storage.NewWebDAVBackend(cfg.WebDAV)
			if err != nil {
				return nil, nil, err
			}
			out.checks[name] = dav.HealthCheck
			gw = dav
		default:
			return nil, nil, fmt.Errorf("unknown storage backend %q", name)
		}
		out.registry.Register(name, storage.Instrument(name, gw, recorder))
	}
	return out, closers, nil
}

func newAuditLogger(cfg audit.FileLoggerConfig, logger *observability.Logger) (audit.Logger, error) {
	structured := audit.NewStructuredLogger(logger.WithComponent("audit"))
	if cfg.BasePath == "" {
		return structured, nil
	}
	file, err := audit.NewFileLogger(cfg)
	if err != nil {
		return nil, err
	}
	return audit.Tee{structured, file}, nil
}

func scheduleStats(ctx context.Context, scheduler *cron.Cron, spec string, collector *statsCollector, logger *observability.Logger) error {
	job := func() {
		defer observability.RecoverPanic(logger, "refresh stats")
		jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := collector.Collect(jobCtx); err != nil {
			logger.WithError(err).Warn("Stats refresh failed")
		}
	}
	if _, err := scheduler.AddFunc(spec, job); err != nil {
		return fmt.Errorf("invalid stats schedule %q: %w", spec, err)
	}
	// populate the gauges before the first tick
	go job()
	return nil
}

type shutdownTargets struct {
	healthServer *http.Server
	scheduler    *cron.Cron
	audit        audit.Logger
	db           *gorm.DB
	redis        *redis.Client
	otel         *observability.Telemetry
	closers      []func() error
}

func registerShutdown(sm *observability.ShutdownManager, t shutdownTargets) {
	sm.Register("health server", t.healthServer.Shutdown)
	sm.Register("scheduler", func(ctx context.Context) error {
		select {
		case <-t.scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	sm.Register("audit", func(context.Context) error { return t.audit.Close() })
	sm.Register("database", func(context.Context) error { return database.Close(t.db) })
	if t.redis != nil {
		sm.Register("redis", func(context.Context) error { return t.redis.Close() })
	}
	if t.otel != nil {
		sm.Register("opentelemetry", t.otel.Shutdown)
	}
	sm.Register("storage", func(context.Context) error {
		var errs []error
		for _, c := range t.closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	})
}

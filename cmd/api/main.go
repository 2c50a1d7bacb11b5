package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"call-screening/internal/actions"
	"call-screening/internal/audit"
	"call-screening/internal/auth"
	"call-screening/internal/calls"
	"call-screening/internal/config"
	"call-screening/internal/dispatch"
	"call-screening/internal/httpapi"
	"call-screening/internal/metrics"
	"call-screening/internal/screening"
	"call-screening/internal/telephony"
	"call-screening/pkg/logger"
	"call-screening/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	if cfg.App.LogFile != "" {
		l, closer, err := logger.NewWithFile(cfg.App.Env, cfg.App.LogFile)
		if err != nil {
			log.Error("log file init failed", "path", cfg.App.LogFile, "err", err)
			os.Exit(1)
		}
		defer closer.Close()
		log = l
	}
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, dialect, err := openDB(rootCtx, cfg.DB)
	if err != nil {
		log.Error("database init failed", "driver", cfg.DB.Driver, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.DB.AutoMigrate || cfg.DB.Driver == config.DriverSQLite {
		if err := ensureSchema(rootCtx, db); err != nil {
			log.Error("schema init failed", "err", err)
			os.Exit(1)
		}
	}

	locker, rdb, err := newLocker(rootCtx, cfg.Lock)
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	store := calls.NewSQLStore(db, dialect)
	reconciler := calls.NewReconciler(store, calls.NewRegistry(), locker)
	auditSvc := audit.NewService(audit.NewSQLRepo(db, dialect == calls.DialectPostgres))

	policy := actions.DefaultPolicy()
	policy.MaxAttempts = cfg.Actions.MaxAttempts
	policy.Backoff = actions.LinearBackoff(cfg.Actions.BaseDelay)
	policy.AttemptTimeout = cfg.Actions.AttemptTimeout

	retell := telephony.NewRetellClient(cfg.Retell.BaseURL, cfg.Retell.APIKey, 0)
	executor := actions.NewExecutor(retell, reconciler, policy, cfg.Actions.EndCallMessage)

	classifier := screening.NewLLMClassifier(screening.LLMConfig{
		BaseURL:      cfg.Classifier.BaseURL,
		APIKey:       cfg.Classifier.APIKey,
		Model:        cfg.Classifier.Model,
		Timeout:      cfg.Classifier.Timeout,
		SummaryWords: cfg.Classifier.SummaryWords,
	})

	dispatcher := dispatch.New(reconciler, classifier, executor, auditSvc, dispatch.Options{
		TransferTarget: cfg.Actions.TransferTarget,
		SummaryWords:   cfg.Classifier.SummaryWords,
	})

	h := httpapi.Handlers{
		Dispatcher: dispatcher,
		Calls:      store,
		Audit:      auditSvc,
		Ping: func(ctx context.Context) error {
			return utils.HealthCheck(ctx, db, 2*time.Second)
		},
		WebhookSecret:       cfg.Retell.WebhookSecret,
		RejectBadSignatures: cfg.IsProduction(),
	}
	if cfg.Retell.WebhookSecret == "" {
		log.Warn("RETELL_WEBHOOK_SECRET not set; webhook signatures are not checked")
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(metrics.Middleware())

	registerPublicRoutes(r, h) // webhooks, screening, health
	registerProtectedRoutes(r, h, auth.RequireOperator(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Screening waits for the classifier and up to three action attempts.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening",
			"addr", srv.Addr,
			"env", cfg.App.Env,
			"db_driver", cfg.DB.Driver,
			"lock_backend", cfg.Lock.Backend,
			"classifier_model", cfg.Classifier.Model,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

func openDB(ctx context.Context, cfg config.DBConfig) (*sql.DB, calls.Dialect, error) {
	if cfg.Driver == config.DriverSQLite {
		db, err := utils.OpenSQLite(ctx, cfg.SQLitePath)
		return db, calls.DialectSQLite, err
	}
	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PoolConfig{})
	return db, calls.DialectPostgres, err
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	if err := calls.EnsureSchema(ctx, db); err != nil {
		return err
	}
	return audit.EnsureSchema(ctx, db)
}

func newLocker(ctx context.Context, cfg config.LockConfig) (calls.Locker, *redis.Client, error) {
	if cfg.Backend != config.LockRedis {
		return calls.NewKeyedMutex(), nil, nil
	}
	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	return calls.NewRedisLocker(rdb, cfg.TTL), rdb, nil
}

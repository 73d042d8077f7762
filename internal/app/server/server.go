package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"zonafiscal/internal/domain/audit"
	"zonafiscal/internal/domain/auth"
	"zonafiscal/internal/domain/consent"
	"zonafiscal/internal/domain/export"
	"zonafiscal/internal/domain/lifecycle"
	"zonafiscal/internal/domain/security"
	"zonafiscal/internal/notify"
	"zonafiscal/internal/platform/config"
	"zonafiscal/internal/platform/db"
	"zonafiscal/internal/platform/email"
	"zonafiscal/internal/platform/jobs"
	"zonafiscal/internal/platform/metrics"
	"zonafiscal/internal/platform/slack"
	"zonafiscal/internal/transport/http/api"
	adminhandler "zonafiscal/internal/transport/http/handlers/admin"
	authhandler "zonafiscal/internal/transport/http/handlers/auth"
	cronhandler "zonafiscal/internal/transport/http/handlers/cron"
	lgpdhandler "zonafiscal/internal/transport/http/handlers/lgpd"
	"zonafiscal/internal/transport/http/middleware"
)

type App struct {
	Config config.Config
	DB     *pgxpool.Pool
	Router http.Handler
}

// New wires the full application. Background workers (notification
// dispatcher, job queue, deadline scheduler) are bound to ctx and stop when
// it is cancelled.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	auditSvc := audit.New(pool)
	secSvc := security.New(pool)
	resolver := auth.NewResolver(pool, cfg.SuperAdminEmails)
	consentStore := consent.NewStore(pool)
	lifecycleStore := lifecycle.NewStore(pool)
	lifecycleSvc := lifecycle.NewService(lifecycleStore, cfg.ReactivationWindow)
	exportSvc := export.New(pool)

	slackClient := slack.New(cfg.SlackWebhookURL, cfg.SlackTimeout, slog.Default())
	dispatcher := notify.NewDispatcher(email.New(cfg), slackClient, cfg.EmailFrom, cfg.AppBaseURL)
	dispatcher.Start(ctx)

	jobsSvc := jobs.New(pool, cfg, lifecycleSvc, dispatcher)
	jobsSvc.Start(ctx)

	collector := metrics.New()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(collector))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.WriteJSON(w, http.StatusOK, collector.Snapshot())
		})
	}

	authhandler.NewHandler(pool, cfg.JWTSecret, secSvc).RegisterRoutes(router)
	lgpdhandler.NewHandler(consentStore, lifecycleSvc, exportSvc, auditSvc, secSvc).RegisterRoutes(router)
	adminhandler.NewHandler(lifecycleStore, lifecycleSvc, exportSvc, auditSvc, secSvc, resolver, dispatcher).RegisterRoutes(router)
	cronhandler.NewHandler(jobsSvc, cfg.CronSecret, secSvc).RegisterRoutes(router)

	return &App{Config: cfg, DB: pool, Router: router}, nil
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

func Run() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := New(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer app.Close()

	log.Printf("zonafiscal server listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, app.Router); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

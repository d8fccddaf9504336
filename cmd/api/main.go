package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"leadflow_backend/internal/advisors"
	advisorrepo "leadflow_backend/internal/advisors/repository"
	"leadflow_backend/internal/ai"
	"leadflow_backend/internal/assignment"
	assignmentrepo "leadflow_backend/internal/assignment/repository"
	"leadflow_backend/internal/config"
	"leadflow_backend/internal/db"
	"leadflow_backend/internal/email"
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/http/router"
	"leadflow_backend/internal/leads"
	leadrepo "leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/notification"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/scoring"
	scorerepo "leadflow_backend/internal/scoring/repository"
	"leadflow_backend/internal/sla"
	slarepo "leadflow_backend/internal/sla/repository"
	timelinerepo "leadflow_backend/internal/timeline/repository"
	"leadflow_backend/internal/whatsapp"
	"leadflow_backend/platform/keymutex"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting api server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	schedClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize sla check scheduler", "error", err)
		panic("failed to initialize sla check scheduler: " + err.Error())
	}
	defer func() {
		_ = schedClient.Close()
	}()

	emailSender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	bus := events.NewInMemoryBus(log)
	val := validator.New()
	locks := keymutex.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	advisorRepo := advisorrepo.New(pool)
	leadRepo := leadrepo.New(pool)
	timelineRepo := timelinerepo.New(pool)
	scoreRepo := scorerepo.New(pool)
	assignRepo := assignmentrepo.New(pool)
	slaRepo := slarepo.New(pool)

	scores := scoring.New(scoreRepo, cfg.QualityNoteMonthlyCap, log)
	selector := assignment.NewSelector(advisorRepo, assignRepo, scores, log)
	ledger := assignment.NewService(assignRepo, selector, leadRepo, timelineRepo, bus, log)

	notifier := notification.New(advisorRepo, leadRepo, emailSender, cfg.SupervisorEmail, log)
	notifier.RegisterHandlers(bus)
	notifier.SetWhatsAppSender(whatsapp.NewClient(cfg, log))

	watchdog := sla.NewService(
		slaRepo, leadRepo, leadRepo, scores, ledger, timelineRepo,
		notifier, schedClient, locks, bus,
		sla.Config{Window: cfg.SLAWindow, MaxReassignments: cfg.MaxReassignments},
		log,
	)

	var summarizer leads.Summarizer
	if cfg.GeminiAPIKey != "" {
		s, err := ai.NewSummarizer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Warn("lead summaries disabled", "error", err)
		} else {
			summarizer = s
		}
	} else {
		log.Warn("GEMINI_API_KEY not configured; lead summaries disabled")
	}

	pipeline := leads.NewService(
		leadRepo, ledger, selector, watchdog, scores, timelineRepo,
		summarizer, locks, bus, log,
	)
	roster := advisors.NewService(advisorRepo, scores, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: bus,
		Modules: []apphttp.Module{
			leads.NewModule(pipeline, val),
			advisors.NewModule(roster, val),
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}

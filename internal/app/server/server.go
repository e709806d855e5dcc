package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paycore/internal/domain/audit"
	"paycore/internal/domain/auth"
	"paycore/internal/domain/money"
	"paycore/internal/domain/payroll"
	"paycore/internal/domain/paystub"
	"paycore/internal/domain/taxrules"
	"paycore/internal/platform/config"
	"paycore/internal/platform/crypto"
	"paycore/internal/platform/db"
	"paycore/internal/platform/jobs"
	"paycore/internal/platform/metrics"
	"paycore/internal/transport/http/api"
	payrollhandler "paycore/internal/transport/http/handlers/payroll"
	"paycore/internal/transport/http/middleware"
)

const (
	requestsPerMinute = 300
	rateWindow        = time.Minute
)

// Run starts the API and blocks until SIGINT or SIGTERM, then drains
// in-flight requests and queued payroll jobs.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		applied, err := db.Migrate(ctx, pool, cfg.MigrationsDir)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("migrations complete", "applied", applied)
	}

	registry := taxrules.DefaultRegistry()
	if cfg.TaxRulesDir != "" {
		loaded, err := registry.LoadDir(cfg.TaxRulesDir)
		if err != nil {
			return fmt.Errorf("load tax rules: %w", err)
		}
		slog.Info("tax rules loaded", "dir", cfg.TaxRulesDir, "files", loaded, "years", registry.Years())
	}
	rounding, err := money.ParseRoundingPolicy(cfg.RoundingPolicy)
	if err != nil {
		return err
	}

	cipher, err := crypto.New(cfg.PaystubEncryptionKey)
	if err != nil {
		return err
	}

	collector := metrics.New()
	auditLog := audit.New(pool)
	queue := jobs.New(pool, cfg.JobQueueSize)
	queue.Start(ctx)

	runs := payroll.NewService(
		payroll.NewStore(pool),
		payroll.NewAssembler(registry, rounding),
		auditLog,
		collector,
		cfg.RunWorkers,
		payroll.RunPolicy(cfg.RunPolicy),
	)
	paystubs := paystub.NewService(runs, paystub.Archive{Dir: cfg.PaystubDir, Cipher: cipher})

	handler := payrollhandler.NewHandler(runs, paystubs, queue, auditLog, middleware.NewIdempotencyStore(pool), auth.RoleStore{})
	router := newRouter(cfg, pool, collector, handler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("paycore server listening", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown incomplete", "err", err)
	}
	queue.Wait()
	return nil
}

func newRouter(cfg config.Config, pool *pgxpool.Pool, collector *metrics.Collector, handler *payrollhandler.Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Logger(collector))
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
			api.Success(w, collector.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Use(middleware.RateLimit(requestsPerMinute, rateWindow))
		r.Use(middleware.RunMutationRateLimit(requestsPerMinute, rateWindow))
		handler.RegisterRoutes(r)
	})
	return router
}

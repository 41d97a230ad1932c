package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/neomorfeo/rollcall/internal/adapter/fsm"
	otelAdapter "github.com/neomorfeo/rollcall/internal/adapter/otel"
	riverAdapter "github.com/neomorfeo/rollcall/internal/adapter/river"
	"github.com/neomorfeo/rollcall/internal/adapter/sqlite"
	"github.com/neomorfeo/rollcall/internal/adapter/telegram"
	"github.com/neomorfeo/rollcall/internal/app"
	"github.com/neomorfeo/rollcall/internal/domain"

	handler "github.com/neomorfeo/rollcall/internal/adapter/http"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// --- Observability ---
	otelCfg := otelAdapter.ConfigFromEnv()
	providers, err := otelAdapter.Setup(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	// --- Adapters (out) ---
	db, err := otelAdapter.OpenDB(cfg.dbPath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	repo, err := sqlite.NewFromDB(db)
	if err != nil {
		db.Close()
		return fmt.Errorf("database: %w", err)
	}
	defer repo.Close()

	store := otelAdapter.NewTracingStore(repo)
	transport, err := newMessenger(cfg)
	if err != nil {
		return fmt.Errorf("messenger: %w", err)
	}
	messenger := otelAdapter.NewTracingMessenger(transport)

	// --- Application ---
	dispatcher := app.NewDispatcher(store, messenger, cfg.notifyWorkers)
	svc := app.NewCriticalService(store, fsm.New(), dispatcher)
	job := app.NewJob(store, svc, app.JobConfig{
		Workers:       cfg.tenantWorkers,
		TenantTimeout: cfg.tenantTimeout,
	})

	// --- Scheduler ---
	riverClient, err := riverAdapter.Setup(ctx, repo.DB(), job, riverAdapter.Config{Schedule: cfg.schedule})
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}
	if err := riverClient.Start(ctx); err != nil {
		return fmt.Errorf("starting river: %w", err)
	}

	// --- Adapters (in) ---
	router := newRouter(otelCfg.ServiceName, cfg.jobSecret, job)
	if cfg.jobSecret == "" {
		log.Println("JOB_SECRET is empty: the HTTP trigger rejects every request")
	}

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown.
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("rollcall listening on :%s (schedule %q)", cfg.port, cfg.schedule)
		log.Printf("API docs: http://localhost:%s/docs", cfg.port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-sigCtx.Done():
	case err := <-serverErr:
		runErr = fmt.Errorf("server: %w", err)
	}
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		log.Printf("river shutdown: %v", err)
	}

	log.Println("stopped")
	return runErr
}

// newRouter builds the HTTP surface: the authenticated job trigger and the
// health endpoint.
func newRouter(serviceName, jobSecret string, runner handler.JobRunner) chi.Router {
	router := chi.NewMux()
	router.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(router)))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(handler.RequireServiceToken(jobSecret))

	api := handler.NewAPI(router)
	handler.Register(api, runner)

	return router
}

func newMessenger(cfg config) (domain.Messenger, error) {
	if cfg.botToken == "" {
		log.Println("TELEGRAM_BOT_TOKEN is empty: notifications are logged, not sent")
		return telegram.LogMessenger{}, nil
	}
	m, err := telegram.New(cfg.botAPIURL, cfg.botToken)
	if err != nil {
		return nil, err
	}
	return m, nil
}

type config struct {
	port          string
	dbPath        string
	jobSecret     string
	schedule      string
	tenantTimeout time.Duration
	tenantWorkers int
	notifyWorkers int
	botToken      string
	botAPIURL     string
}

func loadConfig() (config, error) {
	cfg := config{
		port:      envOrDefault("PORT", "8080"),
		dbPath:    envOrDefault("DATABASE_PATH", "rollcall.db"),
		jobSecret: os.Getenv("JOB_SECRET"),
		schedule:  envOrDefault("CRITICAL_SCHEDULE", riverAdapter.DefaultSchedule),
		botToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		botAPIURL: envOrDefault("TELEGRAM_API_URL", telegram.DefaultBaseURL),
	}

	var err error
	if cfg.tenantTimeout, err = envDuration("CRITICAL_TENANT_TIMEOUT", app.DefaultTenantTimeout); err != nil {
		return config{}, err
	}
	if cfg.tenantWorkers, err = envInt("CRITICAL_TENANT_WORKERS", app.DefaultTenantWorkers); err != nil {
		return config{}, err
	}
	if cfg.notifyWorkers, err = envInt("CRITICAL_NOTIFY_WORKERS", app.DefaultNotifyWorkers); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: want a positive integer, got %q", key, v)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: want a positive duration, got %q", key, v)
	}
	return d, nil
}

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

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/bizmatters/agent-builder/fluid-api/internal/auth"
	"github.com/bizmatters/agent-builder/fluid-api/internal/config"
	"github.com/bizmatters/agent-builder/fluid-api/internal/gateway"
	"github.com/bizmatters/agent-builder/fluid-api/internal/history"
	"github.com/bizmatters/agent-builder/fluid-api/internal/llm"
	"github.com/bizmatters/agent-builder/fluid-api/internal/logging"
	"github.com/bizmatters/agent-builder/fluid-api/internal/metrics"
	"github.com/bizmatters/agent-builder/fluid-api/internal/models"
)

// @title Fluid API
// @version 1.0
// @description Turns natural-language tasks into validated third-party API calls.
// @description
// @description A text generator drafts the request, the service validates and executes it,
// @description and returns the response wrapped in an envelope. Executions are kept for later lookup.

// @contact.name API Support
// @contact.email support@bizmatters.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT token.

func main() {
	if err := config.LoadDotEnv("."); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load("", config.Overrides{}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, flush, err := logging.New(logging.Options{Verbose: cfg.Verbose, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer flush()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		flush()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	shutdownTracer, err := initTracer()
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer shutdownTracer()

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := seedAdmin(ctx, store, cfg, logger); err != nil {
		return err
	}

	generator, err := llm.New(ctx, cfg.LLM(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize text generator: %w", err)
	}

	taskMetrics, err := metrics.NewTaskMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	jwtManager, err := auth.NewJWTManager(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT manager: %w", err)
	}

	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := gateway.NewHandler(gateway.Config{
		Generator:  generator,
		Options:    cfg.Options,
		Metrics:    taskMetrics,
		Store:      store,
		JWTManager: jwtManager,
		Logger:     logger,
	})
	router := gateway.NewRouter(handler, jwtManager, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // a batch runs its tasks one after another
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting Fluid API server",
			zap.String("port", cfg.Port),
			zap.String("provider", cfg.Provider),
			zap.String("model", generator.Model()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

// openStore connects to PostgreSQL when a URL is configured and falls back to memory otherwise
func openStore(ctx context.Context, databaseURL string, logger *zap.Logger) (history.Store, func(), error) {
	if databaseURL == "" {
		logger.Warn("DATABASE_URL not set, execution history is kept in memory")
		return history.NewMemoryStore(), func() {}, nil
	}

	logger.Info("connecting to PostgreSQL database")
	var pool *pgxpool.Pool
	var err error
	for i := 0; i < 10; i++ {
		pool, err = pgxpool.New(ctx, databaseURL)
		if err == nil {
			err = pool.Ping(ctx)
			if err == nil {
				break
			}
			pool.Close()
		}
		logger.Warn("waiting for database", zap.Int("attempt", i+1), zap.Int("max_attempts", 10), zap.Error(err))
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database after retries: %w", err)
	}

	store := history.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("connected to PostgreSQL database")
	return store, pool.Close, nil
}

// seedAdmin creates the configured admin account unless it already exists
func seedAdmin(ctx context.Context, store history.UserStore, cfg *config.Config, logger *zap.Logger) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	err = store.CreateUser(ctx, &models.User{
		Name:           "Administrator",
		Email:          cfg.AdminEmail,
		HashedPassword: string(hashed),
		Roles:          []string{models.RoleAdmin, models.RoleOperator},
	})
	switch {
	case errors.Is(err, history.ErrDuplicateUser):
		logger.Debug("admin account already exists", zap.String("email", cfg.AdminEmail))
	case err != nil:
		return fmt.Errorf("failed to seed admin account: %w", err)
	default:
		logger.Info("admin account created", zap.String("email", cfg.AdminEmail))
	}
	return nil
}

// initTracer initializes OpenTelemetry tracing
func initTracer() (func(), error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}

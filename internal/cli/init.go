// Package cli holds the start-up steps shared by cmd/ledger,
// cmd/ledger-worker and cmd/recurring-worker.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ledger/internal/backend"
	"ledger/internal/config"
	"ledger/internal/log"
)

// ShutdownTimeout bounds how long a process waits for in-flight work on exit.
const ShutdownTimeout = 30 * time.Second

// LoadEnvFile loads the .env file for local development.
// A missing file is ignored; a malformed one is reported.
func LoadEnvFile() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// SetupLogger installs the process logger for component at the level named
// by LOG_LEVEL.
func SetupLogger(component string) *log.Logger {
	return log.Setup(os.Getenv("LOG_LEVEL"), component)
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// Bootstrap runs the common start-up: .env, logger, config.
func Bootstrap(component string) (*log.Logger, *config.Config) {
	envErr := LoadEnvFile()
	logger := SetupLogger(component)
	if envErr != nil {
		logger.Warn("Ignoring unreadable .env file", log.FieldError, envErr)
	}
	return logger, LoadAndValidateConfig(logger)
}

// Backend holds the dependencies every process builds from configuration.
type Backend struct {
	Factory *backend.DefaultFactory
	Config  backend.Config
	Store   *backend.StoreResult
}

// OpenBackend opens the configured store, exiting the process on failure.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *Backend {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	factory := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger)
	store, err := factory.CreateStore(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to open ledger store", log.FieldError, err, "backend", bcfg.Type.String())
		os.Exit(1)
	}
	return &Backend{Factory: factory, Config: bcfg, Store: store}
}

// Close releases the store.
func (b *Backend) Close(logger *log.Logger) {
	if b.Store == nil || b.Store.Cleanup == nil {
		return
	}
	if err := b.Store.Cleanup(); err != nil {
		logger.Warn("Failed to close ledger store", log.FieldError, err)
	}
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM.
// The returned stop function releases the signal handler.
func GracefulShutdown(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
	}()
	return ctx, stop
}

// ShutdownContext returns a fresh context bounded by ShutdownTimeout.
func ShutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), ShutdownTimeout)
}

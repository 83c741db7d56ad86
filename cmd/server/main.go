package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/loppilove/waitlist-api/config"
	"github.com/loppilove/waitlist-api/domain"
	"github.com/loppilove/waitlist-api/internal/log"
)

// shutdownGrace bounds how long in-flight requests get after SIGINT/SIGTERM.
const shutdownGrace = 30 * time.Second

func main() {
	logger := log.NewLoggerWithJSONOutput()

	if err := run(logger, os.Args[1:]); err != nil {
		logger.Error("Waitlist API exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(logger *log.Logger, args []string) error {
	autoMigrate := slices.Contains(args, "--auto-migrate") || slices.Contains(args, "-m")
	logger.Info("Waitlist API starting", "auto_migrate", autoMigrate)

	appConfig, err := config.LoadApplicationConfiguration(logger, autoMigrate)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	defer appConfig.Cleanup()

	if err := domain.SetupCoreDomain(appConfig); err != nil {
		return fmt.Errorf("set up waitlist domain: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- appConfig.RouterService.RunHTTPServer()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, draining requests", "grace", shutdownGrace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := appConfig.RouterService.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}

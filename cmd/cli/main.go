package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/loppilove/waitlist-api/config"
	"github.com/loppilove/waitlist-api/domain"
	"github.com/loppilove/waitlist-api/internal/log"
	"github.com/loppilove/waitlist-api/pkg/migrations"
	"github.com/loppilove/waitlist-api/pkg/utils"
)

func main() {
	logger := log.NewLoggerWithJSONOutput()

	config.InitializeEnvFile(logger)

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "migrate":
		err = runMigrate(logger, args[1:])

	case "sync-backfill":
		err = runSyncBackfill(logger, args[1:])

	case "stats":
		err = runStats(logger, os.Stdout)

	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		logger.Error("Command failed", "command", args[0], "error", err.Error())
		os.Exit(1)
	}
}

func runMigrate(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	steps := fs.Int("steps", 0, "number of migrations to roll back (down only, default 1)")
	dirArg := ""
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		dirArg, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	direction, err := migrations.ParseDirection(dirArg)
	if err != nil {
		return err
	}

	db, err := config.NewDatabase(logger, nil)
	if err != nil {
		return fmt.Errorf("connect for migration: %w", err)
	}
	defer config.CloseDatabase(db, logger)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get SQL DB instance: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	return migrations.Run(ctx, sqlDB, direction, migrations.Config{
		Dir:    utils.GetEnvTrimmedOrDefault("MIGRATIONS_DIR", migrations.DefaultDir),
		Logger: logger,
		Steps:  *steps,
	})
}

func runSyncBackfill(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("sync-backfill", flag.ContinueOnError)
	pageSize := fs.Int("page-size", 100, "entries read per page")
	after := fs.String("after", "", "resume after this email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	appConfig, err := config.LoadToolConfiguration(logger)
	if err != nil {
		return err
	}
	defer appConfig.Cleanup()

	if appConfig.Marketing == nil {
		return fmt.Errorf("marketing sync is not configured (BREVO_API_KEY, BREVO_LIST_ID)")
	}

	waitlistFactory := domain.NewWaitlistFactory(appConfig)
	repository, err := waitlistFactory.CreateRepository()
	if err != nil {
		return err
	}
	syncer := waitlistFactory.CreateSyncer()
	appConfig.AddShutdownHook(waitlistFactory.Close)

	ctx := context.Background()
	report, err := backfill(ctx, repository, syncer, *after, *pageSize)
	logger.Info("Sync backfill finished",
		"synced", report.Synced,
		"failed", report.Failed,
		"last_email", log.RedactEmail(report.LastEmail),
	)
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d contacts failed to sync", report.Failed)
	}
	return nil
}

func runStats(logger *log.Logger, out io.Writer) error {
	appConfig, err := config.LoadToolConfiguration(logger)
	if err != nil {
		return err
	}
	defer appConfig.Cleanup()

	repository, err := domain.NewWaitlistFactory(appConfig).CreateRepository()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	count, err := repository.CountEntries(ctx)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "store=%s entries=%d\n", appConfig.Waitlist.Store, count)
	return err
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: cli <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  migrate [up|down] [--steps N]         Apply or roll back SQL migrations")
	fmt.Fprintln(w, "  sync-backfill [--after EMAIL] [--page-size N]  Push every stored entry to the marketing list")
	fmt.Fprintln(w, "  stats                                 Print the number of waitlist entries")
}

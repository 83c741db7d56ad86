package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const (
	DefaultDir   = "migrations"
	DefaultTable = "schema_migrations"
)

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ParseDirection accepts "up" or "down", case-insensitively. Empty means up.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case "", DirectionUp:
		return DirectionUp, nil
	case DirectionDown:
		return DirectionDown, nil
	default:
		return "", fmt.Errorf("migrations: unknown direction %q (allowed: up, down)", s)
	}
}

type migrator interface {
	Up() error
	Steps(n int) error
	Close() (sourceErr error, databaseErr error)
}

var driverFactory = func(db *sql.DB, cfg Config) (database.Driver, error) {
	return postgres.WithInstance(db, &postgres.Config{MigrationsTable: cfg.MigrationsTable})
}

var migratorFactory = func(sourceURL string, driver database.Driver) (migrator, error) {
	return migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
}

type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type Config struct {
	Dir             string
	MigrationsTable string
	Logger          Logger
	// Steps bounds a down migration. Zero rolls back one step.
	Steps int
}

func Up(ctx context.Context, db *sql.DB, cfg Config) error {
	return Run(ctx, db, DirectionUp, cfg)
}

func Down(ctx context.Context, db *sql.DB, cfg Config) error {
	return Run(ctx, db, DirectionDown, cfg)
}

// Run applies every pending migration (up) or rolls back cfg.Steps of them
// (down). Cancelling ctx closes the migrator, which is the only interruption
// migrate supports.
func Run(ctx context.Context, db *sql.DB, dir Direction, cfg Config) error {
	if db == nil {
		return fmt.Errorf("migrations: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if dir != DirectionUp && dir != DirectionDown {
		return fmt.Errorf("migrations: unknown direction %q", dir)
	}
	if cfg.Steps < 0 {
		return fmt.Errorf("migrations: steps must not be negative, got %d", cfg.Steps)
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		cfg.Dir = DefaultDir
	}
	if strings.TrimSpace(cfg.MigrationsTable) == "" {
		cfg.MigrationsTable = DefaultTable
	}

	sourceURL, absDir, err := fileSourceURL(cfg.Dir)
	if err != nil {
		return err
	}

	driver, err := driverFactory(db, cfg)
	if err != nil {
		return fmt.Errorf("migrations: postgres driver: %w", err)
	}

	m, err := migratorFactory(sourceURL, driver)
	if err != nil {
		return fmt.Errorf("migrations: init: %w", err)
	}

	var closeOnce sync.Once
	closeMigrator := func() {
		closeOnce.Do(func() {
			srcErr, dbErr := m.Close()
			if srcErr != nil {
				cfg.info(false, "Migrations source close error", "error", srcErr)
			}
			if dbErr != nil {
				cfg.info(false, "Migrations db close error", "error", dbErr)
			}
		})
	}
	defer closeMigrator()

	cfg.info(true, "Running SQL migrations", "dir", absDir, "table", cfg.MigrationsTable, "direction", string(dir))

	errCh := make(chan error, 1)
	go func() {
		if dir == DirectionDown {
			steps := cfg.Steps
			if steps == 0 {
				steps = 1
			}
			errCh <- m.Steps(-steps)
			return
		}
		errCh <- m.Up()
	}()

	select {
	case <-ctx.Done():
		closeMigrator()
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, migrate.ErrNoChange) {
			cfg.info(true, "No migrations to apply")
			return nil
		}
		if err != nil {
			if cfg.Logger != nil {
				cfg.Logger.Error("Migrations failed", "direction", string(dir), "error", err)
			}
			return fmt.Errorf("migrations: %s: %w", dir, err)
		}
	}

	cfg.info(true, "Migrations applied successfully", "direction", string(dir))
	return nil
}

func (cfg Config) info(ok bool, msg string, args ...any) {
	if cfg.Logger == nil {
		return
	}
	if ok {
		cfg.Logger.Info(msg, args...)
		return
	}
	cfg.Logger.Warn(msg, args...)
}

// fileSourceURL builds an escaped file:// URL with forward slashes.
func fileSourceURL(dir string) (string, string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", "", fmt.Errorf("migrations: resolve dir: %w", err)
	}

	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(absDir)}).String(), absDir, nil
}

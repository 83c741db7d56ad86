package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/loppilove/waitlist-api/internal/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const dbPingTimeout = 5 * time.Second

// DBConfig sizes the Postgres pool. SSLMode applies only when neither
// APP_DATABASE_URL nor POSTGRES_SSLMODE decides it.
type DBConfig struct {
	MaxIdleConns    int           `env:"POSTGRES_MAX_IDLE_CONNS"    envDefault:"10"`
	MaxOpenConns    int           `env:"POSTGRES_MAX_OPEN_CONNS"    envDefault:"100"`
	ConnMaxLifetime time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME" envDefault:"1m"`
	SSLMode         string
}

func DefaultDBConfig() *DBConfig {
	cfg := &DBConfig{
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Minute,
	}
	_ = env.Parse(cfg)
	cfg.SSLMode = "require"
	return cfg
}

// postgresEnv holds the discrete connection variables used when
// APP_DATABASE_URL is unset.
type postgresEnv struct {
	URL      string `env:"APP_DATABASE_URL"`
	Host     string `env:"POSTGRES_HOST"`
	Port     string `env:"POSTGRES_PORT"`
	User     string `env:"POSTGRES_USER"`
	Password string `env:"POSTGRES_PASSWORD"`
	DBName   string `env:"POSTGRES_DB_NAME"`
	SSLMode  string `env:"POSTGRES_SSLMODE"`
}

func loadPostgresEnv() (postgresEnv, error) {
	var pe postgresEnv
	if err := env.Parse(&pe); err != nil {
		return pe, fmt.Errorf("failed to read database env vars: %w", err)
	}

	for _, field := range []*string{&pe.URL, &pe.Host, &pe.Port, &pe.User, &pe.Password, &pe.DBName, &pe.SSLMode} {
		*field = sanitizeEnv(*field)
	}
	return pe, nil
}

func (pe postgresEnv) missing() []string {
	var missing []string
	for _, v := range []struct{ name, value string }{
		{"POSTGRES_HOST", pe.Host},
		{"POSTGRES_PORT", pe.Port},
		{"POSTGRES_USER", pe.User},
		{"POSTGRES_DB_NAME", pe.DBName},
	} {
		if v.value == "" {
			missing = append(missing, v.name)
		}
	}
	return missing
}

func NewDatabase(logger *log.Logger, cfg *DBConfig) (*gorm.DB, error) {
	if cfg == nil {
		cfg = DefaultDBConfig()
	}

	dsn, err := resolveDSN(logger, cfg)
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		logger.Error("Database ping failed", "error", err)
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info("Database connection established",
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns,
	)
	return gdb, nil
}

// resolveDSN prefers APP_DATABASE_URL and falls back to the POSTGRES_* variables.
func resolveDSN(logger *log.Logger, cfg *DBConfig) (string, error) {
	pe, err := loadPostgresEnv()
	if err != nil {
		return "", err
	}

	if pe.URL != "" {
		logger.Info("Using APP_DATABASE_URL for database connection")
		return pe.URL, nil
	}

	if missing := pe.missing(); len(missing) > 0 {
		logger.Error("Missing required database environment variables", "missing_vars", missing)
		return "", fmt.Errorf("missing required database env vars: %s", strings.Join(missing, ", "))
	}

	port, err := strconv.Atoi(pe.Port)
	if err != nil || port <= 0 {
		return "", fmt.Errorf("invalid POSTGRES_PORT %q", pe.Port)
	}

	ssl := pe.SSLMode
	if ssl == "" {
		ssl = cfg.SSLMode
	}

	logger.Info("Connecting to database", "host", pe.Host, "port", port, "user", pe.User, "dbname", pe.DBName, "sslmode", ssl)

	return strings.Join([]string{
		"host=" + dsnValue(pe.Host),
		"port=" + strconv.Itoa(port),
		"user=" + dsnValue(pe.User),
		"password=" + dsnValue(pe.Password),
		"dbname=" + dsnValue(pe.DBName),
		"sslmode=" + dsnValue(ssl),
	}, " "), nil
}

// dsnValue quotes a keyword/value DSN value when libpq would otherwise split it.
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// sanitizeEnv trims whitespace and one pair of matching surrounding quotes,
// as left behind by some .env editors.
func sanitizeEnv(v string) string {
	s := strings.TrimSpace(v)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func AutoMigrate(logger *log.Logger, db *gorm.DB, models ...interface{}) error {
	if db == nil {
		return fmt.Errorf("cannot migrate: no database connection")
	}

	if err := db.AutoMigrate(models...); err != nil {
		logger.Error("Database auto-migration failed", "error", err)
		return fmt.Errorf("auto-migrate failed: %w", err)
	}

	logger.Info("Database auto-migration completed", "models", len(models))
	return nil
}

func CloseDatabase(db *gorm.DB, logger *log.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("Failed to get SQL DB instance", "error", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
		return
	}
	logger.Info("Database closed")
}

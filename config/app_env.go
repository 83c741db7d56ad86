package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/loppilove/waitlist-api/internal/log"
	"github.com/loppilove/waitlist-api/pkg/utils"
)

const AppEnvKey = "APP_ENV"

// InitializeEnvFile loads .env (or DOTENV_PATH) into the process
// environment. Variables already set win over the file.
func InitializeEnvFile(logger *log.Logger) {
	if utils.GetEnvBool("SKIP_DOTENV", false) {
		logger.Info("Skipping dotenv load", "reason", "SKIP_DOTENV")
		return
	}

	path := utils.GetEnvTrimmedOrDefault("DOTENV_PATH", ".env")
	if err := godotenv.Load(path); err != nil {
		logger.Warn("Dotenv file not loaded", "path", path, "error", err.Error())
		return
	}
	logger.Info("Dotenv file loaded", "path", path)
}

func GetValueFromEnvironmentVariable(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultValue
}

func GetAppEnv() string {
	return normalizeAppEnv(os.Getenv(AppEnvKey))
}

func normalizeAppEnv(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// IsDevelopmentEnv treats an unset APP_ENV as development.
func IsDevelopmentEnv(appEnv string) bool {
	switch normalizeAppEnv(appEnv) {
	case "", "dev", "development", "local", "test", "testing":
		return true
	default:
		return false
	}
}

func ValidateAutoMigrateAllowed(appEnv string) error {
	if IsDevelopmentEnv(appEnv) {
		return nil
	}

	return fmt.Errorf("--auto-migrate refused for %s=%q; use cli migrate outside development", AppEnvKey, normalizeAppEnv(appEnv))
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server configuration, loaded from the environment.
type Config struct {
	Port        int
	DBPath      string
	Env         string
	SessionTTL  time.Duration
	TemplateDir string
}

// Load reads configuration from the environment, pulling in a .env file first
// when running in dev mode.
func Load() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	return Config{
		Port:        getEnvInt("PORT", 8080),
		DBPath:      getEnv("DB_PATH", "expenses.db"),
		Env:         getEnv("ENV", "dev"),
		SessionTTL:  time.Duration(getEnvInt("SESSION_TTL_HOURS", 24)) * time.Hour,
		TemplateDir: getEnv("TEMPLATE_DIR", "web/templates"),
	}
}

// Production reports whether the server runs in production mode, which turns
// on the Secure flag for session cookies.
func (c Config) Production() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		if _, err := fmt.Sscanf(valueStr, "%d", &value); err == nil {
			return value
		}
	}
	return defaultValue
}

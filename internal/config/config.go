package config // package config loads application configuration from environment variables

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the server's runtime configuration.  Each field
// corresponds to an environment variable.
type Config struct {
	Env               string // application environment (dev, test, prod)
	Port              string // HTTP port to listen on
	StoreDriver       string // "mysql" or "memory"
	DBUser            string
	DBPass            string // may be empty
	DBHost            string
	DBPort            string
	DBName            string
	DBMaxConns        int
	DBConnLifetime    time.Duration
	JWTSecret         string // signs player tokens
	PlayerTokenTTLMin int
	LogLevel          string
	LogFormat         string // "text" or "json"
}

// Load reads a .env file when present and then the process
// environment.  Database variables are only required for the mysql
// driver; a missing required variable is fatal.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("could not read .env")
	}
	cfg := Config{
		Env:               getenv("APP_ENV", "dev"),
		Port:              getenv("APP_PORT", "8080"),
		StoreDriver:       strings.ToLower(getenv("STORE_DRIVER", "mysql")),
		JWTSecret:         must("JWT_SECRET"),
		PlayerTokenTTLMin: envInt("PLAYER_TOKEN_TTL_MIN", 240),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogFormat:         getenv("LOG_FORMAT", "text"),
	}
	if cfg.StoreDriver == "mysql" {
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
		cfg.DBMaxConns = envInt("DB_MAX_CONNS", 25)
		cfg.DBConnLifetime = envDur("DB_CONN_LIFETIME", 30*time.Minute)
	}
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logrus.Fatalf("missing required env var: %s", key)
	}
	return v
}

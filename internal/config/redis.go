package config

// Redis backs the change feed fan-out between server instances, the
// rate limiter and the orphan room reaper queue.  If the server cannot
// be reached at startup NewRedisClient returns nil and callers degrade
// to in-process fan-out with rate limiting and reaping disabled.

import (
	"context"
	"crypto/tls"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig is the connection target shared by go-redis and asynq.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	TLS       bool
	KeyPrefix string
}

// LoadRedisConfig reads REDIS_HOST/REDIS_PORT or REDIS_ADDR (host and
// port win when both are set), REDIS_PASSWORD, REDIS_DB, REDIS_TLS and
// REDIS_PREFIX.
func LoadRedisConfig() RedisConfig {
	host := os.Getenv("REDIS_HOST")
	port := os.Getenv("REDIS_PORT")
	addr := os.Getenv("REDIS_ADDR")
	if host != "" && port != "" {
		addr = host + ":" + port
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	tlsEnv := os.Getenv("REDIS_TLS")
	return RedisConfig{
		Addr:      addr,
		Password:  os.Getenv("REDIS_PASSWORD"),
		DB:        envInt("REDIS_DB", 0),
		TLS:       strings.EqualFold(tlsEnv, "true") || tlsEnv == "1",
		KeyPrefix: getenv("REDIS_PREFIX", "lobby:"),
	}
}

// TLSConfig returns the client TLS settings or nil.
func (r RedisConfig) TLSConfig() *tls.Config {
	if !r.TLS {
		return nil
	}
	return &tls.Config{InsecureSkipVerify: true}
}

// NewRedisClient connects using LoadRedisConfig.  The returned client
// is nil if the server does not answer a ping within two seconds.
func NewRedisClient() *redis.Client {
	rc := LoadRedisConfig()
	client := redis.NewClient(&redis.Options{
		Addr:      rc.Addr,
		Password:  rc.Password,
		DB:        rc.DB,
		TLSConfig: rc.TLSConfig(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}

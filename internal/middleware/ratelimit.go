package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/room-lobby/internal/config"
)

// tokenBucket takes one token from the bucket at KEYS[1] and returns
// {allowed, remaining, wait_ms}.  Tokens are added in whole refill
// steps so the stored timestamp only moves by multiples of the step.
// ARGV: now_ms, capacity, refill_tokens, step_ms, ttl_s.
var tokenBucket = redis.NewScript(`
local now, cap, refill, step, ttl = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local b = redis.call('HMGET', KEYS[1], 't', 'ts')
local tokens = tonumber(b[1]) or cap
local ts = tonumber(b[2]) or now

local steps = math.floor(math.max(0, now - ts) / step)
if steps > 0 then
	tokens = math.min(cap, tokens + steps * refill)
	ts = ts + steps * step
end

local wait = 0
if tokens >= 1 then
	tokens = tokens - 1
else
	wait = math.max(1, step - (now - ts))
end

redis.call('HSET', KEYS[1], 't', tokens, 'ts', ts)
redis.call('EXPIRE', KEYS[1], ttl)
if wait > 0 then
	return {0, tokens, wait}
end
return {1, tokens, 0}
`)

type bucketResult struct {
	allowed   bool
	remaining int64
	retryMs   int64
}

// NewTokenBucket limits requests per key with a Redis token bucket.
// Without Redis, or when disabled, it is a pass-through.  Redis errors
// fail open.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	log := logrus.WithField("component", "ratelimit")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			res, err := takeToken(c.Request().Context(), rdb, cfg, key, time.Now())
			if err != nil {
				if cfg.Debug {
					log.WithField("key", key).WithError(err).Warn("limiter unavailable, allowing request")
				}
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if res.allowed {
				return next(c)
			}

			secs := int(math.Ceil(float64(res.retryMs) / 1000.0))
			if secs < 1 {
				secs = 1
			}
			h.Set("Retry-After", strconv.Itoa(secs))
			if cfg.Debug {
				log.WithFields(logrus.Fields{"key": key, "retry_ms": res.retryMs}).Info("request throttled")
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "rate limit exceeded",
				"code":        "too_many_requests",
				"retry_after": secs,
			})
		}
	}
}

func takeToken(ctx context.Context, rdb *redis.Client, cfg config.RateLimitConfig, key string, now time.Time) (bucketResult, error) {
	step := cfg.RefillInterval.Milliseconds()
	if step <= 0 {
		step = 1000
	}
	ttl := int64(cfg.TTL / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	vals, err := tokenBucket.Run(ctx, rdb, []string{key},
		now.UnixMilli(), cfg.Capacity, cfg.RefillTokens, step, ttl).Result()
	if err != nil {
		return bucketResult{}, err
	}
	arr, ok := vals.([]any)
	if !ok || len(arr) != 3 {
		return bucketResult{}, fmt.Errorf("unexpected limiter result %#v", vals)
	}
	return bucketResult{
		allowed:   asInt64(arr[0]) == 1,
		remaining: asInt64(arr[1]),
		retryMs:   asInt64(arr[2]),
	}, nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

// buildRateKey joins the prefix with the parts named by the key
// strategy, e.g. "ip_route" -> rl:ip:<ip>:route:<method path>.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	key := []string{cfg.Prefix}
	for _, part := range keyParts(cfg.KeyStrategy) {
		switch part {
		case "ip":
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			key = append(key, "ip", ip)
		case "player":
			key = append(key, "player", currentPlayerID(c))
		case "route":
			key = append(key, "route", c.Request().Method+" "+c.Path())
		}
	}
	return strings.Join(key, ":")
}

// keyParts splits a strategy such as "ip_player" into its known parts.
// An unknown or empty strategy keys on all of them.
func keyParts(strategy string) []string {
	var parts []string
	for _, p := range strings.Split(strings.ToLower(strategy), "_") {
		switch p {
		case "ip", "player", "route":
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return []string{"ip", "player", "route"}
	}
	return parts
}

// currentPlayerID returns the id set by PlayerAuth or "anon".
func currentPlayerID(c echo.Context) string {
	if s, ok := c.Get(ContextPlayerID).(string); ok && s != "" {
		return s
	}
	return "anon"
}

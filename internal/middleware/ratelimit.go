package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WindowCounter увеличивает счётчик ключа в текущем окне и возвращает новое значение.
type WindowCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisCounter считает запросы фиксированного окна в Redis, общем для всех экземпляров сервиса.
type RedisCounter struct {
	rdb *redis.Client
}

// NewRedisCounter создаёт счётчик поверх клиента Redis.
func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

// Incr атомарно увеличивает счётчик и ставит срок жизни на первом обращении в окне.
func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	res, err := fixedWindowScript.Run(ctx, c.rdb, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis script result type %T", res)
	}
}

// RateLimiter ограничивает число запросов участника или адреса за окно.
type RateLimiter struct {
	counter  WindowCounter
	limit    int
	window   time.Duration
	prefix   string
	failOpen bool
	logger   *zap.Logger
}

// NewRateLimiter создаёт ограничитель. При failOpen ошибки счётчика пропускают запрос.
func NewRateLimiter(counter WindowCounter, limit int, window time.Duration, logger *zap.Logger, failOpen bool) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		counter:  counter,
		limit:    limit,
		window:   window,
		prefix:   "petcare:rl",
		failOpen: failOpen,
		logger:   logger,
	}
}

// Middleware возвращает 429, если лимит окна исчерпан.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.prefix + ":" + clientKey(r)

		count, err := rl.counter.Incr(r.Context(), key, rl.window)
		if err != nil {
			rl.logger.Warn("rate limiter error", zap.Error(err))
			if rl.failOpen {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
			return
		}

		if count > int64(rl.limit) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if actor, ok := ActorFromContext(r.Context()); ok {
		return "actor:" + actor.ID
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return "ip:" + strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

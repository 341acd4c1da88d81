package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const loginRateLimitMessage = "Muitas tentativas de login, tente novamente mais tarde"

// LoginRateLimit limits login attempts per username (or IP when the body names none).
// Redis counts attempts in one-minute windows; with a nil cache an in-process token
// bucket per key is used instead.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	local := newLocalLimiter(maxPerMin)
	return func(c *fiber.Ctx) error {
		key := loginKey(c)
		if cache == nil {
			if !local.allow(key) {
				return fiber.NewError(http.StatusTooManyRequests, loginRateLimitMessage)
			}
			return c.Next()
		}

		redisKey := "rl:login:" + key
		cnt, err := cache.Incr(c.UserContext(), redisKey).Result()
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), redisKey, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, loginRateLimitMessage)
		}
		return c.Next()
	}
}

func loginKey(c *fiber.Ctx) string {
	var req struct {
		Username string `json:"username"`
	}
	_ = c.BodyParser(&req)
	if username := strings.TrimSpace(req.Username); username != "" {
		return "user:" + username
	}
	return "ip:" + c.IP()
}

// localEntry idle for a full window has refilled its bucket and can be dropped.
type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type localLimiter struct {
	mu        sync.Mutex
	perMin    int
	limiters  map[string]*localEntry
	lastSweep time.Time
	now       func() time.Time
}

func newLocalLimiter(perMin int) *localLimiter {
	return &localLimiter{perMin: perMin, limiters: make(map[string]*localEntry), now: time.Now}
}

func (l *localLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= time.Minute {
		l.lastSweep = now
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) >= time.Minute {
				delete(l.limiters, k)
			}
		}
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &localEntry{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), l.perMin)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

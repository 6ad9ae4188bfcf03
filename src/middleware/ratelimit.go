package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// RateLimiter counts requests per client in fixed windows. Mutating
// requests (order entry, matching, swaps) draw from a smaller budget
// than reads so a polling client cannot starve trading traffic.
type RateLimiter struct {
	maxReads  int
	maxWrites int
	window    time.Duration

	mu      sync.Mutex
	windows map[string]*clientWindow
}

type clientWindow struct {
	start  int64
	reads  int
	writes int
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	writes := maxRequests / 2
	if writes < 1 {
		writes = 1
	}
	return &RateLimiter{
		maxReads:  maxRequests,
		maxWrites: writes,
		window:    window,
		windows:   make(map[string]*clientWindow),
	}
}

func clientKey(c *fiber.Ctx) string {
	if ip := c.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := c.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return c.IP()
}

func mutating(method string) bool {
	switch method {
	case fiber.MethodPost, fiber.MethodPut, fiber.MethodDelete:
		return true
	}
	return false
}

// allow reports whether the request fits the client's current window,
// and how many seconds remain in that window when it does not.
func (rl *RateLimiter) allow(key string, write bool, now time.Time) (bool, int64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	windowStart := now.Unix() - now.Unix()%int64(rl.window.Seconds())

	w, ok := rl.windows[key]
	if !ok || w.start != windowStart {
		// edge case: a stale window resets both budgets
		w = &clientWindow{start: windowStart}
		rl.windows[key] = w
	}

	if write {
		if w.writes >= rl.maxWrites {
			return false, w.start + int64(rl.window.Seconds()) - now.Unix()
		}
		w.writes++
	} else {
		if w.reads >= rl.maxReads {
			return false, w.start + int64(rl.window.Seconds()) - now.Unix()
		}
		w.reads++
	}
	return true, 0
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := clientKey(c)
		write := mutating(c.Method())

		ok, retryAfter := rl.allow(key, write, time.Now())
		if !ok {
			if retryAfter < 1 {
				retryAfter = 1
			}
			log.Warn().
				Str("client", key).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Bool("write", write).
				Msg("Rate limit exceeded")
			c.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded",
			})
		}

		limit := rl.maxReads
		if write {
			limit = rl.maxWrites
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Window", rl.window.String())

		return c.Next()
	}
}

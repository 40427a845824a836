package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/atelier-hq/atelier-backend/internal/database"
	"github.com/atelier-hq/atelier-backend/internal/models"
	apperrors "github.com/atelier-hq/atelier-backend/pkg/errors"
	"github.com/atelier-hq/atelier-backend/pkg/logger"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyedRateLimiter keeps one token bucket per key (client IP or principal).
type KeyedRateLimiter struct {
	keys  map[string]*rateLimiterEntry
	mu    sync.Mutex
	r     rate.Limit
	burst int
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedRateLimiter creates a limiter allowing r events per second with
// the given burst for each key.
func NewKeyedRateLimiter(r rate.Limit, burst int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		keys:  make(map[string]*rateLimiterEntry),
		r:     r,
		burst: burst,
	}
}

// Allow spends one token for key. Idle keys are dropped on the way.
func (rl *KeyedRateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.keys[key]
	if !exists {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(rl.r, rl.burst)}
		rl.keys[key] = entry
		if len(rl.keys) > 1024 {
			rl.pruneLocked(now)
		}
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (rl *KeyedRateLimiter) pruneLocked(now time.Time) {
	for key, entry := range rl.keys {
		if now.Sub(entry.lastSeen) > 3*time.Minute {
			delete(rl.keys, key)
		}
	}
}

// IPRateLimit limits requests per client IP.
func IPRateLimit(limiter *KeyedRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.Allow(ip) {
			logger.Warn().Str("ip", ip).Str("path", c.Request.URL.Path).Msg("Rate limit exceeded")
			abort(c, apperrors.TooManyRequests("Rate limit exceeded. Please slow down."))
			return
		}
		c.Next()
	}
}

// NewGeneralLimiter allows 600 requests per minute with a burst of 50.
func NewGeneralLimiter() *KeyedRateLimiter {
	return NewKeyedRateLimiter(rate.Limit(10.0), 50)
}

// SendLimiter caps message sends per principal per minute. With shared
// limits (Redis) the cap holds across instances; otherwise local buckets are
// used. A failing Redis lets the send through. The REST routes and the live
// channel share one SendLimiter so both draw from the same budget.
type SendLimiter struct {
	shared    *database.RateLimiter
	local     *KeyedRateLimiter
	perMinute int
}

func NewSendLimiter(shared *database.RateLimiter, perMinute int) *SendLimiter {
	return &SendLimiter{
		shared:    shared,
		local:     NewKeyedRateLimiter(rate.Limit(float64(perMinute)/60.0), max(perMinute/6, 1)),
		perMinute: perMinute,
	}
}

// Allow spends one send for p. A nil limiter or a non-positive budget
// allows everything.
func (l *SendLimiter) Allow(ctx context.Context, p models.Principal) bool {
	if l == nil || l.perMinute <= 0 {
		return true
	}
	if l.shared == nil {
		return l.local.Allow(p.Key())
	}

	allowed, err := l.shared.Allow(ctx, "send:"+p.Key(), l.perMinute, time.Minute)
	if err != nil {
		logger.Warn().Err(err).Msg("shared rate limiter unavailable")
		return true
	}
	return allowed
}

// Handler enforces the limit on an authenticated route.
func (l *SendLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.Next()
			return
		}
		if !l.Allow(c.Request.Context(), p) {
			logger.Warn().Str("principal", p.Key()).Str("path", c.Request.URL.Path).Msg("Send rate limit exceeded")
			abort(c, ErrSendRateLimited)
			return
		}
		c.Next()
	}
}

// ErrSendRateLimited is returned to a principal over its send budget.
var ErrSendRateLimited = apperrors.TooManyRequests("Too many messages. Please slow down.")

// SendRateLimit is a route guard backed by its own SendLimiter.
func SendRateLimit(shared *database.RateLimiter, perMinute int) gin.HandlerFunc {
	return NewSendLimiter(shared, perMinute).Handler()
}

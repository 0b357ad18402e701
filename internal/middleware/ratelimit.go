package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/siddharthareddy0/quiz-hosting/internal/response"
)

// RateLimiter is a fixed-window per-IP request limiter. It fronts the
// unauthenticated flush endpoint, which would otherwise be a free write
// amplifier into the queue.
type RateLimiter struct {
	mu      sync.Mutex
	counts  map[string]*window
	limit   int
	period  time.Duration
	nowFunc func() time.Time
}

type window struct {
	started time.Time
	hits    int
}

// NewRateLimiter creates a RateLimiter allowing limit requests per period
// per client IP.
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	rl := &RateLimiter{
		counts:  make(map[string]*window),
		limit:   limit,
		period:  period,
		nowFunc: time.Now,
	}

	go func() {
		for range time.Tick(time.Minute) {
			rl.cleanup()
		}
	}()

	return rl
}

// Middleware returns a Gin middleware that rejects requests over the limit
// with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.nowFunc()
	w, ok := rl.counts[ip]
	if !ok || now.Sub(w.started) >= rl.period {
		rl.counts[ip] = &window{started: now, hits: 1}
		return true
	}

	if w.hits >= rl.limit {
		return false
	}
	w.hits++
	return true
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.nowFunc()
	for ip, w := range rl.counts {
		if now.Sub(w.started) > 2*rl.period {
			delete(rl.counts, ip)
		}
	}
}

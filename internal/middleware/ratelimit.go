package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter counts requests per key in fixed windows.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string]*requestInfo
	limit    int
	window   time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type requestInfo struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return NewRateLimiterWithNow(limit, window, time.Now)
}

func NewRateLimiterWithNow(limit int, window time.Duration, now func() time.Time) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string]*requestInfo),
		limit:    limit,
		window:   window,
		now:      now,
		stop:     make(chan struct{}),
	}
	if window > 0 {
		go rl.sweep()
	}
	return rl
}

// Stop ends the background sweep.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
		}
		rl.mu.Lock()
		now := rl.now()
		for key, info := range rl.requests {
			if now.After(info.resetAt) {
				delete(rl.requests, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Allow records one request for key. When the window is exhausted it
// returns false and the time left until the window resets.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	info, exists := rl.requests[key]
	if !exists || now.After(info.resetAt) {
		rl.requests[key] = &requestInfo{count: 1, resetAt: now.Add(rl.window)}
		return true, 0
	}

	if info.count >= rl.limit {
		return false, info.resetAt.Sub(now)
	}

	info.count++
	return true, 0
}

// Throttle rejects clients that exceed rl, keyed by client IP.
func Throttle(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := rl.Allow(c.ClientIP())
		if !ok {
			secs := int(wait.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"detail": "Request was throttled. Expected available in " + strconv.Itoa(secs) + " seconds.",
			})
			return
		}
		c.Next()
	}
}

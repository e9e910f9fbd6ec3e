package httpmiddleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/daedalus410/RFID-attendance-system/internal/model"
)

const cleanupInterval = 5 * time.Minute

// Limiter decides whether the request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// MemoryLimiter enforces a per-client token bucket in process memory.
// Limits are per replica; run the Redis backend when multiple replicas
// must share one budget.
type MemoryLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientLimiter

	stopCh chan struct{}
}

// NewMemoryLimiter creates a limiter allowing perMinute requests per
// client key and starts a background sweep of idle entries.
func NewMemoryLimiter(perMinute int) *MemoryLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	l := &MemoryLimiter{
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
		clients: make(map[string]*clientLimiter),
		stopCh:  make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether key has budget left. It never returns an error.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.get(key).Allow(), nil
}

// Stop terminates the cleanup goroutine.
func (l *MemoryLimiter) Stop() {
	close(l.stopCh)
}

// ClientCount returns the number of tracked client entries.
func (l *MemoryLimiter) ClientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *MemoryLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = cl
	}
	cl.lastAccess = time.Now()
	return cl.limiter
}

func (l *MemoryLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

// cleanup drops entries idle for more than twice the sweep interval.
func (l *MemoryLimiter) cleanup() {
	cutoff := time.Now().Add(-2 * cleanupInterval)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, cl := range l.clients {
		if cl.lastAccess.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

// RedisLimiter counts requests in fixed one-minute windows keyed per
// client, so the budget holds across replicas sharing one Redis.
type RedisLimiter struct {
	client    *redis.Client
	perMinute int64
}

func NewRedisLimiter(client *redis.Client, perMinute int) *RedisLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &RedisLimiter{client: client, perMinute: int64(perMinute)}
}

// Allow increments the window counter for key and reports whether it is
// still within budget. Redis failures surface as errors for the caller
// to decide on.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	window := time.Now().Unix() / 60
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	return incr.Val() <= l.perMinute, nil
}

// RateLimit enforces a per-client request budget keyed on client IP.
// A failing limiter backend lets traffic through; rejecting every
// request because Redis is down would be worse than briefly not
// limiting.
func RateLimit(limiter Limiter, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			key = "unknown"
		}
		ok, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn("rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if !ok {
			log.Warn("rate limit exceeded", "client", key)
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, model.ErrorResponse{Error: model.NewRateLimited()})
			return
		}
		c.Next()
	}
}

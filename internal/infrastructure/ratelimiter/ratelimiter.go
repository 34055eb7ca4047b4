package ratelimiter

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const defaultSourceKey = "X-RateLimit-Key"

type Limiter interface {
	Allow(sourceKey string) bool
	GetSourceKey(r *http.Request) string
	Remaining(sourceKey string) int
	GetMaxBurst() int
	Close()
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimiter keeps one token bucket per source. Buckets idle for longer
// than the cache TTL are swept.
type RateLimiter struct {
	buckets         sync.Map // string -> *bucket
	limit           rate.Limit
	maxBurst        int
	cacheTTL        time.Duration
	sourceHeaderKey string
	cleanupTick     *time.Ticker
	done            chan struct{}
	closeOnce       sync.Once
}

type Options struct {
	MaxRatePerSecond float64
	MaxBurst         int
	CacheTTL         time.Duration
	SourceHeaderKey  string
}

func New(options Options) *RateLimiter {
	if options.CacheTTL == 0 {
		options.CacheTTL = 10 * time.Second
	}

	if options.MaxBurst <= 0 {
		options.MaxBurst = int(options.MaxRatePerSecond) // Reasonable default
	}

	if options.SourceHeaderKey == "" {
		options.SourceHeaderKey = defaultSourceKey
	}

	rl := &RateLimiter{
		limit:           rate.Limit(options.MaxRatePerSecond),
		maxBurst:        options.MaxBurst,
		cacheTTL:        options.CacheTTL,
		sourceHeaderKey: options.SourceHeaderKey,
		cleanupTick:     time.NewTicker(options.CacheTTL),
		done:            make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *RateLimiter) bucketFor(sourceKey string) *bucket {
	val, ok := rl.buckets.Load(sourceKey)
	if !ok {
		val, _ = rl.buckets.LoadOrStore(sourceKey, &bucket{
			limiter: rate.NewLimiter(rl.limit, rl.maxBurst),
		})
	}
	b := val.(*bucket)
	b.lastSeen.Store(time.Now().UnixNano())
	return b
}

func (rl *RateLimiter) Allow(sourceKey string) bool {
	return rl.bucketFor(sourceKey).limiter.Allow()
}

func (rl *RateLimiter) Remaining(sourceKey string) int {
	tokens := rl.bucketFor(sourceKey).limiter.Tokens()
	if tokens < 0 {
		return 0
	}
	return int(tokens)
}

func (rl *RateLimiter) GetMaxBurst() int {
	return rl.maxBurst
}

func (rl *RateLimiter) GetSourceKey(r *http.Request) string {
	if key := r.Header.Get(rl.sourceHeaderKey); key != "" {
		return key
	}

	// Fall back to IP address
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (rl *RateLimiter) startCleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.cleanup()
		case <-rl.done:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.cacheTTL).UnixNano()
	rl.buckets.Range(func(key, value any) bool {
		if value.(*bucket).lastSeen.Load() < cutoff {
			rl.buckets.Delete(key)
		}
		return true
	})
}

func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.done)
		rl.cleanupTick.Stop()
	})
}

package amp

import (
	"sync"
	"sync/atomic"
	"time"
)

// Limiter admits or rejects a request without blocking.
type Limiter interface {
	Allow() bool
}

// RateLimitConfig describes a token bucket: MaxTokens requests in a burst,
// one token back every RefillRate.
type RateLimitConfig struct {
	MaxTokens  int           `yaml:"max_tokens"`
	RefillRate time.Duration `yaml:"refill_rate"`
}

// RateLimiter is a lock-free token bucket.
type RateLimiter struct {
	maxTokens  int64
	tokens     int64
	refillRate time.Duration
	lastRefill int64
	now        func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	return newRateLimiter(maxTokens, refillRate, time.Now)
}

func newRateLimiter(maxTokens int, refillRate time.Duration, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		maxTokens:  int64(maxTokens),
		tokens:     int64(maxTokens),
		refillRate: refillRate,
		lastRefill: now().UnixNano(),
		now:        now,
	}
}

// Allow takes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	rl.refillTokens()
	return rl.consumeToken()
}

// Tokens returns the tokens currently available.
func (rl *RateLimiter) Tokens() int64 {
	rl.refillTokens()
	return atomic.LoadInt64(&rl.tokens)
}

func (rl *RateLimiter) refillTokens() {
	if rl.refillRate <= 0 {
		return
	}
	now := rl.now().UnixNano()

	for {
		lastRefill := atomic.LoadInt64(&rl.lastRefill)

		tokensToAdd := (now - lastRefill) / int64(rl.refillRate)
		if tokensToAdd <= 0 {
			return
		}
		newLastRefill := lastRefill + tokensToAdd*int64(rl.refillRate)

		// lastRefill is the claim; whoever moves it owns this refill
		if !atomic.CompareAndSwapInt64(&rl.lastRefill, lastRefill, newLastRefill) {
			continue
		}
		rl.addTokens(tokensToAdd)
		return
	}
}

// addTokens credits n tokens up to maxTokens without losing concurrent
// consumes.
func (rl *RateLimiter) addTokens(n int64) {
	for {
		currentTokens := atomic.LoadInt64(&rl.tokens)
		newTokens := min(currentTokens+n, rl.maxTokens)
		if atomic.CompareAndSwapInt64(&rl.tokens, currentTokens, newTokens) {
			return
		}
	}
}

func (rl *RateLimiter) consumeToken() bool {
	for {
		currentTokens := atomic.LoadInt64(&rl.tokens)
		if currentTokens <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&rl.tokens, currentTokens, currentTokens-1) {
			return true
		}
	}
}

// RateLimiterRegistry holds one limiter per operation and a fallback used
// for operations without their own.
type RateLimiterRegistry struct {
	mutex    sync.RWMutex
	limiters map[string]Limiter
	fallback Limiter
	metrics  *MetricsCollector
}

// NewRateLimiterRegistry creates a registry. fallback may be nil.
func NewRateLimiterRegistry(fallback Limiter, metrics *MetricsCollector) *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limiters: make(map[string]Limiter),
		fallback: fallback,
		metrics:  metrics,
	}
}

// RegisterLimiter sets the limiter for operation.
func (r *RateLimiterRegistry) RegisterLimiter(operation string, limiter Limiter) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.limiters[operation] = limiter
}

// GetLimiter returns operation's limiter, the fallback, or nil.
func (r *RateLimiterRegistry) GetLimiter(operation string) Limiter {
	if r == nil {
		return nil
	}

	r.mutex.RLock()
	limiter, exists := r.limiters[operation]
	r.mutex.RUnlock()

	if exists {
		return limiter
	}
	return r.fallback
}

// Allow reports whether a request for operation may be sent now. Operations
// without any limiter are always allowed.
func (r *RateLimiterRegistry) Allow(operation string) bool {
	limiter := r.GetLimiter(operation)
	if limiter == nil {
		return true
	}

	allowed := limiter.Allow()
	if rl, ok := limiter.(*RateLimiter); ok {
		r.metrics.RecordRateLimiterTokens(operation, rl.Tokens())
	}
	return allowed
}

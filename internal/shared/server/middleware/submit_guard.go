package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"pca-viewer/internal/shared/metrics"
	"pca-viewer/internal/shared/server/respond"
)

// SubmitRule bounds how often one client may submit: Rate tokens per second
// refill a bucket holding at most Burst.
type SubmitRule struct {
	Rate  float64
	Burst int
}

// Buckets idle this long are refilled anyway and get dropped.
const bucketSweepEvery = time.Minute

// SubmitGuard admits at most one in-flight submission per client and, when
// the rule is non-zero, throttles how often a client address may submit. A
// second submission while the first is running gets 409.
type SubmitGuard struct {
	rule SubmitRule
	now  func() time.Time

	mu        sync.Mutex
	inFlight  map[string]struct{}
	buckets   map[string]*tokenBucket
	lastSweep time.Time
}

type tokenBucket struct {
	tokens float64
	last   time.Time
}

// NewSubmitGuard builds a guard. A nil now uses time.Now.
func NewSubmitGuard(rule SubmitRule, now func() time.Time) *SubmitGuard {
	if now == nil {
		now = time.Now
	}
	return &SubmitGuard{
		rule:     rule,
		now:      now,
		inFlight: make(map[string]struct{}),
		buckets:  make(map[string]*tokenBucket),
	}
}

// Handler is the gin middleware for submission routes.
func (g *SubmitGuard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := clientKey(c)

		if allowed, retryAfter := g.allow(addressKey(c)); !allowed {
			c.Header("Retry-After", strconv.Itoa(retrySeconds(retryAfter)))
			respond.Error(c, http.StatusTooManyRequests, "rate_limited", "Too many submissions, try again shortly", gin.H{
				"retryAfterMs": int(retryAfter / time.Millisecond),
			})
			return
		}
		if !g.acquire(key) {
			metrics.IncSubmissionOverlap()
			respond.Error(c, http.StatusConflict, "submission_in_flight", "A submission is already in progress", nil)
			return
		}
		defer g.release(key)

		c.Next()
	}
}

// InFlight reports how many submissions are running.
func (g *SubmitGuard) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFlight)
}

func (g *SubmitGuard) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[key]; busy {
		return false
	}
	g.inFlight[key] = struct{}{}
	return true
}

func (g *SubmitGuard) release(key string) {
	g.mu.Lock()
	delete(g.inFlight, key)
	g.mu.Unlock()
}

func (g *SubmitGuard) allow(key string) (bool, time.Duration) {
	if g.rule.Rate <= 0 || g.rule.Burst <= 0 {
		return true, 0
	}
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweepLocked(now)

	b, ok := g.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: float64(g.rule.Burst), last: now}
		g.buckets[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = math.Min(float64(g.rule.Burst), b.tokens+elapsed*g.rule.Rate)
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := (1 - b.tokens) / g.rule.Rate
	return false, time.Duration(math.Ceil(wait*1000.0)) * time.Millisecond
}

// Buckets returns how many rate buckets are tracked.
func (g *SubmitGuard) Buckets() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.buckets)
}

// sweepLocked drops buckets that have refilled to Burst since their last use.
func (g *SubmitGuard) sweepLocked(now time.Time) {
	if now.Sub(g.lastSweep) < bucketSweepEvery {
		return
	}
	g.lastSweep = now
	full := time.Duration(float64(g.rule.Burst) / g.rule.Rate * float64(time.Second))
	for key, b := range g.buckets {
		if now.Sub(b.last) >= full {
			delete(g.buckets, key)
		}
	}
}

// clientKey scopes the in-flight slot. A session id only counts when the
// client presented it; one minted for this request says nothing about who
// is calling.
func clientKey(c *gin.Context) string {
	if id := SessionIDFromContext(c); id != "" && !SessionIsNew(c) {
		return "session:" + id
	}
	return addressKey(c)
}

// addressKey scopes the rate bucket, which follows the caller's address
// whatever cookie it sends.
func addressKey(c *gin.Context) string {
	return "ip:" + strings.TrimSpace(c.ClientIP())
}

func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s <= 0 {
		return 1
	}
	return s
}

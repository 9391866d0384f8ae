package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// Anonymous is the bucket shared by requests that carry no credential.
const Anonymous = ""

// Limiter spends a per-minute request budget on outbound GitHub calls. Each
// credential gets its own budget, matching how GitHub meters tokens; calls
// without one share a single bucket. It only delays requests; upstream
// rate-limit responses are not retried.
type Limiter struct {
	perMin  int
	mu      sync.Mutex
	buckets *lru.Cache[string, *rate.Limiter]
}

// New keeps budgets for up to size credentials, forgetting the least
// recently used beyond that.
func New(reqPerMin, size int) (*Limiter, error) {
	if size <= 0 {
		size = 1000
	}
	buckets, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, fmt.Errorf("rate limiter buckets: %w", err)
	}
	return &Limiter{perMin: reqPerMin, buckets: buckets}, nil
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets.Get(key); ok {
		return b
	}
	b := rate.NewLimiter(rate.Limit(float64(l.perMin)/60.0), l.perMin)
	l.buckets.Add(key, b)
	return b
}

// Wait blocks until the budget for key allows one more request.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.bucket(key).Wait(ctx)
}

// Transport wraps base so every request waits for the budget of the
// credential in its Authorization header first. Keys are hashed so raw
// tokens are never held.
func (l *Limiter) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{limiter: l, base: base}
}

func credentialKey(req *http.Request) string {
	auth := req.Header.Get("Authorization")
	if auth == "" {
		return Anonymous
	}
	sum := sha256.Sum256([]byte(auth))
	return hex.EncodeToString(sum[:])
}

type transport struct {
	limiter *Limiter
	base    http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context(), credentialKey(req)); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

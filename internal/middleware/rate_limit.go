package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/dua-platform/credits-backend/internal/api/httpx"
)

// limiter is a process-wide token bucket: capacity rps, refilled at rps
// tokens per second. The ledger itself is safe under any request rate; this
// only caps how fast one deployment hammers the store.
type limiter struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
	rps    float64
}

func (l *limiter) allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.tokens += now.Sub(l.last).Seconds() * l.rps
	if l.tokens > l.rps {
		l.tokens = l.rps
	}
	l.last = now

	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

// RateLimit rejects requests above rps with 429. rps <= 0 disables limiting.
func RateLimit(rps int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := &limiter{tokens: float64(rps), last: time.Now(), rps: float64(rps)}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow() {
				httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

// requestID tags each request with a random hex id, echoes it in the
// X-Request-Id header and logs the request line.
func requestID(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buf := make([]byte, 4)
			rand.Read(buf)
			id := hex.EncodeToString(buf)

			w.Header().Set("X-Request-Id", id)
			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			logger.Info("request",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func maxBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

type bucket struct {
	count   int
	resetAt time.Time
}

// rateLimiter enforces fixed one-minute windows per client IP and named
// endpoint group. Buckets live in a sync.Map and are reset lazily.
type rateLimiter struct {
	buckets sync.Map
	mu      sync.Mutex
	lastGC  time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{lastGC: time.Now()}
}

func (rl *rateLimiter) limit(group string, perMin int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if perMin > 0 && !rl.allow(clientIP(r), group, perMin) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *rateLimiter) allow(ip, group string, perMin int) bool {
	rl.maybeGC()

	key := ip + ":" + group
	now := time.Now()
	val, loaded := rl.buckets.LoadOrStore(key, &bucket{count: 1, resetAt: now.Add(time.Minute)})
	if !loaded {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	b := val.(*bucket)
	if now.After(b.resetAt) {
		b.count = 1
		b.resetAt = now.Add(time.Minute)
		return true
	}
	b.count++
	return b.count <= perMin
}

// maybeGC drops expired buckets at most once per five minutes.
func (rl *rateLimiter) maybeGC() {
	rl.mu.Lock()
	if time.Since(rl.lastGC) < 5*time.Minute {
		rl.mu.Unlock()
		return
	}
	rl.lastGC = time.Now()
	rl.mu.Unlock()

	now := time.Now()
	rl.buckets.Range(func(key, value any) bool {
		if now.After(value.(*bucket).resetAt) {
			rl.buckets.Delete(key)
		}
		return true
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

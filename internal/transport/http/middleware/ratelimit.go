package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/facevote-api/internal/domain"
	"github.com/facevote-api/internal/pkg/identity"
	"golang.org/x/time/rate"
)

// maxPeekBytes bounds how much of a request body LimitByIdentity reads to
// find the identity field.
const maxPeekBytes = 64 << 10

type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a keyed token-bucket rate limiter with automatic stale-entry
// cleanup. It fronts OTP issuance, OTP verification and login, keyed by
// client IP (Limit) or by the identity being worked on (LimitByIdentity).
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	r        rate.Limit
	burst    int
	trusted  []*net.IPNet
}

// NewRateLimiter creates a limiter: r requests/second, burst up to burst
// requests per key. Forwarding headers are honoured only when the connection
// comes from one of trusted. Stale entries are swept until ctx is done.
func NewRateLimiter(ctx context.Context, r rate.Limit, burst int, trusted []*net.IPNet) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*keyLimiter),
		r:        r,
		burst:    burst,
		trusted:  trusted,
	}
	go rl.cleanup(ctx)
	return rl
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if v, ok := rl.limiters[key]; ok {
		v.lastSeen = time.Now()
		return v.limiter
	}
	l := rate.NewLimiter(rl.r, rl.burst)
	rl.limiters[key] = &keyLimiter{limiter: l, lastSeen: time.Now()}
	return l
}

// cleanup removes stale entries every 5 minutes.
func (rl *RateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		rl.mu.Lock()
		for key, v := range rl.limiters {
			if time.Since(v.lastSeen) > 10*time.Minute {
				delete(rl.limiters, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Limit is the middleware handler that enforces the rate limit per client IP.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.get("ip:" + clientIP(r, rl.trusted)).Allow() {
			writeJSONError(w, http.StatusTooManyRequests, domain.CodeRateLimited, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LimitByIdentity enforces the rate limit per identity named in a JSON body,
// so one account cannot be worked from many addresses. Bodies without a
// valid identity pass through to the handler's own validation.
func (rl *RateLimiter) LimitByIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		head, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, domain.CodeBadRequest, "invalid request body")
			return
		}
		r.Body = readCloser{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}

		var body struct {
			Identity string `json:"identity"`
		}
		if json.Unmarshal(head, &body) == nil {
			if id, err := identity.Normalize(body.Identity); err == nil && !rl.get("identity:"+id).Allow() {
				writeJSONError(w, http.StatusTooManyRequests, domain.CodeRateLimited, "too many requests")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type readCloser struct {
	io.Reader
	io.Closer
}

// clientIP returns the connection's remote address. When that address is a
// trusted proxy, the nearest untrusted X-Forwarded-For hop (or X-Real-Ip) is
// used instead.
func clientIP(r *http.Request, trusted []*net.IPNet) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !isTrusted(host, trusted) {
		return host
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop != "" && !isTrusted(hop, trusted) {
				return hop
			}
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-Ip")); xr != "" {
		return xr
	}
	return host
}

func isTrusted(addr string, trusted []*net.IPNet) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/acectf/registration/internal/auth"
)

// RateLimiter provides rate limiting using a sliding window algorithm.
// Windows are per-process; replicas each enforce their own budget.
type RateLimiter struct {
	requests      int
	window        time.Duration
	clients       map[string]*clientWindow
	mu            sync.RWMutex
	cleanupTicker *time.Ticker
}

type clientWindow struct {
	timestamps []time.Time
	mu         sync.Mutex
}

func NewRateLimiter(requests int, windowSeconds int) *RateLimiter {
	if requests <= 0 {
		requests = 100
	}
	if windowSeconds <= 0 {
		windowSeconds = 60
	}

	rl := &RateLimiter{
		requests: requests,
		window:   time.Duration(windowSeconds) * time.Second,
		clients:  make(map[string]*clientWindow),
	}

	rl.cleanupTicker = time.NewTicker(time.Minute)
	go rl.cleanup()

	return rl
}

func (rl *RateLimiter) cleanup() {
	for range rl.cleanupTicker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, client := range rl.clients {
			client.mu.Lock()
			if len(client.timestamps) == 0 ||
				now.Sub(client.timestamps[len(client.timestamps)-1]) > rl.window*2 {
				delete(rl.clients, key)
			}
			client.mu.Unlock()
		}
		rl.mu.Unlock()
	}
}

// Allow records an attempt under the given key and reports whether it fits
// in the current window.
func (rl *RateLimiter) Allow(key string) (bool, int, time.Time) {
	rl.mu.RLock()
	client, exists := rl.clients[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		if client, exists = rl.clients[key]; !exists {
			client = &clientWindow{
				timestamps: make([]time.Time, 0, rl.requests),
			}
			rl.clients[key] = client
		}
		rl.mu.Unlock()
	}

	client.mu.Lock()
	defer client.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	valid := client.timestamps[:0]
	for _, ts := range client.timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	client.timestamps = valid

	remaining := rl.requests - len(client.timestamps)
	if remaining < 0 {
		remaining = 0
	}

	if len(client.timestamps) >= rl.requests {
		resetTime := client.timestamps[0].Add(rl.window)
		return false, remaining, resetTime
	}

	client.timestamps = append(client.timestamps, now)
	return true, remaining - 1, now.Add(rl.window)
}

// BypassConfig exempts internal service traffic from rate limits. The whole
// bypass is inert unless TrustedEnv is set, so a spoofed header from the
// public internet cannot trigger it.
type BypassConfig struct {
	TrustedEnv bool
}

func (b BypassConfig) skip(r *http.Request) bool {
	if !b.TrustedEnv {
		return false
	}
	if r.Header.Get("X-Internal-Service") != "" {
		return true
	}
	ip := net.ParseIP(clientIP(r))
	return ip != nil && (ip.IsPrivate() || ip.IsLoopback())
}

// RateLimit limits by client IP, for general API traffic.
func RateLimit(requests, windowSeconds int, bypass BypassConfig) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(requests, windowSeconds)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass.skip(r) {
				next.ServeHTTP(w, r)
				return
			}
			limit(limiter, clientIP(r), w, r, next)
		})
	}
}

// AuthRateLimit limits authentication endpoints by the normalized email in
// the request body, falling back to the client IP when no email is present.
// Keying on email keeps an attacker rotating IPs from hammering one account.
func AuthRateLimit(requests, windowSeconds int, bypass BypassConfig) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(requests, windowSeconds)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass.skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			key := clientIP(r)
			if email := peekEmail(r); email != "" {
				key = "email:" + email
			}
			limit(limiter, key, w, r, next)
		})
	}
}

func limit(limiter *RateLimiter, key string, w http.ResponseWriter, r *http.Request, next http.Handler) {
	allowed, remaining, resetTime := limiter.Allow(key)

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.requests))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

	if !allowed {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(resetTime).Seconds())+1, 10))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"success":false,"message":"Trop de tentatives. Réessayez plus tard."}`))
		return
	}

	next.ServeHTTP(w, r)
}

// peekLimit caps how much body peekEmail is willing to buffer. No legitimate
// auth request comes anywhere near it.
const peekLimit = 1 << 16

// peekEmail reads the body to extract the email field, then restores it for
// the handler. Bodies over peekLimit are handed back untouched with no email
// extracted, so the caller falls through to the IP key instead of the handler
// seeing a truncated body.
func peekEmail(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, peekLimit+1))
	if len(body) > peekLimit {
		r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
		return ""
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var probe struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return auth.NormalizeEmail(probe.Email)
}

// clientIP extracts the client IP from the request.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

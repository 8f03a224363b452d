// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/emora-dev/linkbeacon/internal/logging"
)

type contextKey string

// ClaimsContextKey is the request context key holding the validated Claims.
const ClaimsContextKey contextKey = "claims"

// Middleware provides authentication middleware for the HTTP API.
type Middleware struct {
	jwtManager *JWTManager
}

// NewMiddleware creates authentication middleware backed by the given
// token manager.
func NewMiddleware(jwtManager *JWTManager) *Middleware {
	return &Middleware{jwtManager: jwtManager}
}

// Authenticate enforces a valid operator token on the wrapped handler.
// The token is taken from the Authorization header or, for browser
// clients, the "token" cookie.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := m.extractToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			logging.Warn().Err(err).Str("path", r.URL.Path).Msg("Token validation failed")
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole enforces a specific role on top of Authenticate. Admins
// pass every role check.
func (m *Middleware) RequireRole(role string, next http.Handler) http.Handler {
	return m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			http.Error(w, "Forbidden: invalid claims", http.StatusForbidden)
			return
		}
		if claims.Role != role && claims.Role != "admin" {
			http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// ClaimsFromContext returns the authenticated claims stored by
// Authenticate, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok
}

func (m *Middleware) extractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		cookie, err := r.Cookie("token")
		if err != nil {
			return "", errMissingToken
		}
		return cookie.Value, nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errBadAuthHeader
	}
	return parts[1], nil
}

var (
	errMissingToken  = &authError{"unauthorized: missing token"}
	errBadAuthHeader = &authError{"unauthorized: invalid authorization header"}
)

type authError struct{ msg string }

func (e *authError) Error() string { return e.msg }

// CaptureLimiter throttles the unauthenticated capture fallback per
// client IP, with stale entries evicted in the background.
type CaptureLimiter struct {
	limiters map[string]*captureLimiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	stop     chan struct{}
	stopOnce sync.Once
}

type captureLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewCaptureLimiter creates a per-IP limiter allowing perSec requests
// per second with the given burst.
func NewCaptureLimiter(perSec float64, burst int) *CaptureLimiter {
	cl := &CaptureLimiter{
		limiters: make(map[string]*captureLimiterEntry),
		rate:     rate.Limit(perSec),
		burst:    burst,
		stop:     make(chan struct{}),
	}
	go cl.startCleanup(5 * time.Minute)
	return cl
}

// Allow reports whether a capture from the given IP may proceed.
func (cl *CaptureLimiter) Allow(ip string) bool {
	cl.mu.Lock()
	entry, exists := cl.limiters[ip]
	if !exists {
		entry = &captureLimiterEntry{
			limiter:    rate.NewLimiter(cl.rate, cl.burst),
			lastAccess: time.Now(),
		}
		cl.limiters[ip] = entry
	} else {
		entry.lastAccess = time.Now()
	}
	limiter := entry.limiter
	cl.mu.Unlock()

	return limiter.Allow()
}

// Stop halts the background cleanup goroutine.
func (cl *CaptureLimiter) Stop() {
	cl.stopOnce.Do(func() { close(cl.stop) })
}

func (cl *CaptureLimiter) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cl.cleanup()
		case <-cl.stop:
			return
		}
	}
}

func (cl *CaptureLimiter) cleanup() {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	threshold := time.Now().Add(-1 * time.Hour)
	for ip, entry := range cl.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(cl.limiters, ip)
		}
	}
}

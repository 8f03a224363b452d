// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler(t *testing.T, hit *bool) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hit = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticateMissingToken(t *testing.T) {
	m := NewMiddleware(newTestJWTManager(t, time.Hour))

	var hit bool
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/links", nil)
	m.Authenticate(okHandler(t, &hit)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if hit {
		t.Error("handler reached without a token")
	}
}

func TestAuthenticateBearerHeader(t *testing.T) {
	mgr := newTestJWTManager(t, time.Hour)
	m := NewMiddleware(mgr)

	token, err := mgr.GenerateToken("user-1", "op@example.org", "user")
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Error("claims missing from context")
		} else if claims.UserID != "user-1" {
			t.Errorf("claims.UserID = %s", claims.UserID)
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/links", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuthenticateTokenCookie(t *testing.T) {
	mgr := newTestJWTManager(t, time.Hour)
	m := NewMiddleware(mgr)

	token, err := mgr.GenerateToken("user-1", "op@example.org", "user")
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	var hit bool
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/links", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	m.Authenticate(okHandler(t, &hit)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !hit {
		t.Errorf("status = %d, hit = %v", rec.Code, hit)
	}
}

func TestAuthenticateMalformedHeader(t *testing.T) {
	m := NewMiddleware(newTestJWTManager(t, time.Hour))

	var hit bool
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/links", nil)
	req.Header.Set("Authorization", "Token abc")
	m.Authenticate(okHandler(t, &hit)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized || hit {
		t.Errorf("status = %d, hit = %v", rec.Code, hit)
	}
}

func TestRequireRoleBlocksUser(t *testing.T) {
	mgr := newTestJWTManager(t, time.Hour)
	m := NewMiddleware(mgr)

	token, err := mgr.GenerateToken("user-1", "op@example.org", "user")
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	var hit bool
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/links", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	m.RequireRole("admin", okHandler(t, &hit)).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden || hit {
		t.Errorf("status = %d, hit = %v", rec.Code, hit)
	}
}

func TestRequireRoleAdminPassesAnyRole(t *testing.T) {
	mgr := newTestJWTManager(t, time.Hour)
	m := NewMiddleware(mgr)

	token, err := mgr.GenerateToken("admin-1", "admin@example.org", "admin")
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	var hit bool
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/links", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	m.RequireRole("user", okHandler(t, &hit)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !hit {
		t.Errorf("status = %d, hit = %v", rec.Code, hit)
	}
}

func TestCaptureLimiterThrottlesPerIP(t *testing.T) {
	cl := NewCaptureLimiter(1, 2)
	defer cl.Stop()

	if !cl.Allow("10.0.0.1") || !cl.Allow("10.0.0.1") {
		t.Fatal("burst requests rejected")
	}
	if cl.Allow("10.0.0.1") {
		t.Error("request beyond burst allowed")
	}
	if !cl.Allow("10.0.0.2") {
		t.Error("different IP throttled by another IP's bucket")
	}
}

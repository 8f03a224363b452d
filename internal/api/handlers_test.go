// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/emora-dev/linkbeacon/internal/auth"
	"github.com/emora-dev/linkbeacon/internal/cache"
	"github.com/emora-dev/linkbeacon/internal/config"
	"github.com/emora-dev/linkbeacon/internal/database"
	"github.com/emora-dev/linkbeacon/internal/logging"
	"github.com/emora-dev/linkbeacon/internal/models"
	"github.com/emora-dev/linkbeacon/internal/tracker"
	"github.com/emora-dev/linkbeacon/internal/websocket"
)

func init() {
	logging.SetLogger(zerolog.New(io.Discard))
}

type testEnv struct {
	cfg     *config.Config
	db      *database.DB
	jwt     *auth.JWTManager
	hub     *websocket.Hub
	handler http.Handler
}

func newTestEnv(t *testing.T, overrides ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:        "127.0.0.1",
			Port:        8080,
			Timeout:     5 * time.Second,
			Environment: "development",
		},
		Database: config.DatabaseConfig{Path: ":memory:"},
		Security: config.SecurityConfig{
			JWTSecret:         "test-secret-test-secret-test-secret",
			SessionTimeout:    time.Hour,
			RateLimitDisabled: true,
			CaptureRatePerSec: 1000,
			CaptureRateBurst:  1000,
			CORSOrigins:       []string{"*"},
		},
		Cache:   config.CacheConfig{InMemory: true, TTL: time.Minute},
		Capture: config.CaptureConfig{Topic: "capture.samples", BroadcastBuffer: 16},
	}
	for _, override := range overrides {
		override(cfg)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	linkCache, err := cache.New(&cfg.Cache)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { linkCache.Close() })

	pubsub := tracker.NewPubSub(&cfg.Capture)
	t.Cleanup(func() { pubsub.Close() })
	recorder := tracker.NewRecorder(db, pubsub, cfg.Capture.Topic)

	hub := websocket.NewHub(cfg.Capture.BroadcastBuffer)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.RunWithContext(ctx) }()

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatalf("failed to create jwt manager: %v", err)
	}

	limiter := auth.NewCaptureLimiter(cfg.Security.CaptureRatePerSec, cfg.Security.CaptureRateBurst)
	t.Cleanup(limiter.Stop)

	router := NewRouter(cfg, db, linkCache, recorder, hub, jwtManager, limiter)
	return &testEnv{cfg: cfg, db: db, jwt: jwtManager, hub: hub, handler: router.Setup()}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.10:4567"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedUser(t *testing.T, email, role string) (*models.User, string) {
	t.Helper()

	user, err := e.db.EnsureUser(context.Background(), email, "not-a-real-hash", role)
	if err != nil {
		t.Fatalf("failed to seed user %s: %v", email, err)
	}
	token, err := e.jwt.GenerateToken(user.ID.String(), email, role)
	if err != nil {
		t.Fatalf("failed to issue token for %s: %v", email, err)
	}
	return user, token
}

func (e *testEnv) createLink(t *testing.T, token, id string) models.TrackingLink {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/links", token, models.CreateLinkRequest{
		ID:             id,
		DestinationURL: "https://example.org/landing",
		Title:          "Package delivery",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create link returned %d: %s", rec.Code, rec.Body.String())
	}

	var link models.TrackingLink
	decodeData(t, rec, &link)
	return link
}

func (e *testEnv) capture(t *testing.T, linkID string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodPost, "/api/v1/track", "", models.CaptureRequest{
		LinkID: linkID,
		Lat:    48.8584,
		Lng:    2.2945,
	})
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) *models.APIResponse {
	t.Helper()

	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode envelope: %v (%s)", err, rec.Body.String())
	}
	return &resp
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, target interface{}) {
	t.Helper()

	resp := decodeEnvelope(t, rec)
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("failed to re-marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		t.Fatalf("failed to decode data payload: %v", err)
	}
}

func TestLoginIssuesTokenAndCookie(t *testing.T) {
	env := newTestEnv(t)

	hash, err := auth.HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if _, err := env.db.EnsureUser(context.Background(), "op@example.org", hash, models.RoleUser); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", models.LoginRequest{
		Email:    "op@example.org",
		Password: "hunter2hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}

	var login models.LoginResponse
	decodeData(t, rec, &login)
	if login.Token == "" {
		t.Error("no token in login response")
	}
	if login.Role != models.RoleUser {
		t.Errorf("role = %q, want user", login.Role)
	}

	claims, err := env.jwt.ValidateToken(login.Token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.Email != "op@example.org" {
		t.Errorf("claims email = %q", claims.Email)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "token" {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != login.Token || !cookie.HttpOnly {
		t.Errorf("token cookie missing or wrong: %+v", cookie)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)

	hash, err := auth.HashPassword("correct-password")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if _, err := env.db.EnsureUser(context.Background(), "op@example.org", hash, models.RoleUser); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	for name, req := range map[string]models.LoginRequest{
		"wrong password": {Email: "op@example.org", Password: "wrong"},
		"unknown email":  {Email: "ghost@example.org", Password: "correct-password"},
	} {
		rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", name, rec.Code)
		}
		resp := decodeEnvelope(t, rec)
		if resp.Error == nil || resp.Error.Code != "AUTHENTICATION_ERROR" {
			t.Errorf("%s: error = %+v", name, resp.Error)
		}
	}
}

func TestPublicUnknownLinkServesPlaceholder(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/links/no-such-link", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var pub models.PublicLink
	decodeData(t, rec, &pub)
	if pub.ID != "no-such-link" {
		t.Errorf("placeholder id = %q", pub.ID)
	}
	if pub.Title == nil || *pub.Title == "" {
		t.Error("placeholder must carry display copy")
	}
	if pub.DestinationURL != "" {
		t.Errorf("placeholder must not redirect, got %q", pub.DestinationURL)
	}
}

func TestPublicLinkHidesOwner(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "a@example.org", models.RoleUser)
	link := env.createLink(t, token, "promo1")

	rec := env.do(t, http.MethodGet, "/api/v1/links/"+link.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "owner") {
		t.Errorf("public payload leaked owner fields: %s", rec.Body.String())
	}

	// Second read comes from the cache and must look identical.
	again := env.do(t, http.MethodGet, "/api/v1/links/"+link.ID, "", nil)
	if again.Code != http.StatusOK {
		t.Fatalf("cached read status = %d", again.Code)
	}

	var pub models.PublicLink
	decodeData(t, again, &pub)
	if pub.DestinationURL != "https://example.org/landing" {
		t.Errorf("cached destination = %q", pub.DestinationURL)
	}
}

func TestFallbackCaptureAlwaysInserts(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "a@example.org", models.RoleUser)
	link := env.createLink(t, token, "bait01")

	for i := 0; i < 3; i++ {
		rec := env.capture(t, link.ID)
		if rec.Code != http.StatusCreated {
			t.Fatalf("capture %d returned %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	samples, err := env.db.ListAllSamples(context.Background())
	if err != nil {
		t.Fatalf("failed to list samples: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("identical fallback captures must each insert: got %d rows, want 3", len(samples))
	}
	for _, sample := range samples {
		if sample.SessionID != nil {
			t.Errorf("fallback sample carries a session id: %v", *sample.SessionID)
		}
	}
}

func TestTrackUnknownLinkIsGenericError(t *testing.T) {
	env := newTestEnv(t)

	rec := env.capture(t, "never-created")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != "INTERNAL_ERROR" {
		t.Fatalf("error = %+v, want generic INTERNAL_ERROR", resp.Error)
	}
	if strings.Contains(resp.Error.Message, "constraint") || strings.Contains(resp.Error.Message, "foreign") {
		t.Errorf("storage detail leaked to the visitor: %q", resp.Error.Message)
	}
}

func TestTrackValidationRejectsWithoutWrite(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/track", "", map[string]float64{"lat": 1, "lng": 2})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %+v", resp.Error)
	}

	samples, err := env.db.ListAllSamples(context.Background())
	if err != nil {
		t.Fatalf("failed to list samples: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("rejected capture must not write, found %d rows", len(samples))
	}
}

func TestTrackRawCoordinatesStoredAsReceived(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "a@example.org", models.RoleUser)
	link := env.createLink(t, token, "bait02")

	rec := env.do(t, http.MethodPost, "/api/v1/track", "", models.CaptureRequest{
		LinkID: link.ID,
		Lat:    9999.5,
		Lng:    -9999.5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("out-of-range coordinates must still store: %d %s", rec.Code, rec.Body.String())
	}

	var sample models.TrackingSample
	decodeData(t, rec, &sample)
	if sample.Lat != 9999.5 || sample.Lng != -9999.5 {
		t.Errorf("coordinates altered: %v,%v", sample.Lat, sample.Lng)
	}
}

func TestCaptureRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Security.CaptureRatePerSec = 0.001
		cfg.Security.CaptureRateBurst = 2
	})
	_, token := env.seedUser(t, "a@example.org", models.RoleUser)
	link := env.createLink(t, token, "bait03")

	for i := 0; i < 2; i++ {
		if rec := env.capture(t, link.ID); rec.Code != http.StatusCreated {
			t.Fatalf("capture %d within burst returned %d", i, rec.Code)
		}
	}

	rec := env.capture(t, link.ID)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestResolveClientIPHonorsOnlyTrustedProxies(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/track", nil)
	req.RemoteAddr = "203.0.113.10:4567"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")

	if got := resolveClientIP(req, nil); got != "203.0.113.10" {
		t.Errorf("no trusted proxies: ip = %s, want the socket peer", got)
	}
	if got := resolveClientIP(req, []string{"203.0.113.10"}); got != "198.51.100.7" {
		t.Errorf("trusted peer: ip = %s, want the first forwarded hop", got)
	}
	if got := resolveClientIP(req, []string{"10.0.0.0/8"}); got != "203.0.113.10" {
		t.Errorf("peer outside trusted range: ip = %s, want the socket peer", got)
	}

	req.RemoteAddr = "10.1.2.3:9999"
	if got := resolveClientIP(req, []string{"10.0.0.0/8"}); got != "198.51.100.7" {
		t.Errorf("peer inside trusted range: ip = %s, want the forwarded hop", got)
	}

	req.Header.Del("X-Forwarded-For")
	if got := resolveClientIP(req, []string{"10.0.0.0/8"}); got != "10.1.2.3" {
		t.Errorf("trusted peer without header: ip = %s, want the socket peer", got)
	}
}

func TestForgedForwardedForCannotEvadeCaptureLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Security.CaptureRatePerSec = 0.001
		cfg.Security.CaptureRateBurst = 2
	})
	_, token := env.seedUser(t, "a@example.org", models.RoleUser)
	link := env.createLink(t, token, "bait07")

	// All requests come from one socket peer claiming different origins.
	send := func(forged string) *httptest.ResponseRecorder {
		data, err := json.Marshal(models.CaptureRequest{LinkID: link.ID, Lat: 1, Lng: 2})
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/track", bytes.NewReader(data))
		req.RemoteAddr = "203.0.113.10:4567"
		req.Header.Set("X-Forwarded-For", forged)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		return rec
	}

	for i, forged := range []string{"198.51.100.1", "198.51.100.2"} {
		if rec := send(forged); rec.Code != http.StatusCreated {
			t.Fatalf("capture %d within burst returned %d", i, rec.Code)
		}
	}
	if rec := send("198.51.100.3"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 despite rotating forwarded headers", rec.Code)
	}
}

func TestOwnershipFilterOnListings(t *testing.T) {
	env := newTestEnv(t)
	userA, tokenA := env.seedUser(t, "a@example.org", models.RoleUser)
	_, tokenB := env.seedUser(t, "b@example.org", models.RoleUser)
	_, tokenAdmin := env.seedUser(t, "root@example.org", models.RoleAdmin)

	link := env.createLink(t, tokenA, "secret1")
	if rec := env.capture(t, link.ID); rec.Code != http.StatusCreated {
		t.Fatalf("capture failed: %d", rec.Code)
	}

	var linksB []models.TrackingLink
	decodeData(t, env.do(t, http.MethodGet, "/api/v1/user/links", tokenB, nil), &linksB)
	if len(linksB) != 0 {
		t.Errorf("operator B sees %d of A's links, want 0", len(linksB))
	}

	var samplesB []models.TrackingSample
	decodeData(t, env.do(t, http.MethodGet, "/api/v1/user/sessions", tokenB, nil), &samplesB)
	if len(samplesB) != 0 {
		t.Errorf("operator B sees %d of A's samples, want 0", len(samplesB))
	}

	var linksA []models.TrackingLink
	decodeData(t, env.do(t, http.MethodGet, "/api/v1/user/links", tokenA, nil), &linksA)
	if len(linksA) != 1 || linksA[0].OwnerID != userA.ID.String() {
		t.Errorf("owner listing wrong: %+v", linksA)
	}

	var adminLinks []models.TrackingLink
	decodeData(t, env.do(t, http.MethodGet, "/api/v1/admin/links", tokenAdmin, nil), &adminLinks)
	if len(adminLinks) != 1 {
		t.Fatalf("admin sees %d links, want 1", len(adminLinks))
	}
	if adminLinks[0].OwnerEmail == nil || *adminLinks[0].OwnerEmail != "a@example.org" {
		t.Errorf("admin listing missing owner email: %+v", adminLinks[0])
	}
}

func TestStatsMatchListingScope(t *testing.T) {
	env := newTestEnv(t)
	_, tokenA := env.seedUser(t, "a@example.org", models.RoleUser)
	_, tokenB := env.seedUser(t, "b@example.org", models.RoleUser)
	_, tokenAdmin := env.seedUser(t, "root@example.org", models.RoleAdmin)

	link := env.createLink(t, tokenA, "stats1")
	for i := 0; i < 2; i++ {
		if rec := env.capture(t, link.ID); rec.Code != http.StatusCreated {
			t.Fatalf("capture failed: %d", rec.Code)
		}
	}

	var statsA, statsB, statsAdmin models.StatsResponse
	decodeData(t, env.do(t, http.MethodGet, "/api/v1/user/stats", tokenA, nil), &statsA)
	decodeData(t, env.do(t, http.MethodGet, "/api/v1/user/stats", tokenB, nil), &statsB)
	decodeData(t, env.do(t, http.MethodGet, "/api/v1/user/stats", tokenAdmin, nil), &statsAdmin)

	if statsA.TotalLinks != 1 || statsA.TotalLocations != 2 {
		t.Errorf("owner stats = %+v, want 1/2", statsA)
	}
	if statsB.TotalLinks != 0 || statsB.TotalLocations != 0 {
		t.Errorf("outsider stats = %+v, want 0/0", statsB)
	}
	if statsAdmin.TotalLinks != 1 || statsAdmin.TotalLocations != 2 {
		t.Errorf("admin stats = %+v, want 1/2", statsAdmin)
	}
}

func TestUpdateRequiresOwnership(t *testing.T) {
	env := newTestEnv(t)
	_, tokenA := env.seedUser(t, "a@example.org", models.RoleUser)
	_, tokenB := env.seedUser(t, "b@example.org", models.RoleUser)
	_, tokenAdmin := env.seedUser(t, "root@example.org", models.RoleAdmin)

	link := env.createLink(t, tokenA, "mine01")
	update := models.UpdateLinkRequest{DestinationURL: "https://example.org/other"}

	rec := env.do(t, http.MethodPut, "/api/v1/links/"+link.ID, tokenB, update)
	if rec.Code != http.StatusForbidden {
		t.Errorf("outsider update status = %d, want 403", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/links/"+link.ID, tokenAdmin, update)
	if rec.Code != http.StatusOK {
		t.Errorf("admin update status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPut, "/api/v1/links/unknown", tokenA, update)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown link update status = %d, want 404", rec.Code)
	}
}

func TestDeleteLinkCascades(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "a@example.org", models.RoleUser)
	link := env.createLink(t, token, "gone01")

	for i := 0; i < 2; i++ {
		if rec := env.capture(t, link.ID); rec.Code != http.StatusCreated {
			t.Fatalf("capture failed: %d", rec.Code)
		}
	}
	// Warm the public cache so the delete has something to invalidate.
	env.do(t, http.MethodGet, "/api/v1/links/"+link.ID, "", nil)

	rec := env.do(t, http.MethodDelete, "/api/v1/links/"+link.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body.String())
	}

	samples, err := env.db.ListAllSamples(context.Background())
	if err != nil {
		t.Fatalf("failed to list samples: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("samples survived link delete: %d rows", len(samples))
	}

	pub := env.do(t, http.MethodGet, "/api/v1/links/"+link.ID, "", nil)
	if pub.Code != http.StatusNotFound {
		t.Errorf("deleted link still served: %d", pub.Code)
	}
}

func TestClearLinkSessions(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "a@example.org", models.RoleUser)
	link := env.createLink(t, token, "wipe01")

	for i := 0; i < 3; i++ {
		if rec := env.capture(t, link.ID); rec.Code != http.StatusCreated {
			t.Fatalf("capture failed: %d", rec.Code)
		}
	}

	rec := env.do(t, http.MethodDelete, "/api/v1/links/"+link.ID+"/sessions", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d: %s", rec.Code, rec.Body.String())
	}

	var result map[string]int64
	decodeData(t, rec, &result)
	if result["cleared"] != 3 {
		t.Errorf("cleared = %d, want 3", result["cleared"])
	}

	var samples []models.TrackingSample
	decodeData(t, env.do(t, http.MethodGet, "/api/v1/user/sessions", token, nil), &samples)
	if len(samples) != 0 {
		t.Errorf("cleared samples still listed: %d", len(samples))
	}

	// The link itself survives a history clear.
	var links []models.TrackingLink
	decodeData(t, env.do(t, http.MethodGet, "/api/v1/user/links", token, nil), &links)
	if len(links) != 1 {
		t.Errorf("link count after clear = %d, want 1", len(links))
	}
}

func TestClearAllOwnedSessions(t *testing.T) {
	env := newTestEnv(t)
	_, tokenA := env.seedUser(t, "a@example.org", models.RoleUser)
	_, tokenB := env.seedUser(t, "b@example.org", models.RoleUser)

	linkA := env.createLink(t, tokenA, "wipeA")
	linkB := env.createLink(t, tokenB, "keepB")
	for _, id := range []string{linkA.ID, linkA.ID, linkB.ID} {
		if rec := env.capture(t, id); rec.Code != http.StatusCreated {
			t.Fatalf("capture failed: %d", rec.Code)
		}
	}

	rec := env.do(t, http.MethodDelete, "/api/v1/user/sessions", tokenA, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	var result map[string]int64
	decodeData(t, rec, &result)
	if result["cleared"] != 2 {
		t.Errorf("cleared = %d, want 2", result["cleared"])
	}

	// B's history is untouched.
	var samplesB []models.TrackingSample
	decodeData(t, env.do(t, http.MethodGet, "/api/v1/user/sessions", tokenB, nil), &samplesB)
	if len(samplesB) != 1 {
		t.Errorf("unrelated owner lost samples: %d, want 1", len(samplesB))
	}
}

func TestAdminEndpointsRequireAdminRole(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "a@example.org", models.RoleUser)

	for _, path := range []string{"/api/v1/admin/links", "/api/v1/admin/sessions"} {
		rec := env.do(t, http.MethodGet, path, token, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s: status = %d, want 403", path, rec.Code)
		}
	}
}

func TestOperatorEndpointsRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	for _, probe := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/user/links"},
		{http.MethodGet, "/api/v1/user/sessions"},
		{http.MethodGet, "/api/v1/user/stats"},
		{http.MethodPost, "/api/v1/links"},
	} {
		rec := env.do(t, probe.method, probe.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", probe.method, probe.path, rec.Code)
		}
	}
}

func TestCreateLinkValidation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "a@example.org", models.RoleUser)

	rec := env.do(t, http.MethodPost, "/api/v1/links", token, map[string]string{"title": "no destination"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %+v", resp.Error)
	}

	links, err := env.db.ListAllLinks(context.Background())
	if err != nil {
		t.Fatalf("failed to list links: %v", err)
	}
	if len(links) != 0 {
		t.Errorf("rejected create still wrote %d links", len(links))
	}
}

func TestCreateLinkAssignsSlug(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "a@example.org", models.RoleUser)

	rec := env.do(t, http.MethodPost, "/api/v1/links", token, models.CreateLinkRequest{
		DestinationURL: "https://example.org/landing",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var link models.TrackingLink
	decodeData(t, rec, &link)
	if len(link.ID) < 3 {
		t.Errorf("assigned slug too short: %q", link.ID)
	}
}

func TestHealthAndPing(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	var health HealthStatus
	decodeData(t, rec, &health)
	if health.Status != "healthy" || health.Database != "connected" {
		t.Errorf("health = %+v", health)
	}

	ping := env.do(t, http.MethodGet, "/api/v1/ping", "", nil)
	if ping.Code != http.StatusOK {
		t.Errorf("ping status = %d", ping.Code)
	}
}

func TestWebSocketRejectsMissingOrigin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/ws", "", nil)
	if rec.Code == http.StatusSwitchingProtocols {
		t.Fatal("upgrade succeeded without an Origin header")
	}
}

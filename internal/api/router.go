// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

// Package api wires the HTTP surface: operator auth, link management,
// the public bait-page reads, the capture fallback and the WebSocket
// upgrade. Routing uses chi with one group per trust level.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emora-dev/linkbeacon/internal/auth"
	"github.com/emora-dev/linkbeacon/internal/cache"
	"github.com/emora-dev/linkbeacon/internal/config"
	"github.com/emora-dev/linkbeacon/internal/database"
	"github.com/emora-dev/linkbeacon/internal/middleware"
	"github.com/emora-dev/linkbeacon/internal/models"
	"github.com/emora-dev/linkbeacon/internal/tracker"
	"github.com/emora-dev/linkbeacon/internal/websocket"
)

// Router holds the dependencies shared by all handlers.
type Router struct {
	cfg            *config.Config
	db             *database.DB
	linkCache      *cache.LinkCache
	recorder       *tracker.Recorder
	hub            *websocket.Hub
	jwtManager     *auth.JWTManager
	authMW         *auth.Middleware
	captureLimiter *auth.CaptureLimiter
	startTime      time.Time
}

// NewRouter creates a router over the given dependencies.
func NewRouter(
	cfg *config.Config,
	db *database.DB,
	linkCache *cache.LinkCache,
	recorder *tracker.Recorder,
	hub *websocket.Hub,
	jwtManager *auth.JWTManager,
	captureLimiter *auth.CaptureLimiter,
) *Router {
	return &Router{
		cfg:            cfg,
		db:             db,
		linkCache:      linkCache,
		recorder:       recorder,
		hub:            hub,
		jwtManager:     jwtManager,
		authMW:         auth.NewMiddleware(jwtManager),
		captureLimiter: captureLimiter,
		startTime:      time.Now(),
	}
}

// Setup builds the full route tree.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// No RealIP middleware: it rewrites RemoteAddr from headers any peer
	// can set. Handlers that need the originating address go through
	// clientIP, which checks the peer against the trusted proxy list.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", rt.handleHealth)
		r.Get("/ping", rt.handlePing)
		r.Get("/ws", rt.handleWebSocket)

		// Public surface: bait-page reads and the capture fallback. The
		// fallback carries its own per-IP limiter on top of the group limit.
		r.Group(func(r chi.Router) {
			rt.applyRateLimit(r)
			r.Post("/auth/login", rt.handleLogin)
			r.Get("/links/{id}", rt.handlePublicLink)
			r.Post("/track", rt.handleTrack)
		})

		// Operator surface.
		r.Group(func(r chi.Router) {
			rt.applyRateLimit(r)
			r.Use(rt.authMW.Authenticate)

			r.Post("/links", rt.handleCreateLink)
			r.Put("/links/{id}", rt.handleUpdateLink)
			r.Delete("/links/{id}", rt.handleDeleteLink)
			r.Delete("/links/{id}/sessions", rt.handleClearLinkSessions)

			r.Get("/user/links", rt.handleUserLinks)
			r.Get("/user/sessions", rt.handleUserSessions)
			r.Get("/user/stats", rt.handleUserStats)
			r.Delete("/user/sessions", rt.handleClearUserSessions)

			r.Group(func(r chi.Router) {
				r.Use(rt.requireAdmin)
				r.Get("/admin/links", rt.handleAdminLinks)
				r.Get("/admin/sessions", rt.handleAdminSessions)
			})
		})
	})

	return r
}

func (rt *Router) applyRateLimit(r chi.Router) {
	if rt.cfg.Security.RateLimitDisabled {
		return
	}
	r.Use(httprate.LimitByIP(rt.cfg.Security.RateLimitReqs, rt.cfg.Security.RateLimitWindow))
}

func (rt *Router) requireAdmin(next http.Handler) http.Handler {
	return rt.authMW.RequireRole(models.RoleAdmin, next)
}

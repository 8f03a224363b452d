// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

// Package main is the entry point for the Linkbeacon server.
//
// Linkbeacon serves operator-created trackable links. A visitor opening a
// link gets a disguised landing page whose client reports device location,
// either over a live WebSocket session or through a stateless HTTP
// fallback. Captured samples are persisted to DuckDB and fanned out in
// real time to subscribed operator consoles.
//
// # Startup order
//
//  1. Configuration: koanf v2 layers defaults, an optional YAML file and
//     environment variables (see config.Load).
//  2. Logging: zerolog, json or console format.
//  3. Database: DuckDB with the links/users/location_samples schema.
//  4. Admin seeding: ADMIN_EMAIL/ADMIN_PASSWORD create the first admin
//     account when set.
//  5. Link cache: badger, in-memory or on disk.
//  6. Capture pipeline: watermill pubsub, recorder, WebSocket hub and the
//     event forwarder.
//  7. Supervisor tree: suture runs the hub, forwarder, stats poller and
//     HTTP server with restart-on-crash.
//
// # Signal handling
//
// SIGINT and SIGTERM cancel the root context; the supervisor shuts every
// service down gracefully (10s timeout) before the process exits.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emora-dev/linkbeacon/internal/api"
	"github.com/emora-dev/linkbeacon/internal/auth"
	"github.com/emora-dev/linkbeacon/internal/cache"
	"github.com/emora-dev/linkbeacon/internal/config"
	"github.com/emora-dev/linkbeacon/internal/database"
	"github.com/emora-dev/linkbeacon/internal/logging"
	"github.com/emora-dev/linkbeacon/internal/models"
	"github.com/emora-dev/linkbeacon/internal/poller"
	"github.com/emora-dev/linkbeacon/internal/supervisor"
	"github.com/emora-dev/linkbeacon/internal/tracker"
	ws "github.com/emora-dev/linkbeacon/internal/websocket"
)

const statsPollInterval = 30 * time.Second

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("db_path", cfg.Database.Path).
		Msg("Starting Linkbeacon")

	if cfg.Security.JWTSecret == "" {
		// Validate already rejected this in production. A random secret
		// keeps development working but invalidates tokens on restart.
		cfg.Security.JWTSecret = generateRandomSecret()
		logging.Warn().Msg("JWT_SECRET not set, generated an ephemeral secret; tokens will not survive restarts")
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := seedAccounts(ctx, db, cfg); err != nil {
		logging.Fatal().Err(err).Msg("Failed to seed accounts")
	}

	linkCache, err := cache.New(&cfg.Cache)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize link cache")
	}
	defer func() {
		if err := linkCache.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing link cache")
		}
	}()

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}

	captureLimiter := auth.NewCaptureLimiter(cfg.Security.CaptureRatePerSec, cfg.Security.CaptureRateBurst)
	defer captureLimiter.Stop()

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("API rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	// Capture pipeline: recorder writes, pubsub fans out, forwarder feeds
	// the hub.
	pubsub := tracker.NewPubSub(&cfg.Capture)
	defer func() {
		if err := pubsub.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing pubsub")
		}
	}()

	hub := ws.NewHub(cfg.Capture.BroadcastBuffer)
	recorder := tracker.NewRecorder(db, pubsub, cfg.Capture.Topic)
	forwarder := ws.NewForwarder(hub, pubsub, cfg.Capture.Topic)

	// The stats poller pushes a full counter snapshot to subscribed
	// consoles on every tick, replacing whatever they held before.
	statsPoller := poller.New("stats", statsPollInterval,
		func(ctx context.Context) (interface{}, error) {
			return db.GetStats(ctx, "", true)
		},
		func(snapshot interface{}) {
			if stats, ok := snapshot.(*models.StatsResponse); ok {
				hub.BroadcastStats(stats)
			}
		})

	router := api.NewRouter(cfg, db, linkCache, recorder, hub, jwtManager, captureLimiter)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddFanoutService(supervisor.NewHubService(hub))
	tree.AddFanoutService(supervisor.NewForwarderService(forwarder))
	tree.AddFanoutService(statsPoller)
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.Timeout))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}

// seedAccounts creates the configured admin and optional demo operator
// accounts. Existing accounts are left untouched so a changed
// ADMIN_PASSWORD never silently rewrites a live credential.
func seedAccounts(ctx context.Context, db *database.DB, cfg *config.Config) error {
	seed := func(email, password, role string) error {
		if email == "" || password == "" {
			return nil
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("failed to hash password for %s: %w", email, err)
		}
		user, err := db.EnsureUser(ctx, email, hash, role)
		if err != nil {
			return err
		}
		logging.Info().Str("email", user.Email).Str("role", user.Role).Msg("Account ready")
		return nil
	}

	if err := seed(cfg.Security.AdminEmail, cfg.Security.AdminPassword, models.RoleAdmin); err != nil {
		return err
	}
	return seed(cfg.Security.DemoEmail, cfg.Security.DemoPassword, models.RoleUser)
}

func generateRandomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		logging.Fatal().Err(err).Msg("Failed to generate JWT secret")
	}
	return hex.EncodeToString(buf)
}

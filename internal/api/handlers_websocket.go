// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

package api

import (
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/emora-dev/linkbeacon/internal/logging"
	"github.com/emora-dev/linkbeacon/internal/websocket"
)

// getUpgrader builds the WebSocket upgrader with origin checking bound to
// the configured CORS origins.
func (rt *Router) getUpgrader() gorillaws.Upgrader {
	return gorillaws.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      rt.checkWebSocketOrigin,
	}
}

// checkWebSocketOrigin validates the Origin header against the allowed
// CORS origins. Browsers always send Origin on WebSocket upgrades, so a
// missing header means a non-browser client trying to skip the check.
func (rt *Router) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	for _, allowed := range rt.cfg.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("websocket origin rejected")
	return false
}

// handleWebSocket upgrades the connection and hands it to the hub. The
// same endpoint serves both sides: targets push location updates, and
// operator consoles send join-admin to subscribe to the fan-out.
func (rt *Router) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := rt.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(rt.hub, conn, rt.recorder,
		optString(r.UserAgent()), optString(rt.clientIP(r)))
	rt.hub.Register <- client
	client.Start()
}

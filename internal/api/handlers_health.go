// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

package api

import (
	"net/http"
	"time"

	"github.com/emora-dev/linkbeacon/internal/models"
)

// HealthStatus is the payload served by the health endpoint.
type HealthStatus struct {
	Status        string  `json:"status"`
	Database      string  `json:"database"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Clients       int     `json:"clients"`
	Subscribers   int     `json:"subscribers"`
}

// handleHealth reports process and database health. Degraded still
// answers 200; load balancers watch the status field.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	status := HealthStatus{
		Status:        "healthy",
		Database:      "connected",
		UptimeSeconds: time.Since(rt.startTime).Seconds(),
		Clients:       rt.hub.GetClientCount(),
		Subscribers:   rt.hub.GetSubscriberCount(),
	}
	if err := rt.db.Ping(r.Context()); err != nil {
		status.Status = "degraded"
		status.Database = "unreachable"
	}

	resp := models.NewSuccessResponse(status, time.Since(start))
	respondJSON(w, http.StatusOK, &resp)
}

func (rt *Router) handlePing(w http.ResponseWriter, r *http.Request) {
	resp := models.NewSuccessResponse("pong", 0)
	respondJSON(w, http.StatusOK, &resp)
}

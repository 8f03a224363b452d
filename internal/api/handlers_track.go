// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

package api

import (
	"net/http"
	"time"

	"github.com/emora-dev/linkbeacon/internal/models"
	"github.com/emora-dev/linkbeacon/internal/tracker"
)

// handleTrack is the stateless capture fallback for clients that cannot
// hold a WebSocket open. Every accepted request inserts a fresh sample;
// there is no session to coalesce onto. Coordinates are stored exactly as
// received.
func (rt *Router) handleTrack(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.CaptureRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ip := rt.clientIP(r)
	if !rt.captureLimiter.Allow(ip) {
		respondError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "too many capture requests", nil)
		return
	}

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = r.UserAgent()
	}

	sample, err := rt.recorder.Record(r.Context(), &tracker.CaptureInput{
		LinkID:    req.LinkID,
		Lat:       req.Lat,
		Lng:       req.Lng,
		UserAgent: optString(userAgent),
		IP:        optString(ip),
	})
	if err != nil {
		// An unknown link id surfaces here as a constraint failure; the
		// visitor gets the same generic error as any other write problem.
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to record location", err)
		return
	}

	resp := models.NewSuccessResponse(sample, time.Since(start))
	respondJSON(w, http.StatusCreated, &resp)
}

// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/emora-dev/linkbeacon/internal/auth"
	"github.com/emora-dev/linkbeacon/internal/logging"
	"github.com/emora-dev/linkbeacon/internal/models"
)

// The /user reads apply the ownership filter: a regular operator sees
// only links and samples they own, an admin sees everything. The /admin
// reads are the unfiltered views with owner identity attached.

func (rt *Router) handleUserLinks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "authentication required", nil)
		return
	}

	var links []models.TrackingLink
	var err error
	if claims.Role == models.RoleAdmin {
		links, err = rt.db.ListAllLinks(r.Context())
	} else {
		links, err = rt.db.ListLinksByOwner(r.Context(), claims.UserID)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list links", err)
		return
	}

	resp := models.NewSuccessResponse(links, time.Since(start))
	respondJSON(w, http.StatusOK, &resp)
}

func (rt *Router) handleUserSessions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "authentication required", nil)
		return
	}

	var samples []models.TrackingSample
	var err error
	if claims.Role == models.RoleAdmin {
		samples, err = rt.db.ListAllSamples(r.Context())
	} else {
		samples, err = rt.db.ListSamplesForOwner(r.Context(), claims.UserID)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list samples", err)
		return
	}

	resp := models.NewSuccessResponse(samples, time.Since(start))
	respondJSON(w, http.StatusOK, &resp)
}

// handleUserStats serves the dashboard counters under the same filter as
// the listings, so the numbers always match what the operator can see.
func (rt *Router) handleUserStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "authentication required", nil)
		return
	}

	stats, err := rt.db.GetStats(r.Context(), claims.UserID, claims.Role == models.RoleAdmin)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load stats", err)
		return
	}

	resp := models.NewSuccessResponse(stats, time.Since(start))
	respondJSON(w, http.StatusOK, &resp)
}

// handleClearLinkSessions hides the capture history of one link. Owner or
// admin only.
func (rt *Router) handleClearLinkSessions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")

	_, claims, ok := rt.loadOwnedLink(w, r, id)
	if !ok {
		return
	}

	cleared, err := rt.db.ClearSamplesForLink(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to clear samples", err)
		return
	}

	logging.Info().Str("link_id", sanitizeLogValue(id)).Str("cleared_by", claims.UserID).Int64("samples", cleared).Msg("link history cleared")

	resp := models.NewSuccessResponse(map[string]int64{"cleared": cleared}, time.Since(start))
	respondJSON(w, http.StatusOK, &resp)
}

// handleClearUserSessions hides the capture history across every link the
// caller owns. Always scoped to the caller, admins included; the
// unfiltered store has no bulk clear.
func (rt *Router) handleClearUserSessions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "authentication required", nil)
		return
	}

	cleared, err := rt.db.ClearSamplesForOwner(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to clear samples", err)
		return
	}

	logging.Info().Str("owner_id", claims.UserID).Int64("samples", cleared).Msg("owner history cleared")

	resp := models.NewSuccessResponse(map[string]int64{"cleared": cleared}, time.Since(start))
	respondJSON(w, http.StatusOK, &resp)
}

func (rt *Router) handleAdminLinks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	links, err := rt.db.ListAllLinks(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list links", err)
		return
	}

	resp := models.NewSuccessResponse(links, time.Since(start))
	respondJSON(w, http.StatusOK, &resp)
}

func (rt *Router) handleAdminSessions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	samples, err := rt.db.ListAllSamples(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list samples", err)
		return
	}

	resp := models.NewSuccessResponse(samples, time.Since(start))
	respondJSON(w, http.StatusOK, &resp)
}

// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/emora-dev/linkbeacon/internal/auth"
	"github.com/emora-dev/linkbeacon/internal/cache"
	"github.com/emora-dev/linkbeacon/internal/logging"
	"github.com/emora-dev/linkbeacon/internal/metrics"
	"github.com/emora-dev/linkbeacon/internal/models"
)

// newSlug generates a short random link id for requests that do not pick
// their own.
func newSlug() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:10]
}

// handlePublicLink serves the visitor-facing view of a link. Unknown ids
// get a placeholder payload with 404 so the bait page still renders
// instead of erroring out.
func (rt *Router) handlePublicLink(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")

	link, err := rt.linkCache.Get(id)
	switch {
	case err == nil:
		metrics.LinkCacheHits.Inc()
	case errors.Is(err, cache.ErrMiss):
		metrics.LinkCacheMisses.Inc()
		link, err = rt.db.GetLink(r.Context(), id)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load link", err)
			return
		}
		if link != nil {
			if cacheErr := rt.linkCache.Set(link); cacheErr != nil {
				logging.Warn().Err(cacheErr).Str("link_id", sanitizeLogValue(id)).Msg("failed to cache link")
			}
		}
	default:
		// Cache trouble is not a reason to fail the read.
		logging.Warn().Err(err).Str("link_id", sanitizeLogValue(id)).Msg("link cache read failed")
		link, err = rt.db.GetLink(r.Context(), id)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load link", err)
			return
		}
	}

	if link == nil {
		resp := models.NewSuccessResponse(models.PlaceholderLink(id), time.Since(start))
		respondJSON(w, http.StatusNotFound, &resp)
		return
	}

	resp := models.NewSuccessResponse(link.PublicView(), time.Since(start))
	respondJSON(w, http.StatusOK, &resp)
}

// handleCreateLink creates a tracking link owned by the caller.
func (rt *Router) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "authentication required", nil)
		return
	}

	var req models.CreateLinkRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	id := req.ID
	if id == "" {
		id = newSlug()
	}

	link := &models.TrackingLink{
		ID:             id,
		OwnerID:        claims.UserID,
		DestinationURL: req.DestinationURL,
		Title:          optString(req.Title),
		Description:    optString(req.Description),
		ImageURL:       optString(req.ImageURL),
		ButtonText:     optString(req.ButtonText),
	}

	if err := rt.db.CreateLink(r.Context(), link); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create link", err)
		return
	}

	logging.Info().Str("link_id", sanitizeLogValue(link.ID)).Str("owner_id", claims.UserID).Msg("link created")

	resp := models.NewSuccessResponse(link, time.Since(start))
	respondJSON(w, http.StatusCreated, &resp)
}

// handleUpdateLink edits a link the caller owns. Admins may edit any link.
func (rt *Router) handleUpdateLink(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")

	link, claims, ok := rt.loadOwnedLink(w, r, id)
	if !ok {
		return
	}

	var req models.UpdateLinkRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	link.DestinationURL = req.DestinationURL
	link.Title = optString(req.Title)
	link.Description = optString(req.Description)
	link.ImageURL = optString(req.ImageURL)
	link.ButtonText = optString(req.ButtonText)

	if err := rt.db.UpdateLink(r.Context(), link); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to update link", err)
		return
	}
	rt.invalidateLink(id)

	logging.Info().Str("link_id", sanitizeLogValue(id)).Str("updated_by", claims.UserID).Msg("link updated")

	resp := models.NewSuccessResponse(link, time.Since(start))
	respondJSON(w, http.StatusOK, &resp)
}

// handleDeleteLink removes a link and every sample captured through it.
func (rt *Router) handleDeleteLink(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")

	_, claims, ok := rt.loadOwnedLink(w, r, id)
	if !ok {
		return
	}

	if err := rt.db.DeleteLinkCascade(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete link", err)
		return
	}
	rt.invalidateLink(id)

	logging.Info().Str("link_id", sanitizeLogValue(id)).Str("deleted_by", claims.UserID).Msg("link deleted")

	resp := models.NewSuccessResponse(map[string]string{"deleted": id}, time.Since(start))
	respondJSON(w, http.StatusOK, &resp)
}

// loadOwnedLink fetches a link and enforces the ownership filter: the
// owner or an admin passes, anyone else gets 403. Writes the error
// response itself and returns ok=false on any failure.
func (rt *Router) loadOwnedLink(w http.ResponseWriter, r *http.Request, id string) (*models.TrackingLink, *auth.Claims, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "authentication required", nil)
		return nil, nil, false
	}

	link, err := rt.db.GetLink(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load link", err)
		return nil, nil, false
	}
	if link == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "link not found", nil)
		return nil, nil, false
	}
	if link.OwnerID != claims.UserID && claims.Role != models.RoleAdmin {
		respondError(w, http.StatusForbidden, "AUTHORIZATION_ERROR", "not the link owner", nil)
		return nil, nil, false
	}
	return link, claims, true
}

func (rt *Router) invalidateLink(id string) {
	if err := rt.linkCache.Invalidate(id); err != nil {
		logging.Warn().Err(err).Str("link_id", sanitizeLogValue(id)).Msg("failed to invalidate cached link")
	}
}

// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

package api

import (
	"net/http"
	"time"

	"github.com/emora-dev/linkbeacon/internal/auth"
	"github.com/emora-dev/linkbeacon/internal/logging"
	"github.com/emora-dev/linkbeacon/internal/models"
)

// handleLogin verifies operator credentials and issues a signed token.
// The token is returned in the body and mirrored into an HttpOnly cookie
// so the WebSocket upgrade can authenticate without custom headers.
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := rt.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "login failed", err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		// Same response for unknown email and wrong password.
		respondError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "invalid credentials", nil)
		return
	}

	token, err := rt.jwtManager.GenerateToken(user.ID.String(), user.Email, user.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "login failed", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		MaxAge:   int(rt.cfg.Security.SessionTimeout.Seconds()),
		HttpOnly: true,
		Secure:   rt.cfg.Server.Environment == "production",
		SameSite: http.SameSiteLaxMode,
	})

	logging.Info().Str("email", sanitizeLogValue(user.Email)).Str("role", user.Role).Msg("operator logged in")

	resp := models.NewSuccessResponse(models.LoginResponse{Token: token, Role: user.Role}, time.Since(start))
	respondJSON(w, http.StatusOK, &resp)
}

// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

package api

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/emora-dev/linkbeacon/internal/logging"
	"github.com/emora-dev/linkbeacon/internal/models"
	"github.com/emora-dev/linkbeacon/internal/validation"
)

const maxBodyBytes = 1 << 20

// sanitizeLogValue removes control characters from strings to prevent log
// injection attacks. Newlines, carriage returns and other control
// characters could otherwise let a client forge log entries.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondJSON sends a JSON response with proper headers.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("ETag", generateETag(data))

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// generateETag creates a simple ETag from data using FNV-1a hash.
func generateETag(data []byte) string {
	hash := uint32(2166136261)
	for _, b := range data {
		hash ^= uint32(b)
		hash *= 16777619
	}
	return strconv.FormatUint(uint64(hash), 16)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		// Sanitize error output to prevent log injection attacks
		logging.Error().Str("code", sanitizeLogValue(code)).Str("error", sanitizeLogValue(err.Error())).Msg("API Error")
	}

	resp := models.NewErrorResponse(code, message, nil)
	respondJSON(w, status, &resp)
}

// decodeAndValidate reads a JSON body into v and runs struct validation.
// On failure it writes the error response and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body", err)
		return false
	}

	if validationErr := validation.ValidateStruct(v); validationErr != nil {
		apiErr := validationErr.ToAPIError()
		resp := models.NewErrorResponse(apiErr.Code, apiErr.Message, apiErr.Details)
		respondJSON(w, http.StatusBadRequest, &resp)
		return false
	}
	return true
}

// clientIP resolves the originating client address using the configured
// trusted proxy list.
func (rt *Router) clientIP(r *http.Request) string {
	return resolveClientIP(r, rt.cfg.Security.TrustedProxies)
}

// resolveClientIP returns the originating client address. X-Forwarded-For
// is only honored when the socket peer is a trusted proxy; any other peer
// could forge the header to evade per-IP limits.
func resolveClientIP(r *http.Request, trustedProxies []string) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !isTrustedProxy(host, trustedProxies) {
		return host
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	return host
}

// isTrustedProxy reports whether host matches a trusted proxy entry.
// Entries are single addresses or CIDR ranges.
func isTrustedProxy(host string, trustedProxies []string) bool {
	peer := net.ParseIP(host)
	if peer == nil {
		return false
	}
	for _, entry := range trustedProxies {
		if strings.Contains(entry, "/") {
			if _, ipnet, err := net.ParseCIDR(entry); err == nil && ipnet.Contains(peer) {
				return true
			}
			continue
		}
		if ip := net.ParseIP(entry); ip != nil && ip.Equal(peer) {
			return true
		}
	}
	return false
}

// optString maps an empty form value to a nil pointer so optional display
// fields stay NULL in the store instead of empty strings.
func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

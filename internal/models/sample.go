// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

package models

import (
	"time"

	"github.com/google/uuid"
)

// TrackingSample is one captured location fix tied to a TrackingLink.
//
// SessionID identifies the live websocket connection that produced the
// sample; it is nil for samples taken over the stateless HTTP fallback.
// A live connection keeps exactly one row, updated in place as the device
// moves; fallback captures insert a new row each time.
type TrackingSample struct {
	ID        uuid.UUID `json:"id"`
	LinkID    string    `json:"linkId"`
	SessionID *string   `json:"sessionId,omitempty"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UserAgent *string   `json:"userAgent,omitempty"`
	IP        *string   `json:"ip,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Active    bool      `json:"active"`
}

// CaptureRequest is the wire payload a visiting client sends, over either
// transport. Coordinates are stored as received; only the link reference
// is validated.
type CaptureRequest struct {
	LinkID    string  `json:"linkId" validate:"required"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	UserAgent string  `json:"userAgent" validate:"omitempty,max=1024"`
}

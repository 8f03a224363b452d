// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

// Package tracker records location captures and fans the persisted
// samples out to live operator consoles. Capture is the write side of
// the system: both the push channel (WebSocket) and the stateless HTTP
// fallback funnel into the single Record operation here.
package tracker

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/emora-dev/linkbeacon/internal/models"
)

// Event types carried on the capture topic.
const (
	EventLocationUpdated    = "location-updated"
	EventClientDisconnected = "client-disconnected"
)

// Event is the fan-out payload published after a successful capture
// write, or when a push session's transport tears down.
type Event struct {
	Type      string                 `json:"type"`
	Sample    *models.TrackingSample `json:"sample,omitempty"`
	SessionID string                 `json:"sessionId,omitempty"`
}

// EncodeEvent serializes an event for the message bus.
func EncodeEvent(event *Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal capture event: %w", err)
	}
	return data, nil
}

// DecodeEvent deserializes an event from the message bus.
func DecodeEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal capture event: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("capture event missing type")
	}
	return &event, nil
}

// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

// Package models holds the domain types shared by storage, capture and API.
package models

import (
	"time"
)

// TrackingLink is an operator-created disguised link. The id is the short
// shareable slug; destination is where the visitor ends up after capture.
// Display metadata dresses up the bait page and is all optional.
type TrackingLink struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerId"`
	DestinationURL string    `json:"destinationUrl"`
	Title          *string   `json:"title,omitempty"`
	Description    *string   `json:"description,omitempty"`
	ImageURL       *string   `json:"imageUrl,omitempty"`
	ButtonText     *string   `json:"buttonText,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`

	// OwnerEmail is populated only on the admin listing.
	OwnerEmail *string `json:"ownerEmail,omitempty"`
}

// PublicLink is the unauthenticated view served to a visiting client.
// It never exposes the owner.
type PublicLink struct {
	ID             string  `json:"id"`
	DestinationURL string  `json:"destinationUrl"`
	Title          *string `json:"title,omitempty"`
	Description    *string `json:"description,omitempty"`
	ImageURL       *string `json:"imageUrl,omitempty"`
	ButtonText     *string `json:"buttonText,omitempty"`
}

// PublicView strips a link down to its visitor-facing fields.
func (l *TrackingLink) PublicView() PublicLink {
	return PublicLink{
		ID:             l.ID,
		DestinationURL: l.DestinationURL,
		Title:          l.Title,
		Description:    l.Description,
		ImageURL:       l.ImageURL,
		ButtonText:     l.ButtonText,
	}
}

// PlaceholderLink is the payload served when a visitor opens an unknown
// link id, so the page still renders something instead of a hard failure.
func PlaceholderLink(id string) PublicLink {
	title := "Link not found"
	description := "This link does not exist or has been removed."
	return PublicLink{
		ID:          id,
		Title:       &title,
		Description: &description,
	}
}

// CreateLinkRequest is the operator payload for creating a link.
// ID is optional; a random slug is assigned when empty.
type CreateLinkRequest struct {
	ID             string `json:"id" validate:"omitempty,min=3,max=64"`
	DestinationURL string `json:"destinationUrl" validate:"required,url"`
	Title          string `json:"title" validate:"omitempty,max=200"`
	Description    string `json:"description" validate:"omitempty,max=1000"`
	ImageURL       string `json:"imageUrl" validate:"omitempty,url"`
	ButtonText     string `json:"buttonText" validate:"omitempty,max=100"`
}

// UpdateLinkRequest is the operator payload for editing a link.
type UpdateLinkRequest struct {
	DestinationURL string `json:"destinationUrl" validate:"required,url"`
	Title          string `json:"title" validate:"omitempty,max=200"`
	Description    string `json:"description" validate:"omitempty,max=1000"`
	ImageURL       string `json:"imageUrl" validate:"omitempty,url"`
	ButtonText     string `json:"buttonText" validate:"omitempty,max=100"`
}

// StatsResponse carries the scoped counters shown on the dashboard.
type StatsResponse struct {
	TotalLinks     int64 `json:"totalLinks"`
	TotalLocations int64 `json:"totalLocations"`
}

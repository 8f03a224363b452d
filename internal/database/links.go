// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/emora-dev/linkbeacon/internal/models"
)

// CreateLink inserts a tracking link.
func (db *DB) CreateLink(ctx context.Context, link *models.TrackingLink) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observeQuery("create_link", time.Now(), &err)

	now := time.Now().UTC()
	if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}
	link.UpdatedAt = link.CreatedAt

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO links (id, owner_id, destination_url, title, description, image_url, button_text, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		link.ID, link.OwnerID, link.DestinationURL, link.Title, link.Description,
		link.ImageURL, link.ButtonText, link.CreatedAt, link.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

// GetLink returns a link or nil when the id is unknown.
func (db *DB) GetLink(ctx context.Context, id string) (_ *models.TrackingLink, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observeQuery("get_link", time.Now(), &err)

	link, err := scanLink(db.conn.QueryRowContext(ctx,
		`SELECT id, owner_id, destination_url, title, description, image_url, button_text, created_at, updated_at
		 FROM links WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	return link, nil
}

// UpdateLink replaces a link's destination and display metadata.
func (db *DB) UpdateLink(ctx context.Context, link *models.TrackingLink) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observeQuery("update_link", time.Now(), &err)

	link.UpdatedAt = time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE links SET destination_url = ?, title = ?, description = ?, image_url = ?, button_text = ?, updated_at = ?
		 WHERE id = ?`,
		link.DestinationURL, link.Title, link.Description, link.ImageURL,
		link.ButtonText, link.UpdatedAt, link.ID)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("link %s not found", link.ID)
	}
	return nil
}

// DeleteLinkCascade removes a link and all of its samples. The two
// deletes run as separate autocommit statements: DuckDB checks the
// link_id constraint against pre-transaction state, so deleting the
// samples and the link inside one transaction still trips it. Not
// atomic; a failure between the statements leaves the link intact with
// its samples already gone.
func (db *DB) DeleteLinkCascade(ctx context.Context, id string) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observeQuery("delete_link", time.Now(), &err)

	if _, err = db.conn.ExecContext(ctx, `DELETE FROM location_samples WHERE link_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete link samples: %w", err)
	}
	if _, err = db.conn.ExecContext(ctx, `DELETE FROM links WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	return nil
}

// ListLinksByOwner returns an operator's links, newest first.
func (db *DB) ListLinksByOwner(ctx context.Context, ownerID string) (_ []models.TrackingLink, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observeQuery("list_links_by_owner", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, owner_id, destination_url, title, description, image_url, button_text, created_at, updated_at
		 FROM links WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	return collectLinks(rows)
}

// ListAllLinks returns every link with the owning operator's email
// attached. Admin-only read.
func (db *DB) ListAllLinks(ctx context.Context) (_ []models.TrackingLink, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observeQuery("list_all_links", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT l.id, l.owner_id, l.destination_url, l.title, l.description, l.image_url, l.button_text,
		        l.created_at, l.updated_at, u.email
		 FROM links l JOIN users u ON l.owner_id = u.id
		 ORDER BY l.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list all links: %w", err)
	}
	defer rows.Close()

	links := make([]models.TrackingLink, 0)
	for rows.Next() {
		var link models.TrackingLink
		var title, description, imageURL, buttonText sql.NullString
		var ownerEmail string
		if err := rows.Scan(&link.ID, &link.OwnerID, &link.DestinationURL,
			&title, &description, &imageURL, &buttonText,
			&link.CreatedAt, &link.UpdatedAt, &ownerEmail); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		link.Title = nullableString(title)
		link.Description = nullableString(description)
		link.ImageURL = nullableString(imageURL)
		link.ButtonText = nullableString(buttonText)
		link.OwnerEmail = &ownerEmail
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}
	return links, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLink(row rowScanner) (*models.TrackingLink, error) {
	var link models.TrackingLink
	var title, description, imageURL, buttonText sql.NullString
	err := row.Scan(&link.ID, &link.OwnerID, &link.DestinationURL,
		&title, &description, &imageURL, &buttonText,
		&link.CreatedAt, &link.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan link: %w", err)
	}
	link.Title = nullableString(title)
	link.Description = nullableString(description)
	link.ImageURL = nullableString(imageURL)
	link.ButtonText = nullableString(buttonText)
	return &link, nil
}

func collectLinks(rows *sql.Rows) ([]models.TrackingLink, error) {
	links := make([]models.TrackingLink, 0)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}
	return links, nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

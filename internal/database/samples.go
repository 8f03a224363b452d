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

	"github.com/google/uuid"

	"github.com/emora-dev/linkbeacon/internal/models"
)

const sampleColumns = `id, link_id, session_id, lat, lng, user_agent, ip, captured_at, active`

// InsertSample writes one fallback-path sample. No de-duplication key
// exists for stateless captures, so repeated identical payloads produce
// distinct rows.
func (db *DB) InsertSample(ctx context.Context, sample *models.TrackingSample) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observeQuery("insert_sample", time.Now(), &err)

	prepareSample(sample)

	stmt, err := db.getStmt(ctx,
		`INSERT INTO location_samples (`+sampleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	if _, err = stmt.ExecContext(ctx, sample.ID, sample.LinkID, sample.SessionID,
		sample.Lat, sample.Lng, sample.UserAgent, sample.IP, sample.Timestamp, sample.Active); err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// UpsertSampleBySession records a push-channel capture: latest position
// wins per transport session, so one live browser tab stays a single
// moving row instead of a trail of inserts.
//
// Writes for one session are serialized by a per-session lock; transaction
// conflicts are retried with short exponential backoff.
func (db *DB) UpsertSampleBySession(ctx context.Context, sample *models.TrackingSample) (err error) {
	if sample.SessionID == nil || *sample.SessionID == "" {
		return fmt.Errorf("upsert requires a transport session id")
	}

	mu := db.acquireSessionLock(*sample.SessionID)
	defer db.releaseSessionLock(mu)

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observeQuery("upsert_sample", time.Now(), &err)

	const maxRetries = 3
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := db.doUpsertSample(ctx, sample)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("upsert timed out or canceled: %w", ctx.Err())
		}
		if isInternalError(err) {
			return fmt.Errorf("duckdb internal error during upsert: %w", err)
		}
		if !isTransactionConflict(err) {
			return err
		}
		select {
		case <-time.After(time.Millisecond * time.Duration(1<<uint(attempt))):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (db *DB) doUpsertSample(ctx context.Context, sample *models.TrackingSample) error {
	stmt, err := db.getStmt(ctx,
		`SELECT id FROM location_samples WHERE session_id = ?`)
	if err != nil {
		return err
	}

	var existingID uuid.UUID
	err = stmt.QueryRowContext(ctx, *sample.SessionID).Scan(&existingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		prepareSample(sample)
		return db.InsertSample(ctx, sample)
	case err != nil:
		return fmt.Errorf("failed to look up session sample: %w", err)
	}

	prepareSample(sample)
	sample.ID = existingID

	update, err := db.getStmt(ctx,
		`UPDATE location_samples
		 SET lat = ?, lng = ?, user_agent = ?, ip = ?, captured_at = ?, active = true
		 WHERE id = ?`)
	if err != nil {
		return err
	}
	if _, err := update.ExecContext(ctx, sample.Lat, sample.Lng, sample.UserAgent,
		sample.IP, sample.Timestamp, existingID); err != nil {
		return fmt.Errorf("failed to update session sample: %w", err)
	}
	return nil
}

// ListSamplesForOwner returns the active samples of links owned by
// ownerID, newest first.
func (db *DB) ListSamplesForOwner(ctx context.Context, ownerID string) (_ []models.TrackingSample, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observeQuery("list_samples_by_owner", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT s.id, s.link_id, s.session_id, s.lat, s.lng, s.user_agent, s.ip, s.captured_at, s.active
		 FROM location_samples s JOIN links l ON s.link_id = l.id
		 WHERE l.owner_id = ? AND s.active
		 ORDER BY s.captured_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	defer rows.Close()

	return collectSamples(rows)
}

// ListAllSamples returns every active sample. Admin-only read.
func (db *DB) ListAllSamples(ctx context.Context) (_ []models.TrackingSample, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observeQuery("list_all_samples", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+sampleColumns+` FROM location_samples WHERE active ORDER BY captured_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list all samples: %w", err)
	}
	defer rows.Close()

	return collectSamples(rows)
}

// ClearSamplesForLink hides all samples of one link. The rows stay in the
// store (soft delete) so the operation is reversible by hand if needed.
func (db *DB) ClearSamplesForLink(ctx context.Context, linkID string) (_ int64, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observeQuery("clear_link_samples", time.Now(), &err)

	res, err := db.conn.ExecContext(ctx,
		`UPDATE location_samples SET active = false WHERE link_id = ? AND active`, linkID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear link samples: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ClearSamplesForOwner hides all samples across every link the operator
// owns.
func (db *DB) ClearSamplesForOwner(ctx context.Context, ownerID string) (_ int64, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observeQuery("clear_owner_samples", time.Now(), &err)

	res, err := db.conn.ExecContext(ctx,
		`UPDATE location_samples SET active = false
		 WHERE active AND link_id IN (SELECT id FROM links WHERE owner_id = ?)`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear owner samples: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetStats returns the link and sample counters under the same ownership
// filter as the listing reads, so counts and lists stay consistent for the
// same operator at the same instant.
func (db *DB) GetStats(ctx context.Context, ownerID string, admin bool) (_ *models.StatsResponse, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observeQuery("get_stats", time.Now(), &err)

	var stats models.StatsResponse
	if admin {
		err = db.conn.QueryRowContext(ctx,
			`SELECT (SELECT COUNT(*) FROM links),
			        (SELECT COUNT(*) FROM location_samples WHERE active)`).
			Scan(&stats.TotalLinks, &stats.TotalLocations)
	} else {
		err = db.conn.QueryRowContext(ctx,
			`SELECT (SELECT COUNT(*) FROM links WHERE owner_id = ?),
			        (SELECT COUNT(*) FROM location_samples s JOIN links l ON s.link_id = l.id
			         WHERE l.owner_id = ? AND s.active)`, ownerID, ownerID).
			Scan(&stats.TotalLinks, &stats.TotalLocations)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &stats, nil
}

func prepareSample(sample *models.TrackingSample) {
	if sample.ID == uuid.Nil {
		sample.ID = uuid.New()
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}
	sample.Active = true
}

func collectSamples(rows *sql.Rows) ([]models.TrackingSample, error) {
	samples := make([]models.TrackingSample, 0)
	for rows.Next() {
		var s models.TrackingSample
		var sessionID, userAgent, ip sql.NullString
		if err := rows.Scan(&s.ID, &s.LinkID, &sessionID, &s.Lat, &s.Lng,
			&userAgent, &ip, &s.Timestamp, &s.Active); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		s.SessionID = nullableString(sessionID)
		s.UserAgent = nullableString(userAgent)
		s.IP = nullableString(ip)
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating samples: %w", err)
	}
	return samples, nil
}

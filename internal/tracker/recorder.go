// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

package tracker

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/emora-dev/linkbeacon/internal/database"
	"github.com/emora-dev/linkbeacon/internal/logging"
	"github.com/emora-dev/linkbeacon/internal/metrics"
	"github.com/emora-dev/linkbeacon/internal/models"
)

// CaptureInput carries one location capture into Record, regardless of
// which transport delivered it.
type CaptureInput struct {
	LinkID string
	Lat    float64
	Lng    float64

	// SessionID is set for push-channel captures only. With a session the
	// write is an upsert (latest position wins); without one every capture
	// is a fresh row.
	SessionID *string

	UserAgent *string
	IP        *string
}

// Recorder is the single write path for location samples. Both capture
// adapters build a CaptureInput and call Record; the storage and fan-out
// behavior lives here so the two paths cannot drift.
type Recorder struct {
	db        *database.DB
	publisher message.Publisher
	topic     string
}

// NewRecorder creates a recorder that persists to db and announces
// successful writes on topic.
func NewRecorder(db *database.DB, publisher message.Publisher, topic string) *Recorder {
	return &Recorder{db: db, publisher: publisher, topic: topic}
}

// Record persists one capture and, on success, hands the sample to the
// fan-out bus. The publish is fire-and-forget: a full bus or failed
// delivery never affects the stored row, and a failed write is never
// retried here.
func (r *Recorder) Record(ctx context.Context, input *CaptureInput) (*models.TrackingSample, error) {
	sample := &models.TrackingSample{
		LinkID:    input.LinkID,
		SessionID: input.SessionID,
		Lat:       input.Lat,
		Lng:       input.Lng,
		UserAgent: input.UserAgent,
		IP:        input.IP,
	}

	var err error
	channel := metrics.ChannelFallback
	if input.SessionID != nil && *input.SessionID != "" {
		channel = metrics.ChannelPush
		err = r.db.UpsertSampleBySession(ctx, sample)
	} else {
		sample.SessionID = nil
		err = r.db.InsertSample(ctx, sample)
	}
	metrics.RecordSampleWrite(channel, err)
	if err != nil {
		logging.Err(err).Str("link_id", input.LinkID).Msg("failed to record location sample")
		return nil, fmt.Errorf("failed to record sample: %w", err)
	}

	r.publish(&Event{Type: EventLocationUpdated, Sample: sample})
	return sample, nil
}

// SessionEnded announces that a push-channel session's transport has
// torn down. Advisory only: nothing is written or deleted, operators
// just see the marker go stale.
func (r *Recorder) SessionEnded(sessionID string) {
	r.publish(&Event{Type: EventClientDisconnected, SessionID: sessionID})
}

func (r *Recorder) publish(event *Event) {
	data, err := EncodeEvent(event)
	if err != nil {
		logging.Err(err).Str("event_type", event.Type).Msg("failed to encode capture event")
		return
	}

	msg := message.NewMessage(uuid.New().String(), data)
	if err := r.publisher.Publish(r.topic, msg); err != nil {
		logging.Warn().Err(err).Str("event_type", event.Type).Msg("capture event dropped")
	}
}

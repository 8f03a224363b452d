// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

package websocket

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/emora-dev/linkbeacon/internal/logging"
	"github.com/emora-dev/linkbeacon/internal/tracker"
)

// Forwarder bridges the capture bus to the WebSocket hub. It subscribes
// to the capture topic and turns each event into a hub broadcast, which
// keeps the recorder free of any knowledge of the transport layer.
type Forwarder struct {
	hub        *Hub
	subscriber message.Subscriber
	topic      string

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewForwarder creates a bridge from the given subscriber to the hub.
func NewForwarder(hub *Hub, subscriber message.Subscriber, topic string) *Forwarder {
	return &Forwarder{
		hub:        hub,
		subscriber: subscriber,
		topic:      topic,
	}
}

// Start subscribes to the capture topic and begins forwarding. The
// channels are allocated fresh on every call so a Stop/Start cycle (or
// a supervisor restart after a failed subscribe) gets a clean loop.
func (f *Forwarder) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = true
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	stopCh, doneCh := f.stopCh, f.doneCh
	f.mu.Unlock()

	messages, err := f.subscriber.Subscribe(ctx, f.topic)
	if err != nil {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
		return err
	}

	go f.processMessages(ctx, messages, stopCh, doneCh)

	logging.Info().Str("topic", f.topic).Msg("capture forwarder started")
	return nil
}

// Stop halts forwarding and waits for the loop to drain.
func (f *Forwarder) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	stopCh, doneCh := f.stopCh, f.doneCh
	f.mu.Unlock()

	close(stopCh)
	<-doneCh
	logging.Info().Msg("capture forwarder stopped")
}

func (f *Forwarder) processMessages(ctx context.Context, messages <-chan *message.Message, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			f.handleMessage(msg)
		}
	}
}

// handleMessage acks unconditionally: a payload that cannot be decoded
// will not decode on redelivery either, and broadcast is at-most-once.
func (f *Forwarder) handleMessage(msg *message.Message) {
	defer msg.Ack()

	event, err := tracker.DecodeEvent(msg.Payload)
	if err != nil {
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("failed to decode capture event")
		return
	}

	switch event.Type {
	case tracker.EventLocationUpdated:
		if event.Sample == nil {
			logging.Warn().Str("message_uuid", msg.UUID).Msg("location-updated event without sample")
			return
		}
		f.hub.BroadcastLocationUpdated(event.Sample)
	case tracker.EventClientDisconnected:
		f.hub.BroadcastClientDisconnected(event.SessionID)
	default:
		logging.Debug().Str("event_type", event.Type).Msg("ignoring unknown capture event")
	}
}

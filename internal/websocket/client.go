// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/emora-dev/linkbeacon/internal/logging"
	"github.com/emora-dev/linkbeacon/internal/models"
	"github.com/emora-dev/linkbeacon/internal/tracker"
	"github.com/emora-dev/linkbeacon/internal/validation"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// clientIDCounter hands out monotonically increasing ids so broadcast
// iteration order is stable.
var clientIDCounter atomic.Uint64

// CaptureRecorder is the slice of the tracker the client needs: one
// write operation plus the teardown advisory.
type CaptureRecorder interface {
	Record(ctx context.Context, input *tracker.CaptureInput) (*models.TrackingSample, error)
	SessionEnded(sessionID string)
}

// Client is one WebSocket connection. A connection starts unsubscribed;
// it becomes an operator console on join-admin, or a tracked target on
// its first update-location.
type Client struct {
	id       uint64
	hub      *Hub
	conn     *websocket.Conn
	recorder CaptureRecorder

	// send carries outbound messages to the write pump. The hub closes it
	// through closeSend; sendMu keeps that close from racing a concurrent
	// trySend from the read pump.
	send       chan Message
	sendMu     sync.Mutex
	sendClosed bool

	// sessionID identifies this connection as a push-capture session.
	// Assigned at connect time, it is what makes repeated updates from
	// one open page collapse into a single moving row.
	sessionID string
	tracked   bool

	userAgent *string
	ip        *string
}

// NewClient wraps an upgraded connection. userAgent and ip are captured
// from the upgrade request, best effort.
func NewClient(hub *Hub, conn *websocket.Conn, recorder CaptureRecorder, userAgent, ip *string) *Client {
	return &Client{
		id:        clientIDCounter.Add(1),
		hub:       hub,
		conn:      conn,
		send:      make(chan Message, 256),
		recorder:  recorder,
		sessionID: uuid.New().String(),
		userAgent: userAgent,
		ip:        ip,
	}
}

// ID returns the client's ordering id.
func (c *Client) ID() uint64 {
	return c.id
}

// SessionID returns the transport session id assigned at connect time.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Start begins the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) readPump() {
	defer func() {
		if c.tracked {
			c.recorder.SessionEnded(c.sessionID)
		}
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *inboundMessage) {
	switch msg.Type {
	case MessageTypeUpdateLocation:
		c.handleLocationUpdate(msg.Data)
	case MessageTypeJoinAdmin:
		c.hub.Subscribe <- c
	case MessageTypePing:
		c.trySend(Message{Type: MessageTypePong})
	default:
		logging.Debug().Str("message_type", msg.Type).Msg("ignoring unknown websocket message")
	}
}

// handleLocationUpdate records one push capture under this connection's
// session. Invalid payloads are rejected before any write; a failed
// write is logged and dropped, the transport stays open either way.
func (c *Client) handleLocationUpdate(data json.RawMessage) {
	var req models.CaptureRequest
	if err := json.Unmarshal(data, &req); err != nil {
		logging.Warn().Err(err).Msg("malformed update-location payload")
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		logging.Warn().Err(err).Msg("rejected update-location payload")
		return
	}

	userAgent := c.userAgent
	if req.UserAgent != "" {
		ua := req.UserAgent
		userAgent = &ua
	}

	session := c.sessionID
	_, err := c.recorder.Record(context.Background(), &tracker.CaptureInput{
		LinkID:    req.LinkID,
		Lat:       req.Lat,
		Lng:       req.Lng,
		SessionID: &session,
		UserAgent: userAgent,
		IP:        c.ip,
	})
	if err != nil {
		return
	}
	c.tracked = true
}

// trySend queues an outbound message. Returns false without blocking
// when the buffer is full or the hub has already torn the client down.
func (c *Client) trySend(msg Message) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// closeSend shuts the outbound queue exactly once. After it returns,
// trySend is a no-op.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Msg("failed to write websocket message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

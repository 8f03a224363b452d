// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/emora-dev/linkbeacon/internal/logging"
	"github.com/emora-dev/linkbeacon/internal/websocket"
)

// HubService runs the WebSocket hub under supervision.
type HubService struct {
	hub *websocket.Hub
}

// NewHubService wraps a hub as a suture service.
func NewHubService(hub *websocket.Hub) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	logging.Info().Str("component", "websocket-hub").Msg("service starting")
	return s.hub.RunWithContext(ctx)
}

// ForwarderService runs the capture-event forwarder under supervision.
type ForwarderService struct {
	forwarder *websocket.Forwarder
}

// NewForwarderService wraps a forwarder as a suture service.
func NewForwarderService(forwarder *websocket.Forwarder) *ForwarderService {
	return &ForwarderService{forwarder: forwarder}
}

// Serve implements suture.Service. The forwarder has Start/Stop
// lifecycle; Serve adapts it to run-until-canceled.
func (s *ForwarderService) Serve(ctx context.Context) error {
	if err := s.forwarder.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.forwarder.Stop()
	return ctx.Err()
}

// HTTPService runs an http.Server under supervision with graceful
// shutdown on context cancellation.
type HTTPService struct {
	server          *http.Server
	shutdownTimeout time.Duration
}

// NewHTTPService wraps an http.Server as a suture service.
func NewHTTPService(server *http.Server, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.server.Addr).Msg("http server listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("http server shutdown incomplete")
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logging.Err(err).Msg("http server failed")
		return err
	}
}

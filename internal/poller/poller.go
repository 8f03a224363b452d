// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

// Package poller implements the interval re-read side of the operator
// console. Where the push channel streams deltas, a poll cycle fetches
// the full scoped state and replaces the previous snapshot wholesale;
// nothing is ever merged, so a poll-only consumer converges to the same
// state a push consumer holds.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/emora-dev/linkbeacon/internal/logging"
)

// FetchFunc reads the complete current state.
type FetchFunc func(ctx context.Context) (interface{}, error)

// ApplyFunc replaces the consumer's snapshot with a fresh read. It is
// never called with partial state.
type ApplyFunc func(snapshot interface{})

// Poller re-reads state on a fixed interval and hands each successful
// full read to apply. A failed fetch leaves the previous snapshot in
// place; the next cycle replaces it.
type Poller struct {
	name     string
	interval time.Duration
	fetch    FetchFunc
	apply    ApplyFunc

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a poller. name labels log lines only.
func New(name string, interval time.Duration, fetch FetchFunc, apply ApplyFunc) *Poller {
	return &Poller{
		name:     name,
		interval: interval,
		fetch:    fetch,
		apply:    apply,
	}
}

// Start begins the polling loop with an immediate first cycle.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopChan = make(chan struct{})
	p.mu.Unlock()

	logging.Info().Str("poller", p.name).Dur("interval", p.interval).Msg("starting poller")

	p.wg.Add(1)
	go p.pollLoop(ctx)
	return nil
}

// Stop halts the loop and waits for the in-flight cycle to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	logging.Info().Str("poller", p.name).Msg("poller stopped")
}

// Serve runs the poller until ctx is canceled. This is the supervised
// entry point; Start/Stop remain for direct use.
func (p *Poller) Serve(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	p.Stop()
	return ctx.Err()
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	snapshot, err := p.fetch(ctx)
	if err != nil {
		logging.Warn().Err(err).Str("poller", p.name).Msg("poll cycle failed, keeping previous snapshot")
		return
	}
	p.apply(snapshot)
}

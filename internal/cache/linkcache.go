// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

// Package cache provides a BadgerDB-backed read cache for link metadata.
// The public link endpoint is the hottest path in the system (every
// delivered link hits it), so lookups are served from Badger with a TTL
// and fall back to the primary store on miss.
package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/emora-dev/linkbeacon/internal/config"
	"github.com/emora-dev/linkbeacon/internal/models"
)

const linkKeyPrefix = "link:"

// ErrMiss is returned when the requested link is not cached.
var ErrMiss = errors.New("cache miss")

// LinkCache stores public link views keyed by link id.
type LinkCache struct {
	db  *badger.DB
	ttl time.Duration
}

// New opens the cache store. With cfg.InMemory set the store lives
// entirely in RAM, which is what the tests use.
func New(cfg *config.CacheConfig) (*LinkCache, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open link cache: %w", err)
	}
	return &LinkCache{db: db, ttl: cfg.TTL}, nil
}

// Close flushes and closes the underlying store.
func (c *LinkCache) Close() error {
	return c.db.Close()
}

// Get returns the cached link or ErrMiss.
func (c *LinkCache) Get(id string) (*models.TrackingLink, error) {
	var link models.TrackingLink
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(linkKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrMiss
		}
		if err != nil {
			return fmt.Errorf("get cached link: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &link)
		})
	})
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// Set stores a link under the configured TTL.
func (c *LinkCache) Set(link *models.TrackingLink) error {
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("marshal link: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(linkKeyPrefix+link.ID), data)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Invalidate drops a link from the cache. Called on update and delete so
// stale metadata never outlives a write by more than one request.
func (c *LinkCache) Invalidate(id string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(linkKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

package database

import (
	"context"
	"sync"
	"testing"

	"github.com/emora-dev/linkbeacon/internal/models"
)

func TestUpsertSameSessionUpdatesInPlace(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner@example.org", models.RoleUser)
	seedLink(t, db, "l1", owner)

	session := "s1"
	first := &models.TrackingSample{LinkID: "l1", SessionID: &session, Lat: 10.0, Lng: 20.0, UserAgent: strPtr("ua-1")}
	if err := db.UpsertSampleBySession(ctx, first); err != nil {
		t.Fatalf("first upsert error: %v", err)
	}

	second := &models.TrackingSample{LinkID: "l1", SessionID: &session, Lat: 10.5, Lng: 20.5, UserAgent: strPtr("ua-2")}
	if err := db.UpsertSampleBySession(ctx, second); err != nil {
		t.Fatalf("second upsert error: %v", err)
	}

	samples, err := db.ListSamplesForOwner(ctx, owner.ID.String())
	if err != nil {
		t.Fatalf("ListSamplesForOwner() error: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("got %d rows for session %s, want exactly 1", len(samples), session)
	}
	got := samples[0]
	if got.Lat != 10.5 || got.Lng != 20.5 {
		t.Errorf("row holds lat=%v lng=%v, want the second call's values", got.Lat, got.Lng)
	}
	if got.UserAgent == nil || *got.UserAgent != "ua-2" {
		t.Errorf("user agent = %v, want ua-2", got.UserAgent)
	}
	if got.ID != first.ID {
		t.Errorf("row id changed across upserts: %s -> %s", first.ID, got.ID)
	}
}

func TestFallbackInsertsNeverDeduplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner@example.org", models.RoleUser)
	seedLink(t, db, "l1", owner)

	for i := 0; i < 3; i++ {
		if err := db.InsertSample(ctx, &models.TrackingSample{LinkID: "l1", Lat: 1, Lng: 2}); err != nil {
			t.Fatalf("InsertSample() #%d error: %v", i, err)
		}
	}

	samples, err := db.ListSamplesForOwner(ctx, owner.ID.String())
	if err != nil {
		t.Fatalf("ListSamplesForOwner() error: %v", err)
	}
	if len(samples) != 3 {
		t.Errorf("got %d rows after 3 identical fallback captures, want 3", len(samples))
	}
	for _, s := range samples {
		if s.SessionID != nil {
			t.Errorf("fallback sample carries a session id: %+v", s)
		}
	}
}

func TestOwnershipFilterExcludesOtherOperators(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	operatorA := seedUser(t, db, "a@example.org", models.RoleUser)
	operatorB := seedUser(t, db, "b@example.org", models.RoleUser)
	seedLink(t, db, "l1", operatorA)

	if err := db.InsertSample(ctx, &models.TrackingSample{LinkID: "l1", Lat: 1, Lng: 2}); err != nil {
		t.Fatalf("InsertSample() error: %v", err)
	}

	own, err := db.ListSamplesForOwner(ctx, operatorA.ID.String())
	if err != nil {
		t.Fatalf("ListSamplesForOwner(A) error: %v", err)
	}
	if len(own) != 1 {
		t.Errorf("owner sees %d samples, want 1", len(own))
	}

	foreign, err := db.ListSamplesForOwner(ctx, operatorB.ID.String())
	if err != nil {
		t.Fatalf("ListSamplesForOwner(B) error: %v", err)
	}
	if len(foreign) != 0 {
		t.Errorf("operator B sees %d samples of A's link, want 0", len(foreign))
	}

	all, err := db.ListAllSamples(ctx)
	if err != nil {
		t.Fatalf("ListAllSamples() error: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("admin listing has %d samples, want 1", len(all))
	}
}

func TestClearSamplesForLinkSoftDeletes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner@example.org", models.RoleUser)
	seedLink(t, db, "l1", owner)
	seedLink(t, db, "l2", owner)

	if err := db.InsertSample(ctx, &models.TrackingSample{LinkID: "l1", Lat: 1, Lng: 2}); err != nil {
		t.Fatalf("InsertSample() error: %v", err)
	}
	if err := db.InsertSample(ctx, &models.TrackingSample{LinkID: "l2", Lat: 3, Lng: 4}); err != nil {
		t.Fatalf("InsertSample() error: %v", err)
	}

	n, err := db.ClearSamplesForLink(ctx, "l1")
	if err != nil {
		t.Fatalf("ClearSamplesForLink() error: %v", err)
	}
	if n != 1 {
		t.Errorf("cleared %d rows, want 1", n)
	}

	samples, err := db.ListSamplesForOwner(ctx, owner.ID.String())
	if err != nil {
		t.Fatalf("ListSamplesForOwner() error: %v", err)
	}
	if len(samples) != 1 || samples[0].LinkID != "l2" {
		t.Errorf("after clearing l1, remaining samples = %+v, want only l2's", samples)
	}
}

func TestClearSamplesForOwnerScopesToOwnLinks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	operatorA := seedUser(t, db, "a@example.org", models.RoleUser)
	operatorB := seedUser(t, db, "b@example.org", models.RoleUser)
	seedLink(t, db, "la", operatorA)
	seedLink(t, db, "lb", operatorB)

	if err := db.InsertSample(ctx, &models.TrackingSample{LinkID: "la", Lat: 1, Lng: 2}); err != nil {
		t.Fatalf("InsertSample() error: %v", err)
	}
	if err := db.InsertSample(ctx, &models.TrackingSample{LinkID: "lb", Lat: 3, Lng: 4}); err != nil {
		t.Fatalf("InsertSample() error: %v", err)
	}

	if _, err := db.ClearSamplesForOwner(ctx, operatorA.ID.String()); err != nil {
		t.Fatalf("ClearSamplesForOwner() error: %v", err)
	}

	remaining, err := db.ListSamplesForOwner(ctx, operatorB.ID.String())
	if err != nil {
		t.Fatalf("ListSamplesForOwner(B) error: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("operator B lost samples to A's clear: %+v", remaining)
	}
}

func TestConcurrentUpsertsSameSession(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner@example.org", models.RoleUser)
	seedLink(t, db, "l1", owner)

	session := "s-race"
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s := session
			_ = db.UpsertSampleBySession(ctx, &models.TrackingSample{
				LinkID: "l1", SessionID: &s, Lat: float64(n), Lng: float64(n),
			})
		}(i)
	}
	wg.Wait()

	samples, err := db.ListSamplesForOwner(ctx, owner.ID.String())
	if err != nil {
		t.Fatalf("ListSamplesForOwner() error: %v", err)
	}
	if len(samples) != 1 {
		t.Errorf("concurrent upserts for one session produced %d rows, want 1", len(samples))
	}
}

// Copyright (c) 2025 Berik Ashimov

package main

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM allocations`); err != nil {
		t.Fatalf("reset allocations: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM address_spaces`); err != nil {
		t.Fatalf("reset spaces: %v", err)
	}
	return db
}

func TestAllocateFirstFit(t *testing.T) {
	db := openTestDB(t)
	ipam := newIPAMStore(db)
	ctx := context.Background()

	space, err := ipam.CreateSpace("default", "lab", "10.40.0.0/16")
	if err != nil {
		t.Fatalf("create space: %v", err)
	}
	if !ipam.SpacesAvailable("default") {
		t.Fatalf("expected spaces available")
	}

	first, err := ipam.Allocate(ctx, AllocateRequest{
		EnvironmentID: "default", AddressSpaceID: space.ID, PrefixLength: 24, Label: "web",
	})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if first.CIDR != "10.40.0.0/24" {
		t.Fatalf("first block: %s", first.CIDR)
	}
	if first.Gateway != "10.40.0.1" {
		t.Fatalf("gateway: %s", first.Gateway)
	}

	second, err := ipam.Allocate(ctx, AllocateRequest{
		EnvironmentID: "default", AddressSpaceID: space.ID, PrefixLength: 24, Label: "db",
	})
	if err != nil {
		t.Fatalf("allocate second: %v", err)
	}
	if second.CIDR != "10.40.1.0/24" {
		t.Fatalf("second block: %s", second.CIDR)
	}

	a, _ := rangeForCIDR(first.CIDR)
	b, _ := rangeForCIDR(second.CIDR)
	if rangesOverlap(a, b) {
		t.Fatalf("allocations overlap: %s vs %s", first.CIDR, second.CIDR)
	}
}

func TestAllocateReusesReleasedBlock(t *testing.T) {
	db := openTestDB(t)
	ipam := newIPAMStore(db)
	ctx := context.Background()

	space, err := ipam.CreateSpace("default", "lab", "10.50.0.0/23")
	if err != nil {
		t.Fatalf("create space: %v", err)
	}

	first, err := ipam.Allocate(ctx, AllocateRequest{EnvironmentID: "default", AddressSpaceID: space.ID, PrefixLength: 24})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if _, err := ipam.Allocate(ctx, AllocateRequest{EnvironmentID: "default", AddressSpaceID: space.ID, PrefixLength: 24}); err != nil {
		t.Fatalf("allocate second: %v", err)
	}
	if _, err := ipam.Allocate(ctx, AllocateRequest{EnvironmentID: "default", AddressSpaceID: space.ID, PrefixLength: 24}); err != errSpaceExhausted {
		t.Fatalf("expected exhaustion, got %v", err)
	}

	if err := ipam.Release(ctx, first.AllocationID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := ipam.Release(ctx, first.AllocationID); err != errAllocationNotFound {
		t.Fatalf("double release should fail, got %v", err)
	}

	again, err := ipam.Allocate(ctx, AllocateRequest{EnvironmentID: "default", AddressSpaceID: space.ID, PrefixLength: 24})
	if err != nil {
		t.Fatalf("allocate after release: %v", err)
	}
	if again.CIDR != first.CIDR {
		t.Fatalf("released block should be reused: %s vs %s", again.CIDR, first.CIDR)
	}
}

func TestAllocateValidation(t *testing.T) {
	db := openTestDB(t)
	ipam := newIPAMStore(db)
	ctx := context.Background()

	if _, err := ipam.CreateSpace("default", "bad", "10.0.0.0/40"); err == nil {
		t.Fatalf("expected invalid space cidr to fail")
	}
	space, err := ipam.CreateSpace("default", "lab", "10.60.0.0/16")
	if err != nil {
		t.Fatalf("create space: %v", err)
	}

	if _, err := ipam.Allocate(ctx, AllocateRequest{EnvironmentID: "default", AddressSpaceID: space.ID, PrefixLength: 8}); err == nil {
		t.Fatalf("prefix below range should fail")
	}
	if _, err := ipam.Allocate(ctx, AllocateRequest{EnvironmentID: "default", AddressSpaceID: space.ID, PrefixLength: 30}); err == nil {
		t.Fatalf("prefix above range should fail")
	}
	if _, err := ipam.Allocate(ctx, AllocateRequest{EnvironmentID: "default", AddressSpaceID: "missing", PrefixLength: 24}); err != errSpaceNotFound {
		t.Fatalf("expected space not found, got %v", err)
	}
	if _, err := ipam.Allocate(ctx, AllocateRequest{EnvironmentID: "other", AddressSpaceID: space.ID, PrefixLength: 24}); err != errSpaceNotFound {
		t.Fatalf("space lookup must be scoped to the environment, got %v", err)
	}
}

func TestDeleteSpace(t *testing.T) {
	db := openTestDB(t)
	ipam := newIPAMStore(db)

	space, err := ipam.CreateSpace("default", "lab", "10.70.0.0/16")
	if err != nil {
		t.Fatalf("create space: %v", err)
	}
	if err := ipam.DeleteSpace(space.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := ipam.DeleteSpace(space.ID); err != errSpaceNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if ipam.SpacesAvailable("default") {
		t.Fatalf("expected no spaces")
	}
}

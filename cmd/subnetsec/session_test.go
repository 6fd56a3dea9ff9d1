// Copyright (c) 2025 Berik Ashimov

package main

import "testing"

func seedSession(t *testing.T, store *sessionStore) *editSession {
	t.Helper()
	network := NetworkDocument{Subnets: []SubnetRecord{{
		"name":            "web",
		"cidr":            "10.0.1.0/24",
		"gateway":         "10.0.1.1",
		"security_groups": []any{"web-sg"},
	}}}
	security := SecurityDocument{"security_groups": []SecurityEntity{{
		"name":          "web-sg",
		"inbound_rules": []any{map[string]any{"protocol": "tcp", "port_range": "443"}},
	}}}
	return store.Create(ProviderAWS, network, security, true)
}

func TestSessionViewsAreCopies(t *testing.T) {
	store := newSessionStore()
	session := seedSession(t, store)

	views, _, err := store.Views(session.ID)
	if err != nil {
		t.Fatalf("views: %v", err)
	}
	views[0].CIDR = "mutated"
	views[0].InboundRules[0]["protocol"] = "udp"

	fresh, _, _ := store.Views(session.ID)
	if fresh[0].CIDR != "10.0.1.0/24" {
		t.Fatalf("caller mutation leaked into session: %s", fresh[0].CIDR)
	}
	if fresh[0].InboundRules[0]["protocol"] != "tcp" {
		t.Fatalf("rule mutation leaked into session")
	}
}

func TestSessionSubnetLifecycle(t *testing.T) {
	store := newSessionStore()
	session := seedSession(t, store)

	views, err := store.Update(session.ID, func(views []SubnetView) ([]SubnetView, error) {
		return addSubnetView(views, "db", true)
	})
	if err != nil {
		t.Fatalf("add subnet: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	if !views[1].IPAMMode {
		t.Fatalf("new empty subnet with spaces available should be in ipam mode")
	}

	if _, err := store.Update(session.ID, func(views []SubnetView) ([]SubnetView, error) {
		return addSubnetView(views, "db", true)
	}); err == nil {
		t.Fatalf("duplicate subnet name should fail")
	}

	cidr := "10.0.2.0/24"
	views, err = store.Update(session.ID, func(views []SubnetView) ([]SubnetView, error) {
		return patchSubnetView(views, "db", subnetPatch{CIDR: &cidr}, true)
	})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if views[1].IPAMMode {
		t.Fatalf("subnet with a cidr must leave ipam mode")
	}

	var releasedID string
	views, err = store.Update(session.ID, func(views []SubnetView) ([]SubnetView, error) {
		next, id, err := removeSubnetView(views, "db")
		releasedID = id
		return next, err
	})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(views) != 1 || releasedID != "" {
		t.Fatalf("remove result: %d views, allocation %q", len(views), releasedID)
	}
}

func TestSessionRuleEditing(t *testing.T) {
	store := newSessionStore()
	session := seedSession(t, store)

	views, err := store.Update(session.ID, func(views []SubnetView) ([]SubnetView, error) {
		return addRuleToView(views, "web", "outbound", RuleRecord{"protocol": "tcp", "port_range": "25"})
	})
	if err != nil {
		t.Fatalf("add rule: %v", err)
	}
	if len(views[0].OutboundRules) != 1 {
		t.Fatalf("outbound rules: %v", views[0].OutboundRules)
	}

	views, err = store.Update(session.ID, func(views []SubnetView) ([]SubnetView, error) {
		return removeRuleFromView(views, "web", "inbound", 0)
	})
	if err != nil {
		t.Fatalf("remove rule: %v", err)
	}
	if len(views[0].InboundRules) != 0 {
		t.Fatalf("inbound rules: %v", views[0].InboundRules)
	}

	if _, err := store.Update(session.ID, func(views []SubnetView) ([]SubnetView, error) {
		return removeRuleFromView(views, "web", "inbound", 5)
	}); err == nil {
		t.Fatalf("out of range rule index should fail")
	}
	if _, err := store.Update(session.ID, func(views []SubnetView) ([]SubnetView, error) {
		return addRuleToView(views, "web", "sideways", RuleRecord{})
	}); err == nil {
		t.Fatalf("invalid direction should fail")
	}
}

func TestStaleAllocationIsDiscarded(t *testing.T) {
	store := newSessionStore()
	session := seedSession(t, store)

	if _, err := store.Update(session.ID, func(views []SubnetView) ([]SubnetView, error) {
		return addSubnetView(views, "db", true)
	}); err != nil {
		t.Fatalf("add subnet: %v", err)
	}

	older, err := store.BeginAllocation(session.ID, "db")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	newer, err := store.BeginAllocation(session.ID, "db")
	if err != nil {
		t.Fatalf("begin newer: %v", err)
	}

	if _, err := store.CompleteAllocation(session.ID, "db", older, Allocation{
		CIDR: "10.9.0.0/24", Gateway: "10.9.0.1", AllocationID: "stale",
	}); err != errStaleAllocation {
		t.Fatalf("expected stale response to be discarded, got %v", err)
	}

	view, err := store.CompleteAllocation(session.ID, "db", newer, Allocation{
		CIDR: "10.9.1.0/24", Gateway: "10.9.1.1", AllocationID: "live",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if view.CIDR != "10.9.1.0/24" || view.IPAMAllocationID != "live" || view.IPAMMode {
		t.Fatalf("allocation not applied: %+v", view)
	}

	views, _, _ := store.Views(session.ID)
	_, allocationID, err := removeSubnetView(views, "db")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if allocationID != "live" {
		t.Fatalf("removal must surface the allocation id, got %q", allocationID)
	}
}

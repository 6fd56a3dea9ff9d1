// Copyright (c) 2025 Berik Ashimov

package main

import "testing"

func TestCIDRValidity(t *testing.T) {
	valid := []string{"10.0.0.0/24", "10.0.0.0/0", "0.0.0.0/32", "255.255.255.255/32", "192.168.1.5/31"}
	for _, cidr := range valid {
		if !isValidCIDR(cidr) {
			t.Fatalf("expected %s valid", cidr)
		}
	}
	invalid := []string{"", "10.0.0.0", "10.0.0.0/33", "999.0.0.0/24", "10.0.0/24", "10.0.0.0.0/24", "a.b.c.d/8", "10.0.0.256/16"}
	for _, cidr := range invalid {
		if isValidCIDR(cidr) {
			t.Fatalf("expected %s invalid", cidr)
		}
	}
}

func TestComputeCIDR(t *testing.T) {
	info := computeCIDR("10.0.0.0/24")
	if info.Network != "10.0.0.0" {
		t.Fatalf("network: %s", info.Network)
	}
	if info.Broadcast != "10.0.0.255" {
		t.Fatalf("broadcast: %s", info.Broadcast)
	}
	if info.SubnetMask != "255.255.255.0" {
		t.Fatalf("mask: %s", info.SubnetMask)
	}
	if info.HostCount != 254 {
		t.Fatalf("host count: %d", info.HostCount)
	}
	if !info.IsPrivate {
		t.Fatalf("10.0.0.0/24 should be private")
	}

	if computeCIDR("203.0.113.0/24").IsPrivate {
		t.Fatalf("203.0.113.0/24 should be public")
	}
	if got := computeCIDR("172.20.1.0/24"); !got.IsPrivate {
		t.Fatalf("172.20.1.0/24 should be private")
	}
	if got := computeCIDR("172.32.1.0/24"); got.IsPrivate {
		t.Fatalf("172.32.1.0/24 should be public")
	}
}

func TestComputeCIDRSmallPrefixes(t *testing.T) {
	if got := computeCIDR("10.0.0.5/31").HostCount; got != 2 {
		t.Fatalf("/31 host count: %d", got)
	}
	if got := computeCIDR("10.0.0.5/32").HostCount; got != 1 {
		t.Fatalf("/32 host count: %d", got)
	}
	info := computeCIDR("10.0.0.0/0")
	if info.SubnetMask != "0.0.0.0" {
		t.Fatalf("/0 mask: %s", info.SubnetMask)
	}
	if info.Broadcast != "255.255.255.255" {
		t.Fatalf("/0 broadcast: %s", info.Broadcast)
	}
	if info.HostCount != (1<<32)-2 {
		t.Fatalf("/0 host count: %d", info.HostCount)
	}
}

func TestComputeCIDRPrivateUsesInputAddress(t *testing.T) {
	// Classification reads the address as typed, not the derived network.
	info := computeCIDR("192.168.50.9/8")
	if info.Network != "192.0.0.0" {
		t.Fatalf("network: %s", info.Network)
	}
	if !info.IsPrivate {
		t.Fatalf("192.168.50.9/8 should classify on the input octets")
	}
}

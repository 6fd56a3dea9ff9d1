// Copyright (c) 2025 Berik Ashimov

package main

import "strings"

type Provider string

const (
	ProviderAWS     Provider = "aws"
	ProviderAzure   Provider = "azure"
	ProviderGCP     Provider = "gcp"
	ProviderOCI     Provider = "oci"
	ProviderProxmox Provider = "proxmox"
)

// providerSpec describes how one provider shapes its two documents: where a
// subnet names its security container, where the containers live in the
// security document, and how rules are keyed inside a container.
type providerSpec struct {
	SecurityField    string
	EntityArrayKey   string
	InboundKey       string
	OutboundKey      string
	ListAssociation  bool
	SupportsOutbound bool
	MatchByTags      bool
	SharedRules      bool
}

var providerSpecs = map[Provider]providerSpec{
	ProviderAWS: {
		SecurityField:    "security_groups",
		EntityArrayKey:   "security_groups",
		InboundKey:       "inbound_rules",
		OutboundKey:      "outbound_rules",
		ListAssociation:  true,
		SupportsOutbound: true,
	},
	ProviderAzure: {
		SecurityField:    "nsg",
		EntityArrayKey:   "network_security_groups",
		InboundKey:       "inbound_rules",
		OutboundKey:      "outbound_rules",
		SupportsOutbound: true,
	},
	ProviderGCP: {
		SecurityField:   "firewall_tags",
		EntityArrayKey:  "firewall_rules",
		InboundKey:      "allowed",
		ListAssociation: true,
		MatchByTags:     true,
	},
	ProviderOCI: {
		SecurityField:    "security_list",
		EntityArrayKey:   "security_lists",
		InboundKey:       "ingress_rules",
		OutboundKey:      "egress_rules",
		SupportsOutbound: true,
	},
	ProviderProxmox: {
		SecurityField:    "firewall_group",
		EntityArrayKey:   "firewall_groups",
		InboundKey:       "rules",
		OutboundKey:      "rules",
		SupportsOutbound: true,
		SharedRules:      true,
	},
}

// genericSpec keeps the join total for providers we have no table entry for.
// The association will come out empty for such documents; that is a deliberate
// trade-off, not a failure mode.
var genericSpec = providerSpec{
	SecurityField:    "security_groups",
	EntityArrayKey:   "security_groups",
	InboundKey:       "inbound_rules",
	OutboundKey:      "outbound_rules",
	ListAssociation:  true,
	SupportsOutbound: true,
}

func parseProvider(raw string) Provider {
	return Provider(strings.ToLower(strings.TrimSpace(raw)))
}

func specFor(p Provider) providerSpec {
	if spec, ok := providerSpecs[p]; ok {
		return spec
	}
	return genericSpec
}

func knownProvider(p Provider) bool {
	_, ok := providerSpecs[p]
	return ok
}

func providerNames() []string {
	return []string{
		string(ProviderAWS),
		string(ProviderAzure),
		string(ProviderGCP),
		string(ProviderOCI),
		string(ProviderProxmox),
	}
}

// Copyright (c) 2025 Berik Ashimov

package main

import "strings"

// SubnetRecord and SecurityEntity stay schemaless because every provider
// names its fields differently; the providerSpec table is the only place
// that knows which keys matter.
type SubnetRecord map[string]any

type SecurityEntity map[string]any

type RuleRecord map[string]any

type NetworkDocument struct {
	Subnets []SubnetRecord `json:"subnets" yaml:"subnets"`
}

// SecurityDocument holds a single top-level entity array whose key name is
// provider-specific (security_groups, network_security_groups, ...).
type SecurityDocument map[string][]SecurityEntity

// SubnetView is the merged, editable per-subnet record. It lives only for
// one edit session and is rebuilt from the two documents on every load.
type SubnetView struct {
	Name                string       `json:"name" yaml:"name"`
	CIDR                string       `json:"cidr" yaml:"cidr"`
	Gateway             string       `json:"gateway" yaml:"gateway"`
	Type                string       `json:"type,omitempty" yaml:"type,omitempty"`
	AZ                  string       `json:"az,omitempty" yaml:"az,omitempty"`
	Region              string       `json:"region,omitempty" yaml:"region,omitempty"`
	ServiceEndpoints    []string     `json:"service_endpoints,omitempty" yaml:"service_endpoints,omitempty"`
	PrivateGoogleAccess bool         `json:"private_google_access" yaml:"private_google_access"`
	SecurityAssociation string       `json:"security_association" yaml:"security_association"`
	IPAMAllocationID    string       `json:"ipam_allocation_id,omitempty" yaml:"ipam_allocation_id,omitempty"`
	IPAMMode            bool         `json:"ipam_mode" yaml:"ipam_mode"`
	InboundRules        []RuleRecord `json:"inbound_rules" yaml:"inbound_rules"`
	OutboundRules       []RuleRecord `json:"outbound_rules" yaml:"outbound_rules"`
}

func recordString(rec map[string]any, key string) string {
	v, ok := rec[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

func recordBool(rec map[string]any, key string) bool {
	v, ok := rec[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func recordStringList(rec map[string]any, key string) []string {
	v, ok := rec[key]
	if !ok || v == nil {
		return nil
	}
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func recordRules(rec map[string]any, key string) []RuleRecord {
	v, ok := rec[key]
	if !ok || v == nil {
		return nil
	}
	switch list := v.(type) {
	case []RuleRecord:
		return copyRules(list)
	case []any:
		out := make([]RuleRecord, 0, len(list))
		for _, item := range list {
			switch m := item.(type) {
			case map[string]any:
				out = append(out, copyRule(m))
			case RuleRecord:
				out = append(out, copyRule(m))
			}
		}
		return out
	}
	return nil
}

func copyRule(m map[string]any) RuleRecord {
	out := make(RuleRecord, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyRules(rules []RuleRecord) []RuleRecord {
	out := make([]RuleRecord, 0, len(rules))
	for _, r := range rules {
		out = append(out, copyRule(r))
	}
	return out
}

func copyView(v SubnetView) SubnetView {
	out := v
	out.ServiceEndpoints = append([]string(nil), v.ServiceEndpoints...)
	out.InboundRules = copyRules(v.InboundRules)
	out.OutboundRules = copyRules(v.OutboundRules)
	return out
}

func copyViews(views []SubnetView) []SubnetView {
	out := make([]SubnetView, 0, len(views))
	for _, v := range views {
		out = append(out, copyView(v))
	}
	return out
}

// splitAssociation turns a comma-joined association back into its tokens,
// dropping empties so "" round-trips to an empty list.
func splitAssociation(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// associationMatchKey is the first token of the association; it is the only
// token used to locate a security entity.
func associationMatchKey(raw string) string {
	parts := splitAssociation(raw)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

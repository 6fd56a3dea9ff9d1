// Copyright (c) 2025 Berik Ashimov

package main

import "strings"

// joinDocuments merges a network document and a security document into the
// unified per-subnet view. It never fails: unknown providers fall back to the
// generic field map, and an association with no matching entity simply joins
// empty rule sets; a freshly typed name mid-edit is normal, not an error.
func joinDocuments(network NetworkDocument, security SecurityDocument, provider Provider, spacesAvailable bool) []SubnetView {
	spec := specFor(provider)
	entities := security[spec.EntityArrayKey]

	views := make([]SubnetView, 0, len(network.Subnets))
	for _, rec := range network.Subnets {
		view := SubnetView{
			Name:                recordString(rec, "name"),
			CIDR:                recordString(rec, "cidr"),
			Gateway:             recordString(rec, "gateway"),
			Type:                recordString(rec, "type"),
			AZ:                  recordString(rec, "az"),
			Region:              recordString(rec, "region"),
			ServiceEndpoints:    recordStringList(rec, "service_endpoints"),
			PrivateGoogleAccess: recordBool(rec, "private_google_access"),
			IPAMAllocationID:    recordString(rec, "ipam_allocation_id"),
			InboundRules:        []RuleRecord{},
			OutboundRules:       []RuleRecord{},
		}

		if spec.ListAssociation {
			view.SecurityAssociation = strings.Join(recordStringList(rec, spec.SecurityField), ",")
		} else {
			view.SecurityAssociation = recordString(rec, spec.SecurityField)
		}

		if entity, ok := matchEntity(entities, associationMatchKey(view.SecurityAssociation), spec); ok {
			view.InboundRules = ensureRules(recordRules(entity, spec.InboundKey))
			if spec.SupportsOutbound && !spec.SharedRules {
				view.OutboundRules = ensureRules(recordRules(entity, spec.OutboundKey))
			}
		}

		view.IPAMMode = spacesAvailable && view.CIDR == ""
		views = append(views, view)
	}
	return views
}

// matchEntity finds the security entity governing a subnet. Tag-matching
// providers look for key membership in target_tags; everyone else matches on
// the entity name. First match wins.
func matchEntity(entities []SecurityEntity, key string, spec providerSpec) (SecurityEntity, bool) {
	if key == "" {
		return nil, false
	}
	for _, entity := range entities {
		if spec.MatchByTags {
			for _, tag := range recordStringList(entity, "target_tags") {
				if tag == key {
					return entity, true
				}
			}
			continue
		}
		if recordString(entity, "name") == key {
			return entity, true
		}
	}
	return nil, false
}

func ensureRules(rules []RuleRecord) []RuleRecord {
	if rules == nil {
		return []RuleRecord{}
	}
	return rules
}

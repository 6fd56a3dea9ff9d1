// Copyright (c) 2025 Berik Ashimov

package main

// splitViews decomposes the edited view array back into the two source
// documents. The two outputs are built independently; joining them again with
// no further edits reproduces the same views, ipamMode aside.
func splitViews(views []SubnetView, provider Provider) (NetworkDocument, SecurityDocument) {
	spec := specFor(provider)

	network := NetworkDocument{Subnets: make([]SubnetRecord, 0, len(views))}
	for _, view := range views {
		network.Subnets = append(network.Subnets, subnetRecordFor(view, provider, spec))
	}

	entities := make([]SecurityEntity, 0, len(views))
	seen := map[string]bool{}
	for _, view := range views {
		key := associationMatchKey(view.SecurityAssociation)
		if key == "" || seen[key] {
			// First writer wins: when two subnets share an association name
			// with divergent rule sets, only the first subnet's rules survive.
			continue
		}
		seen[key] = true
		entities = append(entities, securityEntityFor(view, key, spec))
	}

	return network, SecurityDocument{spec.EntityArrayKey: entities}
}

func subnetRecordFor(view SubnetView, provider Provider, spec providerSpec) SubnetRecord {
	rec := SubnetRecord{
		"name":    view.Name,
		"cidr":    view.CIDR,
		"gateway": view.Gateway,
	}
	if spec.ListAssociation {
		rec[spec.SecurityField] = splitAssociation(view.SecurityAssociation)
	} else if view.SecurityAssociation != "" {
		rec[spec.SecurityField] = view.SecurityAssociation
	}
	if view.IPAMAllocationID != "" {
		rec["ipam_allocation_id"] = view.IPAMAllocationID
	}

	switch provider {
	case ProviderAWS:
		setIfPresent(rec, "type", view.Type)
		setIfPresent(rec, "az", view.AZ)
	case ProviderAzure:
		if len(view.ServiceEndpoints) > 0 {
			rec["service_endpoints"] = append([]string(nil), view.ServiceEndpoints...)
		}
	case ProviderGCP:
		setIfPresent(rec, "region", view.Region)
		if view.PrivateGoogleAccess {
			rec["private_google_access"] = true
		}
	case ProviderOCI:
		setIfPresent(rec, "type", view.Type)
	}
	return rec
}

func securityEntityFor(view SubnetView, key string, spec providerSpec) SecurityEntity {
	entity := SecurityEntity{"name": key}
	switch {
	case spec.MatchByTags:
		// Tag matchers carry the whole association list, and only an inbound
		// side exists in this model.
		entity["target_tags"] = splitAssociation(view.SecurityAssociation)
		entity[spec.InboundKey] = anyRules(view.InboundRules)
	case spec.SharedRules:
		merged := make([]RuleRecord, 0, len(view.InboundRules)+len(view.OutboundRules))
		merged = append(merged, view.InboundRules...)
		merged = append(merged, view.OutboundRules...)
		entity[spec.InboundKey] = anyRules(merged)
	default:
		entity[spec.InboundKey] = anyRules(view.InboundRules)
		entity[spec.OutboundKey] = anyRules(view.OutboundRules)
	}
	return entity
}

func setIfPresent(rec SubnetRecord, key, value string) {
	if value != "" {
		rec[key] = value
	}
}

func anyRules(rules []RuleRecord) []any {
	out := make([]any, 0, len(rules))
	for _, r := range rules {
		out = append(out, map[string]any(copyRule(r)))
	}
	return out
}

// Copyright (c) 2025 Berik Ashimov

package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	errSessionNotFound = errors.New("session not found")
	errSubnetNotFound  = errors.New("subnet not found")
	errStaleAllocation = errors.New("allocation response superseded")
)

// editSession holds one documents-in/documents-out cycle. Views are replaced
// wholesale on every mutation; callers always receive copies, so no returned
// slice ever aliases session state.
type editSession struct {
	ID        string
	Provider  Provider
	Views     []SubnetView
	CreatedAt time.Time

	// allocTokens invalidates stale allocate responses per subnet: only the
	// response carrying the latest token may touch the view.
	allocTokens map[string]uint64
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*editSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: map[string]*editSession{}}
}

func (s *sessionStore) Create(provider Provider, network NetworkDocument, security SecurityDocument, spacesAvailable bool) *editSession {
	session := &editSession{
		ID:          uuid.NewString(),
		Provider:    provider,
		Views:       joinDocuments(network, security, provider, spacesAvailable),
		CreatedAt:   time.Now().UTC(),
		allocTokens: map[string]uint64{},
	}
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	return session
}

func (s *sessionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

func (s *sessionStore) Views(id string) ([]SubnetView, Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, "", errSessionNotFound
	}
	return copyViews(session.Views), session.Provider, nil
}

// Update runs fn against a copy of the session's views and installs the
// result, keeping every mutation an atomic, immutable rebuild.
func (s *sessionStore) Update(id string, fn func(views []SubnetView) ([]SubnetView, error)) ([]SubnetView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	next, err := fn(copyViews(session.Views))
	if err != nil {
		return nil, err
	}
	session.Views = next
	return copyViews(next), nil
}

// BeginAllocation stamps a new token for the subnet; the matching
// CompleteAllocation call only lands if no newer allocate has started and the
// subnet still exists.
func (s *sessionStore) BeginAllocation(id, subnet string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return 0, errSessionNotFound
	}
	if _, ok := findView(session.Views, subnet); !ok {
		return 0, errSubnetNotFound
	}
	session.allocTokens[subnet]++
	return session.allocTokens[subnet], nil
}

func (s *sessionStore) CompleteAllocation(id, subnet string, token uint64, alloc Allocation) (SubnetView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return SubnetView{}, errSessionNotFound
	}
	if session.allocTokens[subnet] != token {
		return SubnetView{}, errStaleAllocation
	}
	idx, ok := findView(session.Views, subnet)
	if !ok {
		return SubnetView{}, errSubnetNotFound
	}
	next := copyViews(session.Views)
	next[idx].CIDR = alloc.CIDR
	next[idx].Gateway = alloc.Gateway
	next[idx].IPAMAllocationID = alloc.AllocationID
	next[idx].IPAMMode = false
	session.Views = next
	return copyView(next[idx]), nil
}

func findView(views []SubnetView, name string) (int, bool) {
	for i, v := range views {
		if v.Name == name {
			return i, true
		}
	}
	return 0, false
}

func addSubnetView(views []SubnetView, name string, spacesAvailable bool) ([]SubnetView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("subnet name required")
	}
	if _, ok := findView(views, name); ok {
		return nil, fmt.Errorf("subnet %q already exists", name)
	}
	view := SubnetView{
		Name:          name,
		IPAMMode:      spacesAvailable,
		InboundRules:  []RuleRecord{},
		OutboundRules: []RuleRecord{},
	}
	return append(views, view), nil
}

// removeSubnetView drops the named view and reports the allocation id, if
// any, so the caller can release it. Release failure never blocks removal.
func removeSubnetView(views []SubnetView, name string) ([]SubnetView, string, error) {
	idx, ok := findView(views, name)
	if !ok {
		return nil, "", errSubnetNotFound
	}
	allocationID := views[idx].IPAMAllocationID
	out := make([]SubnetView, 0, len(views)-1)
	out = append(out, views[:idx]...)
	out = append(out, views[idx+1:]...)
	return out, allocationID, nil
}

type subnetPatch struct {
	CIDR                *string  `json:"cidr"`
	Gateway             *string  `json:"gateway"`
	Type                *string  `json:"type"`
	AZ                  *string  `json:"az"`
	Region              *string  `json:"region"`
	ServiceEndpoints    []string `json:"service_endpoints"`
	PrivateGoogleAccess *bool    `json:"private_google_access"`
	SecurityAssociation *string  `json:"security_association"`
}

func patchSubnetView(views []SubnetView, name string, patch subnetPatch, spacesAvailable bool) ([]SubnetView, error) {
	idx, ok := findView(views, name)
	if !ok {
		return nil, errSubnetNotFound
	}
	view := &views[idx]
	if patch.CIDR != nil {
		view.CIDR = strings.TrimSpace(*patch.CIDR)
	}
	if patch.Gateway != nil {
		view.Gateway = strings.TrimSpace(*patch.Gateway)
	}
	if patch.Type != nil {
		view.Type = *patch.Type
	}
	if patch.AZ != nil {
		view.AZ = *patch.AZ
	}
	if patch.Region != nil {
		view.Region = *patch.Region
	}
	if patch.ServiceEndpoints != nil {
		view.ServiceEndpoints = append([]string(nil), patch.ServiceEndpoints...)
	}
	if patch.PrivateGoogleAccess != nil {
		view.PrivateGoogleAccess = *patch.PrivateGoogleAccess
	}
	if patch.SecurityAssociation != nil {
		view.SecurityAssociation = strings.TrimSpace(*patch.SecurityAssociation)
	}
	view.IPAMMode = spacesAvailable && view.CIDR == ""
	return views, nil
}

func addRuleToView(views []SubnetView, name, direction string, rule RuleRecord) ([]SubnetView, error) {
	idx, ok := findView(views, name)
	if !ok {
		return nil, errSubnetNotFound
	}
	switch direction {
	case "inbound":
		views[idx].InboundRules = append(views[idx].InboundRules, copyRule(rule))
	case "outbound":
		views[idx].OutboundRules = append(views[idx].OutboundRules, copyRule(rule))
	default:
		return nil, fmt.Errorf("invalid rule direction %q", direction)
	}
	return views, nil
}

func removeRuleFromView(views []SubnetView, name, direction string, ruleIndex int) ([]SubnetView, error) {
	idx, ok := findView(views, name)
	if !ok {
		return nil, errSubnetNotFound
	}
	var rules []RuleRecord
	switch direction {
	case "inbound":
		rules = views[idx].InboundRules
	case "outbound":
		rules = views[idx].OutboundRules
	default:
		return nil, fmt.Errorf("invalid rule direction %q", direction)
	}
	if ruleIndex < 0 || ruleIndex >= len(rules) {
		return nil, fmt.Errorf("rule index %d out of range", ruleIndex)
	}
	next := make([]RuleRecord, 0, len(rules)-1)
	next = append(next, rules[:ruleIndex]...)
	next = append(next, rules[ruleIndex+1:]...)
	if direction == "inbound" {
		views[idx].InboundRules = next
	} else {
		views[idx].OutboundRules = next
	}
	return views, nil
}

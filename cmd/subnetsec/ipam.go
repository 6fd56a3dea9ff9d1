// Copyright (c) 2025 Berik Ashimov

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	minAllocPrefix = 16
	maxAllocPrefix = 28
)

var (
	errSpaceNotFound      = errors.New("address space not found")
	errAllocationNotFound = errors.New("allocation not found")
	errSpaceExhausted     = errors.New("address space exhausted")
)

type AllocateRequest struct {
	EnvironmentID  string `json:"environment_id"`
	AddressSpaceID string `json:"address_space_id"`
	PrefixLength   int    `json:"prefix_length"`
	Label          string `json:"label"`
}

type Allocation struct {
	CIDR         string `json:"cidr"`
	Gateway      string `json:"gateway"`
	AllocationID string `json:"allocation_id"`
}

// AddressAllocator is the boundary to the IPAM collaborator. The engine only
// depends on this contract; ipamStore below is the in-house implementation.
type AddressAllocator interface {
	Allocate(ctx context.Context, req AllocateRequest) (Allocation, error)
	Release(ctx context.Context, allocationID string) error
}

type AddressSpace struct {
	ID            string `json:"id"`
	EnvironmentID string `json:"environment_id"`
	Name          string `json:"name"`
	CIDR          string `json:"cidr"`
	CreatedAt     string `json:"created_at"`
}

type ipamStore struct {
	db *sql.DB
}

func newIPAMStore(db *sql.DB) *ipamStore {
	return &ipamStore{db: db}
}

func (s *ipamStore) CreateSpace(environmentID, name, cidr string) (AddressSpace, error) {
	cidr = strings.TrimSpace(cidr)
	if !isValidCIDR(cidr) {
		return AddressSpace{}, fmt.Errorf("invalid space cidr %q", cidr)
	}
	if strings.TrimSpace(name) == "" {
		return AddressSpace{}, errors.New("space name required")
	}
	space := AddressSpace{
		ID:            uuid.NewString(),
		EnvironmentID: strings.TrimSpace(environmentID),
		Name:          strings.TrimSpace(name),
		CIDR:          cidr,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	_, err := s.db.Exec(`
		INSERT INTO address_spaces(id, environment_id, name, cidr, created_at)
		VALUES(?, ?, ?, ?, ?)`,
		space.ID, space.EnvironmentID, space.Name, space.CIDR, space.CreatedAt,
	)
	if err != nil {
		return AddressSpace{}, err
	}
	return space, nil
}

func (s *ipamStore) ListSpaces(environmentID string) ([]AddressSpace, error) {
	rows, err := s.db.Query(`
		SELECT id, environment_id, name, cidr, created_at
		FROM address_spaces
		WHERE environment_id=?
		ORDER BY created_at, id`, strings.TrimSpace(environmentID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AddressSpace
	for rows.Next() {
		var space AddressSpace
		if err := rows.Scan(&space.ID, &space.EnvironmentID, &space.Name, &space.CIDR, &space.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, space)
	}
	return out, rows.Err()
}

func (s *ipamStore) SpacesAvailable(environmentID string) bool {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM address_spaces WHERE environment_id=?`,
		strings.TrimSpace(environmentID)).Scan(&count); err != nil {
		return false
	}
	return count > 0
}

func (s *ipamStore) DeleteSpace(id string) error {
	res, err := s.db.Exec(`DELETE FROM address_spaces WHERE id=?`, id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errSpaceNotFound
	}
	return nil
}

func (s *ipamStore) spaceByID(environmentID, id string) (AddressSpace, error) {
	var space AddressSpace
	err := s.db.QueryRow(`
		SELECT id, environment_id, name, cidr, created_at
		FROM address_spaces WHERE id=? AND environment_id=?`,
		id, strings.TrimSpace(environmentID)).
		Scan(&space.ID, &space.EnvironmentID, &space.Name, &space.CIDR, &space.CreatedAt)
	if err == sql.ErrNoRows {
		return AddressSpace{}, errSpaceNotFound
	}
	if err != nil {
		return AddressSpace{}, err
	}
	return space, nil
}

// Allocate hands out the first free, aligned block of the requested size
// inside the space, skipping every allocation that has not been released.
func (s *ipamStore) Allocate(ctx context.Context, req AllocateRequest) (Allocation, error) {
	if req.PrefixLength < minAllocPrefix || req.PrefixLength > maxAllocPrefix {
		return Allocation{}, fmt.Errorf("prefix length %d out of range %d..%d", req.PrefixLength, minAllocPrefix, maxAllocPrefix)
	}
	space, err := s.spaceByID(req.EnvironmentID, req.AddressSpaceID)
	if err != nil {
		return Allocation{}, err
	}
	spaceRange, ok := rangeForCIDR(space.CIDR)
	if !ok {
		return Allocation{}, fmt.Errorf("space %s has unusable cidr %q", space.ID, space.CIDR)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Allocation{}, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT cidr FROM allocations WHERE space_id=? AND released=0`, space.ID)
	if err != nil {
		return Allocation{}, err
	}
	var used []addrRange
	for rows.Next() {
		var cidr string
		if err := rows.Scan(&cidr); err != nil {
			rows.Close()
			return Allocation{}, err
		}
		if r, ok := rangeForCIDR(cidr); ok {
			used = append(used, r)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return Allocation{}, err
	}
	rows.Close()

	blockSize := uint32(1) << (32 - req.PrefixLength)
	network, ok := firstFit(spaceRange, blockSize, used)
	if !ok {
		return Allocation{}, errSpaceExhausted
	}

	alloc := Allocation{
		CIDR:         fmt.Sprintf("%s/%d", formatAddr(network), req.PrefixLength),
		Gateway:      formatAddr(network + 1),
		AllocationID: uuid.NewString(),
	}
	_, err = tx.Exec(`
		INSERT INTO allocations(id, space_id, cidr, gateway, label, released, created_at)
		VALUES(?, ?, ?, ?, ?, 0, ?)`,
		alloc.AllocationID, space.ID, alloc.CIDR, alloc.Gateway,
		strings.TrimSpace(req.Label), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return Allocation{}, err
	}
	if err := tx.Commit(); err != nil {
		return Allocation{}, err
	}
	return alloc, nil
}

func (s *ipamStore) Release(ctx context.Context, allocationID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE allocations SET released=1 WHERE id=? AND released=0`, allocationID)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errAllocationNotFound
	}
	return nil
}

// Copyright (c) 2025 Berik Ashimov

package main

import (
	"fmt"
	"strconv"
	"strings"
)

type CIDRInfo struct {
	Network    string `json:"network" yaml:"network"`
	Broadcast  string `json:"broadcast" yaml:"broadcast"`
	SubnetMask string `json:"subnet_mask" yaml:"subnet_mask"`
	HostCount  uint64 `json:"host_count" yaml:"host_count"`
	IsPrivate  bool   `json:"is_private" yaml:"is_private"`
	Prefix     int    `json:"prefix" yaml:"prefix"`
}

func isValidCIDR(raw string) bool {
	_, _, ok := parseCIDR(raw)
	return ok
}

// computeCIDR derives addressing facts for a CIDR the caller has already
// validated with isValidCIDR. Feeding it an unvalidated string is a caller bug.
func computeCIDR(raw string) CIDRInfo {
	addr, prefix, ok := parseCIDR(raw)
	if !ok {
		return CIDRInfo{}
	}
	var mask uint32
	if prefix > 0 {
		mask = ^uint32(0) << (32 - prefix)
	}
	network := addr & mask
	broadcast := network | ^mask

	var hosts uint64
	size := uint64(1) << (32 - prefix)
	if prefix >= 31 {
		// Point-to-point and host routes keep every address usable.
		hosts = size
	} else {
		hosts = size - 2
	}

	return CIDRInfo{
		Network:    formatAddr(network),
		Broadcast:  formatAddr(broadcast),
		SubnetMask: formatAddr(mask),
		HostCount:  hosts,
		IsPrivate:  isRFC1918(addr),
		Prefix:     prefix,
	}
}

func parseCIDR(raw string) (uint32, int, bool) {
	raw = strings.TrimSpace(raw)
	slash := strings.IndexByte(raw, '/')
	if slash < 0 {
		return 0, 0, false
	}
	prefixStr := raw[slash+1:]
	if prefixStr == "" || len(prefixStr) > 2 {
		return 0, 0, false
	}
	prefix, err := strconv.Atoi(prefixStr)
	if err != nil || prefix < 0 || prefix > 32 {
		return 0, 0, false
	}
	addr, ok := parseAddr(raw[:slash])
	if !ok {
		return 0, 0, false
	}
	return addr, prefix, true
}

func parseAddr(raw string) (uint32, bool) {
	parts := strings.Split(raw, ".")
	if len(parts) != 4 {
		return 0, false
	}
	var addr uint32
	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return 0, false
		}
		octet := 0
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0, false
			}
			octet = octet*10 + int(r-'0')
		}
		if octet > 255 {
			return 0, false
		}
		addr = addr<<8 | uint32(octet)
	}
	return addr, true
}

func formatAddr(addr uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", addr>>24, addr>>16&0xff, addr>>8&0xff, addr&0xff)
}

// isRFC1918 classifies the address as given, not the computed network, so a
// host address inside a private block reads as private even with a short prefix.
func isRFC1918(addr uint32) bool {
	first := addr >> 24
	second := addr >> 16 & 0xff
	switch {
	case first == 10:
		return true
	case first == 172 && second >= 16 && second <= 31:
		return true
	case first == 192 && second == 168:
		return true
	}
	return false
}

// Copyright (c) 2025 Berik Ashimov

package main

import "sort"

// addrRange is an inclusive IPv4 range; arithmetic runs in uint64 so the top
// of the address space does not wrap.
type addrRange struct {
	start uint32
	end   uint32
}

func rangeForCIDR(raw string) (addrRange, bool) {
	addr, prefix, ok := parseCIDR(raw)
	if !ok {
		return addrRange{}, false
	}
	var mask uint32
	if prefix > 0 {
		mask = ^uint32(0) << (32 - prefix)
	}
	network := addr & mask
	return addrRange{start: network, end: network | ^mask}, true
}

func rangesOverlap(a, b addrRange) bool {
	return a.start <= b.end && b.start <= a.end
}

// buildUsedRanges clamps the used blocks to the space, sorts them, and merges
// adjacent or overlapping entries so the first-fit scan can walk them once.
func buildUsedRanges(space addrRange, used []addrRange) []addrRange {
	var out []addrRange
	for _, r := range used {
		if r.end < space.start || r.start > space.end {
			continue
		}
		if r.start < space.start {
			r.start = space.start
		}
		if r.end > space.end {
			r.end = space.end
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })

	var merged []addrRange
	for _, r := range out {
		if len(merged) > 0 && uint64(r.start) <= uint64(merged[len(merged)-1].end)+1 {
			if r.end > merged[len(merged)-1].end {
				merged[len(merged)-1].end = r.end
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// firstFit returns the lowest aligned block of blockSize addresses inside the
// space that misses every used range.
func firstFit(space addrRange, blockSize uint32, used []addrRange) (uint32, bool) {
	if blockSize == 0 {
		return 0, false
	}
	ranges := buildUsedRanges(space, used)
	size := uint64(blockSize)
	cur := alignUp(uint64(space.start), size)
	idx := 0
	for {
		candEnd := cur + size - 1
		if candEnd > uint64(space.end) {
			return 0, false
		}
		for idx < len(ranges) && uint64(ranges[idx].end) < cur {
			idx++
		}
		if idx >= len(ranges) || candEnd < uint64(ranges[idx].start) {
			return uint32(cur), true
		}
		cur = alignUp(uint64(ranges[idx].end)+1, size)
	}
}

func alignUp(n, step uint64) uint64 {
	if step == 0 || n%step == 0 {
		return n
	}
	return (n/step + 1) * step
}

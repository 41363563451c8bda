package optimizer

import "net/netip"

// aggregate returns the candidate blocks worth collapsing.
//
// A block qualifies when at least cfg.AggregateMinHosts desired hosts
// fall inside it AND no foreign address does. The second condition is the
// safety rule: a block that also covers another service's destination
// would silently route unrelated traffic through this service's tunnel.
// Only IPv4 addresses participate; v6 destinations stay host routes.
func aggregate(desired map[netip.Addr]string, foreign map[netip.Addr]bool, cfg Config) map[netip.Prefix]bool {
	counts := make(map[netip.Prefix]int)
	for addr := range desired {
		if !addr.Is4() {
			continue
		}
		block, err := addr.Prefix(cfg.AggregatePrefixLen)
		if err != nil {
			continue
		}
		counts[block]++
	}

	blocks := make(map[netip.Prefix]bool)
	for block, n := range counts {
		if n < cfg.AggregateMinHosts {
			continue
		}
		if containsForeign(block, foreign) {
			continue
		}
		blocks[block] = true
	}
	return blocks
}

func containsForeign(block netip.Prefix, foreign map[netip.Addr]bool) bool {
	for addr := range foreign {
		if block.Contains(addr) {
			return true
		}
	}
	return false
}

// Package optimizer computes the minimal set of route changes that
// converges the router's state for one service to its desired IP set.
// It is pure: the coordinator fetches state and applies plans.
package optimizer

import (
	"net/netip"
	"sort"

	"github.com/kroleg/homelab/internal/domain"
)

// Config tunes the host-route aggregation heuristic. The exact threshold
// is a policy knob, not a law; the hard rule is that a proposed block may
// never cover an address outside the service's desired set.
type Config struct {
	// AggregatePrefixLen is the candidate block size (default /24).
	AggregatePrefixLen int
	// AggregateMinHosts is the minimum number of desired hosts inside a
	// candidate block before it is worth collapsing (default 16).
	AggregateMinHosts int
}

// DefaultConfig matches the deployment this grew up in: collapse /24s
// once 16 hosts of a CDN have shown up in one.
var DefaultConfig = Config{AggregatePrefixLen: 24, AggregateMinHosts: 16}

func (c Config) withDefaults() Config {
	if c.AggregatePrefixLen <= 0 || c.AggregatePrefixLen >= 32 {
		c.AggregatePrefixLen = DefaultConfig.AggregatePrefixLen
	}
	if c.AggregateMinHosts <= 1 {
		c.AggregateMinHosts = DefaultConfig.AggregateMinHosts
	}
	return c
}

// Plan is the route delta for one service. Additions are applied before
// removals so a destination never goes unrouted mid-convergence.
type Plan struct {
	ToAdd    []domain.Route
	ToRemove []domain.Route
}

// Empty reports a converged plan.
func (p Plan) Empty() bool {
	return len(p.ToAdd) == 0 && len(p.ToRemove) == 0
}

type routeKey struct {
	prefix netip.Prefix
	iface  string
}

// Build computes the plan for one service.
//
//	desired  - accumulated IP -> hostname that resolved to it
//	ifaces   - resolved egress interface ids, one route per (dest x iface)
//	current  - the router's full route table; only routes tagged to this
//	           service are considered, everything else is invisible
//	foreign  - addresses desired by or routed for other services; no
//	           proposed block may contain any of them
//
// The desired route set is recomputed from scratch each cycle and
// set-diffed against current state, which makes a second run with no new
// events a fixed point. Blocks this service already installed are kept
// while they stay safe: after a restart the accumulated set starts out
// empty, and a block must not be torn down just because the hosts that
// once justified it have not re-resolved yet.
func Build(service string, desired map[netip.Addr]string, ifaces []string, current []domain.Route, foreign map[netip.Addr]bool, optimize bool, cfg Config) Plan {
	cfg = cfg.withDefaults()

	blocks := map[netip.Prefix]bool{}
	if optimize {
		blocks = aggregate(desired, foreign, cfg)
		for _, r := range current {
			if r.IsHost() || !r.OwnedBy(service) {
				continue
			}
			if containsForeign(r.Prefix, foreign) {
				continue
			}
			blocks[r.Prefix] = true
		}
	}

	covered := make(map[netip.Addr]bool)
	for addr := range desired {
		for block := range blocks {
			if block.Contains(addr) {
				covered[addr] = true
				break
			}
		}
	}

	want := make(map[routeKey]domain.Route)
	for block := range blocks {
		for _, iface := range ifaces {
			r := domain.Route{
				Prefix:    block,
				Interface: iface,
				Comment:   domain.ServiceTag(service, block.String()),
				Auto:      true,
			}
			want[routeKey{block, iface}] = r
		}
	}
	for addr, hostname := range desired {
		if covered[addr] {
			continue
		}
		prefix := netip.PrefixFrom(addr, addr.BitLen())
		for _, iface := range ifaces {
			r := domain.Route{
				Prefix:    prefix,
				Interface: iface,
				Comment:   domain.ServiceTag(service, hostname),
				Auto:      true,
			}
			want[routeKey{prefix, iface}] = r
		}
	}

	have := make(map[routeKey]domain.Route)
	for _, r := range current {
		if r.OwnedBy(service) {
			have[routeKey{r.Prefix, r.Interface}] = r
		}
	}

	var plan Plan
	for key, r := range want {
		if _, ok := have[key]; !ok {
			plan.ToAdd = append(plan.ToAdd, r)
		}
	}
	for key, r := range have {
		if _, ok := want[key]; !ok {
			plan.ToRemove = append(plan.ToRemove, r)
		}
	}

	sortRoutes(plan.ToAdd)
	sortRoutes(plan.ToRemove)
	return plan
}

func sortRoutes(routes []domain.Route) {
	sort.Slice(routes, func(i, j int) bool {
		a, b := routes[i], routes[j]
		if a.Prefix.Addr() != b.Prefix.Addr() {
			return a.Prefix.Addr().Less(b.Prefix.Addr())
		}
		if a.Prefix.Bits() != b.Prefix.Bits() {
			return a.Prefix.Bits() < b.Prefix.Bits()
		}
		return a.Interface < b.Interface
	})
}

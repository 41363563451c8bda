package optimizer

import (
	"fmt"
	"net/netip"
	"testing"

	"github.com/kroleg/homelab/internal/domain"
)

func mustAddr(s string) netip.Addr { return netip.MustParseAddr(s) }

func TestBuildSingleHostRoute(t *testing.T) {
	desired := map[netip.Addr]string{
		mustAddr("10.2.3.4"): "cdn.stream.example.com",
	}

	plan := Build("stream", desired, []string{"Wireguard0"}, nil, nil, true, Config{})

	if len(plan.ToAdd) != 1 || len(plan.ToRemove) != 0 {
		t.Fatalf("plan = +%d/-%d, want +1/-0", len(plan.ToAdd), len(plan.ToRemove))
	}
	r := plan.ToAdd[0]
	if r.Prefix != netip.MustParsePrefix("10.2.3.4/32") {
		t.Errorf("prefix = %v", r.Prefix)
	}
	if r.Interface != "Wireguard0" {
		t.Errorf("interface = %s", r.Interface)
	}
	if r.Comment != "dns-auto:stream:cdn.stream.example.com" {
		t.Errorf("comment = %s", r.Comment)
	}
	if !r.Auto {
		t.Error("engine routes must carry the auto flag")
	}
}

func TestBuildAggregatesDenseBlock(t *testing.T) {
	desired := make(map[netip.Addr]string)
	var current []domain.Route
	for i := 1; i <= 250; i++ {
		addr := mustAddr(fmt.Sprintf("10.2.3.%d", i))
		host := fmt.Sprintf("edge-%d.stream.example.com", i)
		desired[addr] = host
		current = append(current, domain.Route{
			Prefix:    netip.PrefixFrom(addr, 32),
			Interface: "Wireguard0",
			Comment:   domain.ServiceTag("stream", host),
			Auto:      true,
		})
	}

	plan := Build("stream", desired, []string{"Wireguard0"}, current, nil, true, Config{})

	if len(plan.ToAdd) != 1 {
		t.Fatalf("expected a single block addition, got %d", len(plan.ToAdd))
	}
	block := plan.ToAdd[0]
	if block.Prefix != netip.MustParsePrefix("10.2.3.0/24") {
		t.Errorf("block = %v, want 10.2.3.0/24", block.Prefix)
	}
	if block.Comment != "dns-auto:stream:10.2.3.0/24" {
		t.Errorf("block comment = %s", block.Comment)
	}
	if len(plan.ToRemove) != 250 {
		t.Errorf("expected all 250 host routes superseded, got %d", len(plan.ToRemove))
	}
}

func TestBuildAggregationSafety(t *testing.T) {
	desired := make(map[netip.Addr]string)
	for i := 1; i <= 250; i++ {
		desired[mustAddr(fmt.Sprintf("10.2.3.%d", i))] = fmt.Sprintf("edge-%d.stream.example.com", i)
	}
	// One address in the same /24 belongs to a different destination.
	foreign := map[netip.Addr]bool{mustAddr("10.2.3.251"): true}

	plan := Build("stream", desired, []string{"Wireguard0"}, nil, foreign, true, Config{})

	for _, r := range plan.ToAdd {
		if !r.IsHost() {
			t.Fatalf("block %v proposed despite foreign address inside it", r.Prefix)
		}
	}
	if len(plan.ToAdd) != 250 {
		t.Errorf("expected 250 host routes, got %d", len(plan.ToAdd))
	}
}

func TestBuildBlockNeverCoversOutsideDesired(t *testing.T) {
	// Property check over a few densities: any proposed block must not
	// contain a foreign address.
	for _, n := range []int{16, 64, 200} {
		desired := make(map[netip.Addr]string)
		for i := 1; i <= n; i++ {
			desired[mustAddr(fmt.Sprintf("192.0.2.%d", i))] = fmt.Sprintf("h%d.example.com", i)
		}
		foreign := map[netip.Addr]bool{mustAddr("192.0.2.254"): true}

		plan := Build("svc", desired, []string{"Wireguard0"}, nil, foreign, true, Config{})
		for _, r := range plan.ToAdd {
			for addr := range foreign {
				if r.Prefix.Contains(addr) {
					t.Fatalf("n=%d: route %v covers foreign %v", n, r.Prefix, addr)
				}
			}
		}
	}
}

func TestBuildKeepsInstalledBlocks(t *testing.T) {
	block := domain.Route{
		Prefix:    netip.MustParsePrefix("10.2.3.0/24"),
		Interface: "Wireguard0",
		Comment:   domain.ServiceTag("stream", "10.2.3.0/24"),
		Auto:      true,
	}

	// Empty desired set, as after a restart: the installed block stays.
	plan := Build("stream", nil, []string{"Wireguard0"}, []domain.Route{block}, nil, true, Config{})
	if !plan.Empty() {
		t.Errorf("installed block was not kept: +%d/-%d", len(plan.ToAdd), len(plan.ToRemove))
	}

	// Destinations inside the kept block need no host routes.
	desired := map[netip.Addr]string{mustAddr("10.2.3.9"): "h9.stream.example.com"}
	plan = Build("stream", desired, []string{"Wireguard0"}, []domain.Route{block}, nil, true, Config{})
	if !plan.Empty() {
		t.Errorf("destination covered by kept block still planned: %+v", plan)
	}

	// A foreign address appearing inside the block ends its safety: the
	// block goes, the desired host comes back as a host route.
	foreign := map[netip.Addr]bool{mustAddr("10.2.3.200"): true}
	plan = Build("stream", desired, []string{"Wireguard0"}, []domain.Route{block}, foreign, true, Config{})
	if len(plan.ToRemove) != 1 || plan.ToRemove[0].Prefix != block.Prefix {
		t.Fatalf("unsafe block not removed: %+v", plan.ToRemove)
	}
	if len(plan.ToAdd) != 1 || !plan.ToAdd[0].IsHost() {
		t.Fatalf("expected one replacement host route, got %+v", plan.ToAdd)
	}
}

func TestBuildOptimizeDisabled(t *testing.T) {
	desired := make(map[netip.Addr]string)
	for i := 1; i <= 100; i++ {
		desired[mustAddr(fmt.Sprintf("10.2.3.%d", i))] = fmt.Sprintf("h%d.example.com", i)
	}

	plan := Build("stream", desired, []string{"Wireguard0"}, nil, nil, false, Config{})

	if len(plan.ToAdd) != 100 {
		t.Fatalf("expected 100 host routes with optimization off, got %d", len(plan.ToAdd))
	}
	for _, r := range plan.ToAdd {
		if !r.IsHost() {
			t.Errorf("unexpected network route %v", r.Prefix)
		}
	}
}

func TestBuildConvergence(t *testing.T) {
	desired := make(map[netip.Addr]string)
	for i := 1; i <= 30; i++ {
		desired[mustAddr(fmt.Sprintf("10.2.3.%d", i))] = fmt.Sprintf("h%d.example.com", i)
	}
	desired[mustAddr("203.0.113.7")] = "lone.example.com"

	first := Build("stream", desired, []string{"Wireguard0"}, nil, nil, true, Config{})

	// Pretend the router applied the plan verbatim.
	current := append([]domain.Route(nil), first.ToAdd...)

	second := Build("stream", desired, []string{"Wireguard0"}, current, nil, true, Config{})
	if !second.Empty() {
		t.Errorf("second cycle not a fixed point: +%d/-%d", len(second.ToAdd), len(second.ToRemove))
	}
}

func TestBuildTagIsolation(t *testing.T) {
	otherRoute := domain.Route{
		Prefix:    netip.MustParsePrefix("10.2.3.4/32"),
		Interface: "Wireguard0",
		Comment:   domain.ServiceTag("other", "same.example.com"),
		Auto:      true,
	}
	manualRoute := domain.Route{
		Prefix:    netip.MustParsePrefix("10.7.7.7/32"),
		Interface: "Wireguard0",
		Comment:   "set up by hand",
	}

	// Service "stream" desires nothing: everything it owns would be
	// removed, but it owns neither of these.
	plan := Build("stream", nil, []string{"Wireguard0"}, []domain.Route{otherRoute, manualRoute}, nil, true, Config{})
	if !plan.Empty() {
		t.Errorf("plan must never touch foreign or manual routes: %+v", plan)
	}
}

func TestBuildMultiInterfaceFanout(t *testing.T) {
	desired := map[netip.Addr]string{mustAddr("10.2.3.4"): "cdn.example.com"}

	plan := Build("stream", desired, []string{"Wireguard0", "Wireguard1"}, nil, nil, false, Config{})
	if len(plan.ToAdd) != 2 {
		t.Fatalf("expected one route per interface, got %d", len(plan.ToAdd))
	}
	if plan.ToAdd[0].Interface == plan.ToAdd[1].Interface {
		t.Error("fanout produced duplicate interface")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.AggregatePrefixLen != 24 || cfg.AggregateMinHosts != 16 {
		t.Errorf("defaults = %+v", cfg)
	}
	kept := Config{AggregatePrefixLen: 22, AggregateMinHosts: 8}.withDefaults()
	if kept.AggregatePrefixLen != 22 || kept.AggregateMinHosts != 8 {
		t.Errorf("explicit config overridden: %+v", kept)
	}
}

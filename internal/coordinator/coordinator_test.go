package coordinator

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"testing"

	"github.com/kroleg/homelab/internal/dnslog"
	"github.com/kroleg/homelab/internal/domain"
	"github.com/kroleg/homelab/internal/keenetic"
	"github.com/kroleg/homelab/internal/logger"
)

type fakePolicyStore struct {
	mu       sync.Mutex
	policies []*domain.ServicePolicy
}

func (s *fakePolicyStore) ListEnabled(ctx context.Context) ([]*domain.ServicePolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var enabled []*domain.ServicePolicy
	for _, p := range s.policies {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled, nil
}

type fakeRouter struct {
	mu          sync.Mutex
	routes      []domain.Route
	unavailable bool
	addCalls    int
}

func (r *fakeRouter) ListRoutes(ctx context.Context) ([]domain.Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return nil, fmt.Errorf("dial: %w", keenetic.ErrUnavailable)
	}
	return append([]domain.Route(nil), r.routes...), nil
}

func (r *fakeRouter) AddRoutes(ctx context.Context, routes []domain.Route) ([]keenetic.RouteResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return nil, fmt.Errorf("dial: %w", keenetic.ErrUnavailable)
	}
	r.addCalls++
	results := make([]keenetic.RouteResult, len(routes))
	for i, route := range routes {
		r.routes = append(r.routes, route)
		results[i] = keenetic.RouteResult{Route: route, OK: true}
	}
	return results, nil
}

func (r *fakeRouter) RemoveRoutes(ctx context.Context, routes []domain.Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return fmt.Errorf("dial: %w", keenetic.ErrUnavailable)
	}
	for _, victim := range routes {
		kept := r.routes[:0]
		for _, route := range r.routes {
			if route.Prefix != victim.Prefix || route.Interface != victim.Interface {
				kept = append(kept, route)
			}
		}
		r.routes = kept
	}
	return nil
}

func (r *fakeRouter) RemoveRoutesByComment(ctx context.Context, prefix string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return 0, fmt.Errorf("dial: %w", keenetic.ErrUnavailable)
	}
	removed := 0
	kept := r.routes[:0]
	for _, route := range r.routes {
		if strings.HasPrefix(route.Comment, prefix) {
			removed++
			continue
		}
		kept = append(kept, route)
	}
	r.routes = kept
	return removed, nil
}

func (r *fakeRouter) ResolveInterface(ctx context.Context, nameOrID, fallback string) string {
	if nameOrID == "default" {
		return fallback
	}
	return nameOrID
}

func (r *fakeRouter) routeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.routes)
}

func streamPolicy() *domain.ServicePolicy {
	return &domain.ServicePolicy{
		Name:           "stream",
		Interfaces:     []string{"Wireguard0"},
		DomainPatterns: []string{"*.stream.example.com"},
		Enabled:        true,
	}
}

func newTestCoordinator(store *fakePolicyStore, router *fakeRouter) *Coordinator {
	c := New(store, router, Options{FallbackInterface: "Wireguard0"}, logger.New("error", false))
	_ = c.RefreshPolicies(context.Background())
	return c
}

func event(hostname string, ips ...string) dnslog.Record {
	rec := dnslog.Record{Hostname: hostname}
	for _, ip := range ips {
		rec.Addrs = append(rec.Addrs, netip.MustParseAddr(ip))
	}
	return rec
}

func TestEventToRouteScenario(t *testing.T) {
	store := &fakePolicyStore{policies: []*domain.ServicePolicy{streamPolicy()}}
	router := &fakeRouter{}
	c := newTestCoordinator(store, router)

	c.handleEvent(event("cdn.stream.example.com", "10.2.3.4"))

	if err := c.ReconcileAll(context.Background(), false); err != nil {
		t.Fatalf("ReconcileAll failed: %v", err)
	}

	if router.routeCount() != 1 {
		t.Fatalf("expected 1 route on the router, got %d", router.routeCount())
	}
	r := router.routes[0]
	if r.Prefix != netip.MustParsePrefix("10.2.3.4/32") {
		t.Errorf("prefix = %v", r.Prefix)
	}
	if r.Interface != "Wireguard0" {
		t.Errorf("interface = %s", r.Interface)
	}
	if r.Comment != "dns-auto:stream:cdn.stream.example.com" {
		t.Errorf("comment = %s", r.Comment)
	}
}

func TestDuplicateEventsAreIdempotent(t *testing.T) {
	store := &fakePolicyStore{policies: []*domain.ServicePolicy{streamPolicy()}}
	router := &fakeRouter{}
	c := newTestCoordinator(store, router)

	c.handleEvent(event("cdn.stream.example.com", "10.2.3.4"))
	c.handleEvent(event("cdn.stream.example.com", "10.2.3.4"))

	if err := c.ReconcileAll(context.Background(), false); err != nil {
		t.Fatalf("ReconcileAll failed: %v", err)
	}
	if router.routeCount() != 1 {
		t.Fatalf("duplicate event produced extra routes: %d", router.routeCount())
	}
	addsAfterFirst := router.addCalls

	// Same event again after a successful cycle: state is unchanged, so
	// the next cycle must not touch the router's routes.
	c.handleEvent(event("cdn.stream.example.com", "10.2.3.4"))
	if err := c.ReconcileAll(context.Background(), false); err != nil {
		t.Fatalf("second ReconcileAll failed: %v", err)
	}
	if router.addCalls != addsAfterFirst {
		t.Error("re-delivered event caused another add call")
	}
}

func TestReconcileConvergence(t *testing.T) {
	store := &fakePolicyStore{policies: []*domain.ServicePolicy{streamPolicy()}}
	router := &fakeRouter{}
	c := newTestCoordinator(store, router)

	c.handleEvent(event("a.stream.example.com", "10.2.3.4", "10.2.3.5"))
	if err := c.ReconcileAll(context.Background(), false); err != nil {
		t.Fatalf("ReconcileAll failed: %v", err)
	}
	calls := router.addCalls

	// Forced cycle with no new events: must be a no-op plan.
	if err := c.ReconcileAll(context.Background(), true); err != nil {
		t.Fatalf("forced ReconcileAll failed: %v", err)
	}
	if router.addCalls != calls {
		t.Error("converged state still produced router mutations")
	}
}

func TestRouterFailurePreservesAccumulatedSet(t *testing.T) {
	store := &fakePolicyStore{policies: []*domain.ServicePolicy{streamPolicy()}}
	router := &fakeRouter{unavailable: true}
	c := newTestCoordinator(store, router)

	c.handleEvent(event("a.stream.example.com", "10.2.3.4"))
	if err := c.ReconcileAll(context.Background(), false); err != nil {
		t.Fatalf("ReconcileAll should not fail the batch: %v", err)
	}
	if router.routeCount() != 0 {
		t.Fatal("no routes should exist while the router is down")
	}

	status := c.Status()
	if len(status) != 1 || status[0].LastError == "" {
		t.Errorf("failure should be recorded in status: %+v", status)
	}

	// Router recovers, a new IP arrives: the next cycle carries both the
	// originally-accumulated and the new destination.
	router.mu.Lock()
	router.unavailable = false
	router.mu.Unlock()
	c.handleEvent(event("b.stream.example.com", "10.2.3.9"))

	if err := c.ReconcileAll(context.Background(), false); err != nil {
		t.Fatalf("recovery cycle failed: %v", err)
	}
	if router.routeCount() != 2 {
		t.Errorf("expected both destinations routed after recovery, got %d", router.routeCount())
	}
}

func TestPolicyDeletionTearsDownRoutes(t *testing.T) {
	stream := streamPolicy()
	other := &domain.ServicePolicy{
		Name:           "work",
		Interfaces:     []string{"Wireguard1"},
		DomainPatterns: []string{".corp.example.com"},
		Enabled:        true,
	}
	store := &fakePolicyStore{policies: []*domain.ServicePolicy{stream, other}}
	router := &fakeRouter{}
	c := newTestCoordinator(store, router)

	c.handleEvent(event("cdn.stream.example.com", "10.2.3.4"))
	c.handleEvent(event("corp.example.com", "10.2.3.4")) // same IP, different service
	if err := c.ReconcileAll(context.Background(), false); err != nil {
		t.Fatalf("ReconcileAll failed: %v", err)
	}
	if router.routeCount() != 2 {
		t.Fatalf("expected one tagged route per service, got %d", router.routeCount())
	}

	// Delete the stream policy; next cycle removes only its tag.
	store.mu.Lock()
	store.policies = []*domain.ServicePolicy{other}
	store.mu.Unlock()

	if err := c.ReconcileAll(context.Background(), false); err != nil {
		t.Fatalf("ReconcileAll after deletion failed: %v", err)
	}
	if router.routeCount() != 1 {
		t.Fatalf("expected 1 route left, got %d", router.routeCount())
	}
	if !router.routes[0].OwnedBy("work") {
		t.Errorf("surviving route = %+v, want work's", router.routes[0])
	}

	// In-memory state is cleared too.
	for _, st := range c.Status() {
		if st.Name == "stream" {
			t.Error("stream state should be gone after teardown")
		}
	}
}

func TestDisabledPolicyStopsMatching(t *testing.T) {
	p := streamPolicy()
	store := &fakePolicyStore{policies: []*domain.ServicePolicy{p}}
	router := &fakeRouter{}
	c := newTestCoordinator(store, router)

	store.mu.Lock()
	p.Enabled = false
	store.mu.Unlock()
	_ = c.RefreshPolicies(context.Background())

	c.handleEvent(event("cdn.stream.example.com", "10.2.3.4"))
	if err := c.ReconcileAll(context.Background(), false); err != nil {
		t.Fatalf("ReconcileAll failed: %v", err)
	}
	if router.routeCount() != 0 {
		t.Errorf("disabled policy must not produce routes, got %d", router.routeCount())
	}
}

func TestCheckDomainIsReadOnly(t *testing.T) {
	store := &fakePolicyStore{policies: []*domain.ServicePolicy{streamPolicy()}}
	router := &fakeRouter{}
	c := newTestCoordinator(store, router)

	res, err := c.CheckDomain(context.Background(), "Cdn.Stream.Example.Com.", false)
	if err != nil {
		t.Fatalf("CheckDomain failed: %v", err)
	}
	if res.Hostname != "cdn.stream.example.com" {
		t.Errorf("hostname = %s", res.Hostname)
	}
	if len(res.Services) != 1 || res.Services[0] != "stream" {
		t.Errorf("services = %v", res.Services)
	}
	if len(c.Status()) != 0 {
		t.Error("CheckDomain must not create service state")
	}
	if router.addCalls != 0 {
		t.Error("CheckDomain must not call the router")
	}
}

func TestRestartAdoptsInstalledRoutes(t *testing.T) {
	// Routes survive on the router across a process restart; the fresh
	// coordinator starts with empty accumulated sets and must re-adopt
	// them instead of planning their removal.
	router := &fakeRouter{routes: []domain.Route{{
		Prefix:    netip.MustParsePrefix("10.2.3.4/32"),
		Interface: "Wireguard0",
		Comment:   "dns-auto:stream:cdn.stream.example.com",
		Auto:      true,
	}}}
	store := &fakePolicyStore{policies: []*domain.ServicePolicy{streamPolicy()}}
	c := newTestCoordinator(store, router)

	if err := c.AdoptRoutes(context.Background()); err != nil {
		t.Fatalf("AdoptRoutes failed: %v", err)
	}
	if err := c.ReconcileAll(context.Background(), true); err != nil {
		t.Fatalf("ReconcileAll failed: %v", err)
	}

	if router.routeCount() != 1 {
		t.Fatalf("first cycle after restart removed the surviving route, got %d routes", router.routeCount())
	}
	if router.addCalls != 0 {
		t.Error("adopted route was re-added instead of kept")
	}

	status := c.Status()
	if len(status) != 1 || status[0].AccumulatedIPs != 1 {
		t.Errorf("adopted state = %+v", status)
	}

	// A later resolution of the same destination stays idempotent.
	c.handleEvent(event("cdn.stream.example.com", "10.2.3.4"))
	if err := c.ReconcileAll(context.Background(), false); err != nil {
		t.Fatalf("second ReconcileAll failed: %v", err)
	}
	if router.addCalls != 0 {
		t.Error("re-resolved adopted destination caused an add call")
	}
}

func TestRestartKeepsAggregatedBlocks(t *testing.T) {
	// An aggregated block has no per-host routes left to adopt from, so
	// it must survive the first cycle on its own.
	router := &fakeRouter{routes: []domain.Route{{
		Prefix:    netip.MustParsePrefix("10.2.3.0/24"),
		Interface: "Wireguard0",
		Comment:   "dns-auto:stream:10.2.3.0/24",
		Auto:      true,
	}}}
	policy := streamPolicy()
	policy.OptimizeRoutes = true
	store := &fakePolicyStore{policies: []*domain.ServicePolicy{policy}}
	c := newTestCoordinator(store, router)

	if err := c.AdoptRoutes(context.Background()); err != nil {
		t.Fatalf("AdoptRoutes failed: %v", err)
	}
	if err := c.ReconcileAll(context.Background(), true); err != nil {
		t.Fatalf("ReconcileAll failed: %v", err)
	}

	if router.routeCount() != 1 {
		t.Fatalf("first cycle after restart removed the surviving block, got %d routes", router.routeCount())
	}
}

func TestRunConsumesEventChannel(t *testing.T) {
	store := &fakePolicyStore{policies: []*domain.ServicePolicy{streamPolicy()}}
	router := &fakeRouter{}
	c := newTestCoordinator(store, router)

	events := make(chan dnslog.Record, 4)
	events <- event("a.stream.example.com", "10.2.3.4")
	events <- event("unrelated.org", "203.0.113.1")
	close(events)

	c.Run(context.Background(), events)

	status := c.Status()
	if len(status) != 1 || status[0].AccumulatedIPs != 1 {
		t.Errorf("status after run = %+v", status)
	}
}

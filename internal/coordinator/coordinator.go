// Package coordinator is the stateful core of the engine: it consumes
// DNS resolution events, accumulates per-service destination sets and
// converges the router's static routes to them on a schedule.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"sync"

	"github.com/kroleg/homelab/internal/dnslog"
	"github.com/kroleg/homelab/internal/domain"
	"github.com/kroleg/homelab/internal/keenetic"
	"github.com/kroleg/homelab/internal/logger"
	"github.com/kroleg/homelab/internal/metrics"
	"github.com/kroleg/homelab/internal/optimizer"
)

// RouterClient is the narrow router surface the coordinator drives.
// *keenetic.Client satisfies it; tests use a fake.
type RouterClient interface {
	ListRoutes(ctx context.Context) ([]domain.Route, error)
	AddRoutes(ctx context.Context, routes []domain.Route) ([]keenetic.RouteResult, error)
	RemoveRoutes(ctx context.Context, routes []domain.Route) error
	RemoveRoutesByComment(ctx context.Context, prefix string) (int, error)
	ResolveInterface(ctx context.Context, nameOrID, fallback string) string
}

// PolicyStore is the slice of the store the coordinator reads. The
// active policy set is re-read on every reconciliation cycle.
type PolicyStore interface {
	ListEnabled(ctx context.Context) ([]*domain.ServicePolicy, error)
}

// Options configures a Coordinator.
type Options struct {
	// FallbackInterface backs the reserved "default" interface alias.
	FallbackInterface string
	Optimizer         optimizer.Config
	// Resolver is used by CheckDomain's optional live lookup. nil means
	// net.DefaultResolver.
	Resolver *net.Resolver
}

// Coordinator owns all mutable routing state.
type Coordinator struct {
	store    PolicyStore
	router   RouterClient
	log      logger.Logger
	opts     Options
	resolver *net.Resolver

	mu       sync.RWMutex // guards states and policies
	states   map[string]*serviceState
	policies []*domain.ServicePolicy // cached for the event path, refreshed each cycle
}

// New creates a coordinator. Call RefreshPolicies once after startup so
// events arriving before the first reconcile cycle already match.
func New(store PolicyStore, router RouterClient, opts Options, log logger.Logger) *Coordinator {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Coordinator{
		store:    store,
		router:   router,
		log:      log,
		opts:     opts,
		resolver: resolver,
		states:   make(map[string]*serviceState),
	}
}

// Run consumes resolution events until the context is cancelled or the
// channel closes. It never calls the router: events only mutate the
// in-memory accumulated sets.
func (c *Coordinator) Run(ctx context.Context, events <-chan dnslog.Record) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-events:
			if !ok {
				return
			}
			c.handleEvent(rec)
		}
	}
}

func (c *Coordinator) handleEvent(rec dnslog.Record) {
	c.mu.RLock()
	policies := c.policies
	c.mu.RUnlock()

	matched := domain.Match(rec.Hostname, policies)
	if len(matched) == 0 {
		return
	}
	metrics.MatchedEvents.Inc()

	hostname := domain.NormalizeHostname(rec.Hostname)
	for _, p := range matched {
		st := c.state(p.Name)
		if added := st.accumulate(hostname, rec.Addrs); added > 0 {
			metrics.AccumulatedIPs.WithLabelValues(p.Name).Add(float64(added))
			c.log.Debug("accumulated destinations",
				logger.String("service", p.Name),
				logger.String("hostname", hostname),
				logger.Int("new_ips", added))
		}
	}
}

// RefreshPolicies re-reads the active policy set used by the event path.
// Called on startup, on every reconcile cycle and after policy CRUD.
func (c *Coordinator) RefreshPolicies(ctx context.Context) error {
	policies, err := c.store.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list enabled policies: %w", err)
	}
	c.mu.Lock()
	c.policies = policies
	c.mu.Unlock()
	return nil
}

// AdoptRoutes seeds the accumulated sets from the tagged host routes a
// previous run left on the router, so a restart re-adopts them instead
// of planning their removal. Runs once before the first reconciliation
// cycle; a failure is safe to ignore because the cycle itself cannot
// list routes either and leaves the router untouched.
func (c *Coordinator) AdoptRoutes(ctx context.Context) error {
	current, err := c.router.ListRoutes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list routes for adoption: %w", err)
	}

	adopted := 0
	for _, r := range current {
		if !r.IsHost() {
			continue
		}
		service, label, ok := domain.ParseTag(r.Comment)
		if !ok {
			continue
		}
		st := c.state(service)
		if added := st.accumulate(label, []netip.Addr{r.Addr()}); added > 0 {
			metrics.AccumulatedIPs.WithLabelValues(service).Add(float64(added))
			adopted += added
		}
	}
	if adopted > 0 {
		c.log.Info("adopted routes from previous run",
			logger.Int("destinations", adopted))
	}
	return nil
}

// ReconcileAll runs one reconciliation cycle: tear down services whose
// policy disappeared or was disabled, then converge every service with
// pending changes (or all of them when forced). Services reconcile
// concurrently and independently; one failing never halts the batch.
func (c *Coordinator) ReconcileAll(ctx context.Context, force bool) error {
	policies, err := c.store.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list enabled policies: %w", err)
	}
	c.mu.Lock()
	c.policies = policies
	c.mu.Unlock()

	active := make(map[string]bool, len(policies))
	for _, p := range policies {
		active[p.Name] = true
	}
	for _, name := range c.stateNames() {
		if !active[name] {
			if err := c.TeardownService(ctx, name); err != nil {
				c.log.Warn("teardown failed, will retry next cycle",
					logger.String("service", name), logger.Error(err))
			}
		}
	}

	var wg sync.WaitGroup
	for _, p := range policies {
		st := c.state(p.Name)
		if !force && !st.isDirty() {
			continue
		}
		wg.Add(1)
		go func(p *domain.ServicePolicy, st *serviceState) {
			defer wg.Done()
			c.reconcileService(ctx, p, st)
		}(p, st)
	}
	wg.Wait()
	return nil
}

// reconcileService converges the router state for one service. Additions
// are applied before removals so a destination being replaced by an
// aggregated block never loses its route mid-flight.
func (c *Coordinator) reconcileService(ctx context.Context, p *domain.ServicePolicy, st *serviceState) {
	st.reconcileMu.Lock()
	defer st.reconcileMu.Unlock()

	desired := st.snapshot()
	fail := func(err error) {
		st.markDirty()
		st.recordResult(0, err)
		metrics.Reconciliations.WithLabelValues(p.Name, "error").Inc()
		c.log.Warn("reconciliation failed, accumulated set kept",
			logger.String("service", p.Name), logger.Error(err))
	}

	ifaces := c.resolveInterfaces(ctx, p.Interfaces)

	current, err := c.router.ListRoutes(ctx)
	if err != nil {
		fail(err)
		return
	}

	plan := optimizer.Build(p.Name, desired, ifaces, current,
		c.foreignAddrs(p.Name, current), p.OptimizeRoutes, c.opts.Optimizer)

	ownedBefore := 0
	for _, r := range current {
		if r.OwnedBy(p.Name) {
			ownedBefore++
		}
	}

	if plan.Empty() {
		st.recordResult(ownedBefore, nil)
		metrics.Reconciliations.WithLabelValues(p.Name, "noop").Inc()
		return
	}

	addedOK := 0
	if len(plan.ToAdd) > 0 {
		results, err := c.router.AddRoutes(ctx, plan.ToAdd)
		if err != nil {
			fail(err)
			return
		}
		for _, res := range results {
			if res.OK {
				addedOK++
				continue
			}
			// Explicit rejection: skip this one route, keep going.
			rejection := &keenetic.RejectedError{Route: res.Route, Message: res.Message}
			c.log.Warn("router rejected route",
				logger.String("service", p.Name),
				logger.String("route", res.Route.String()),
				logger.Error(rejection))
		}
		metrics.RoutesAdded.Add(float64(addedOK))
	}

	if len(plan.ToRemove) > 0 {
		if err := c.router.RemoveRoutes(ctx, plan.ToRemove); err != nil {
			fail(err)
			return
		}
		metrics.RoutesRemoved.Add(float64(len(plan.ToRemove)))
	}

	st.recordResult(ownedBefore+addedOK-len(plan.ToRemove), nil)
	metrics.Reconciliations.WithLabelValues(p.Name, "ok").Inc()
	c.log.Info("reconciled service",
		logger.String("service", p.Name),
		logger.Int("desired_ips", len(desired)),
		logger.Int("routes_added", addedOK),
		logger.Int("routes_removed", len(plan.ToRemove)))
}

func (c *Coordinator) resolveInterfaces(ctx context.Context, names []string) []string {
	seen := make(map[string]bool, len(names))
	ifaces := make([]string, 0, len(names))
	for _, name := range names {
		id := c.router.ResolveInterface(ctx, name, c.opts.FallbackInterface)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ifaces = append(ifaces, id)
	}
	return ifaces
}

// foreignAddrs collects addresses that belong to other services: their
// accumulated sets plus any host route another engine tag already owns.
// The optimizer refuses to aggregate a block containing any of them.
func (c *Coordinator) foreignAddrs(service string, current []domain.Route) map[netip.Addr]bool {
	foreign := make(map[netip.Addr]bool)

	c.mu.RLock()
	for name, st := range c.states {
		if name == service {
			continue
		}
		st.dataMu.Lock()
		for addr := range st.ips {
			foreign[addr] = true
		}
		st.dataMu.Unlock()
	}
	c.mu.RUnlock()

	for _, r := range current {
		if !r.IsHost() {
			continue
		}
		owner, _, ok := domain.ParseTag(r.Comment)
		if ok && owner != service {
			foreign[r.Addr()] = true
		}
	}
	return foreign
}

// TeardownService removes every route tagged to the service and clears
// its in-memory state. Used when a policy is deleted or disabled.
func (c *Coordinator) TeardownService(ctx context.Context, name string) error {
	st := c.state(name)
	st.reconcileMu.Lock()
	defer st.reconcileMu.Unlock()

	removed, err := c.router.RemoveRoutesByComment(ctx, domain.ServiceTagPrefix(name))
	if err != nil {
		return fmt.Errorf("failed to tear down routes for %s: %w", name, err)
	}

	c.mu.Lock()
	delete(c.states, name)
	c.mu.Unlock()
	metrics.AccumulatedIPs.DeleteLabelValues(name)
	metrics.RoutesRemoved.Add(float64(removed))

	c.log.Info("service torn down",
		logger.String("service", name),
		logger.Int("routes_removed", removed))
	return nil
}

// CheckResult is the outcome of a manual domain check.
type CheckResult struct {
	Hostname string       `json:"hostname"`
	Services []string     `json:"services"`
	Addrs    []netip.Addr `json:"addrs,omitempty"`
}

// CheckDomain reports which services would match a hostname, optionally
// resolving it live. Read-only: no state mutation, no router calls.
func (c *Coordinator) CheckDomain(ctx context.Context, hostname string, resolve bool) (CheckResult, error) {
	result := CheckResult{Hostname: domain.NormalizeHostname(hostname)}

	policies, err := c.store.ListEnabled(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list enabled policies: %w", err)
	}
	for _, p := range domain.Match(hostname, policies) {
		result.Services = append(result.Services, p.Name)
	}

	if resolve {
		addrs, err := c.resolver.LookupNetIP(ctx, "ip", result.Hostname)
		if err != nil {
			var dnsErr *net.DNSError
			if !errors.As(err, &dnsErr) || !dnsErr.IsNotFound {
				return result, fmt.Errorf("failed to resolve %s: %w", result.Hostname, err)
			}
		}
		result.Addrs = addrs
	}
	return result, nil
}

// Status returns the admin snapshot of every known service, sorted by
// name.
func (c *Coordinator) Status() []ServiceStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ServiceStatus, 0, len(c.states))
	for name, st := range c.states {
		out = append(out, st.status(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Coordinator) state(name string) *serviceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[name]
	if !ok {
		st = newServiceState()
		c.states[name] = st
	}
	return st
}

func (c *Coordinator) stateNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.states))
	for name := range c.states {
		names = append(names, name)
	}
	return names
}

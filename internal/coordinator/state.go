package coordinator

import (
	"net/netip"
	"sync"
	"time"
)

// serviceState is the per-service mutable routing state. The coordinator
// is its single logical owner; two separate locks keep the event path
// from ever waiting on a router call:
//
//   - dataMu guards the accumulated set and flags, held only for
//     map operations.
//   - reconcileMu serializes reconciliation for this service and is held
//     across router calls. Different services reconcile concurrently;
//     their comment-tag namespaces never overlap.
type serviceState struct {
	dataMu      sync.Mutex
	reconcileMu sync.Mutex

	// ips maps each accumulated destination to the hostname that first
	// resolved to it (used as the route comment label). The set only
	// grows between teardowns: a VPN-routed destination stays routed
	// even if it stops resolving for a while.
	ips   map[netip.Addr]string
	dirty bool

	lastReconcile time.Time
	lastError     string
	routeCount    int
}

func newServiceState() *serviceState {
	return &serviceState{ips: make(map[netip.Addr]string)}
}

// accumulate adds resolved addresses, keeping the first hostname seen
// per address. Duplicate events are harmless: the set does not change
// and the state is not re-marked dirty.
func (st *serviceState) accumulate(hostname string, addrs []netip.Addr) (added int) {
	st.dataMu.Lock()
	defer st.dataMu.Unlock()
	for _, addr := range addrs {
		if _, seen := st.ips[addr]; seen {
			continue
		}
		st.ips[addr] = hostname
		added++
	}
	if added > 0 {
		st.dirty = true
	}
	return added
}

// snapshot copies the accumulated set and clears the dirty flag. Events
// that arrive while the snapshot is being reconciled re-mark the state
// dirty and are picked up next cycle, so nothing is lost.
func (st *serviceState) snapshot() map[netip.Addr]string {
	st.dataMu.Lock()
	defer st.dataMu.Unlock()
	out := make(map[netip.Addr]string, len(st.ips))
	for addr, host := range st.ips {
		out[addr] = host
	}
	st.dirty = false
	return out
}

func (st *serviceState) isDirty() bool {
	st.dataMu.Lock()
	defer st.dataMu.Unlock()
	return st.dirty
}

// markDirty restores the dirty flag after a failed reconcile so the
// accumulated set is retried on the next cycle.
func (st *serviceState) markDirty() {
	st.dataMu.Lock()
	st.dirty = true
	st.dataMu.Unlock()
}

func (st *serviceState) recordResult(routeCount int, err error) {
	st.dataMu.Lock()
	defer st.dataMu.Unlock()
	st.lastReconcile = time.Now()
	if err != nil {
		st.lastError = err.Error()
		return
	}
	st.lastError = ""
	st.routeCount = routeCount
}

// ServiceStatus is the admin-facing snapshot of one service's state.
type ServiceStatus struct {
	Name            string    `json:"name"`
	AccumulatedIPs  int       `json:"accumulated_ips"`
	InstalledRoutes int       `json:"installed_routes"`
	PendingChanges  bool      `json:"pending_changes"`
	LastReconcile   time.Time `json:"last_reconcile,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
}

func (st *serviceState) status(name string) ServiceStatus {
	st.dataMu.Lock()
	defer st.dataMu.Unlock()
	return ServiceStatus{
		Name:            name,
		AccumulatedIPs:  len(st.ips),
		InstalledRoutes: st.routeCount,
		PendingChanges:  st.dirty,
		LastReconcile:   st.lastReconcile,
		LastError:       st.lastError,
	}
}

package domain

import "time"

// ServicePolicy is a named routing intent: traffic to destinations that
// resolve under DomainPatterns should egress through Interfaces.
//
// A policy is uniquely identified by its Name. The Name is also the
// namespace of the route comment tags the engine installs on the router,
// so two policies never own the same route.
type ServicePolicy struct {
	// Name is the canonical unique identifier (e.g. "stream").
	Name string `json:"name"`

	// Interfaces lists egress interfaces, primary first. Entries are
	// either router-native ids ("Wireguard0") or human names resolved
	// against the router's interface table at reconcile time.
	Interfaces []string `json:"interfaces"`

	// DomainPatterns selects hostnames. Three syntaxes:
	//   *.example.com  - any subdomain, NOT the bare domain
	//   .example.com   - the domain itself and any subdomain
	//   example.com    - exact hostname only
	DomainPatterns []string `json:"domain_patterns"`

	// OptimizeRoutes allows collapsing host routes into covering
	// network blocks when the accumulated set is dense enough.
	OptimizeRoutes bool `json:"optimize_routes"`

	// Enabled gates matching. Disabled policies are invisible to the
	// matcher and their installed routes are torn down.
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

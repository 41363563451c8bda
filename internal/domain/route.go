package domain

import (
	"fmt"
	"net/netip"
	"strings"
)

// CommentPrefix marks every route the engine owns. Routes without it are
// never touched.
const CommentPrefix = "dns-auto:"

// Route is a static route as the engine sees it: either a host route
// (/32) or an aggregated network route, always bound to one interface.
type Route struct {
	// Prefix is the destination. Host routes are single-address
	// prefixes (/32 for IPv4).
	Prefix netip.Prefix `json:"prefix"`

	// Interface is the router-native interface id ("Wireguard0").
	Interface string `json:"interface"`

	// Comment carries the ownership tag, "dns-auto:{service}:{label}"
	// for engine-owned routes. Label is the hostname that produced a
	// host route, or the CIDR for an aggregated block.
	Comment string `json:"comment"`

	// Auto distinguishes engine-managed routes from ones the router's
	// owner configured by hand.
	Auto bool `json:"auto"`
}

// IsHost reports whether r is a single-address route.
func (r Route) IsHost() bool {
	return r.Prefix.IsSingleIP()
}

// Addr returns the destination address of a host route.
func (r Route) Addr() netip.Addr {
	return r.Prefix.Addr()
}

func (r Route) String() string {
	return fmt.Sprintf("%s via %s (%s)", r.Prefix, r.Interface, r.Comment)
}

// Interface is a router network interface as reported by the router.
type Interface struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Address     string `json:"address,omitempty"`
	Up          bool   `json:"up"`
	Connected   bool   `json:"connected"`
}

// ServiceTag builds the comment tag for one route owned by a service.
func ServiceTag(service, label string) string {
	return CommentPrefix + service + ":" + label
}

// ServiceTagPrefix builds the comment prefix covering every route owned
// by a service, used for bulk removal.
func ServiceTagPrefix(service string) string {
	return CommentPrefix + service + ":"
}

// ParseTag splits an engine comment tag into service and label.
// ok is false for comments the engine does not own.
func ParseTag(comment string) (service, label string, ok bool) {
	if !strings.HasPrefix(comment, CommentPrefix) {
		return "", "", false
	}
	rest := comment[len(CommentPrefix):]
	i := strings.IndexByte(rest, ':')
	if i <= 0 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// OwnedBy reports whether the route carries the given service's tag.
func (r Route) OwnedBy(service string) bool {
	return strings.HasPrefix(r.Comment, ServiceTagPrefix(service))
}

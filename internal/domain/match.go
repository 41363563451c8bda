package domain

import "strings"

// NormalizeHostname lowercases a hostname and strips the trailing dot
// that DNS logs often carry ("example.com." -> "example.com").
func NormalizeHostname(hostname string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(hostname)), ".")
}

// Match returns every enabled policy whose domain patterns match the
// hostname. Pure function, no I/O. A hostname may match several policies;
// all of them are returned in input order.
func Match(hostname string, policies []*ServicePolicy) []*ServicePolicy {
	hostname = NormalizeHostname(hostname)
	if hostname == "" {
		return nil
	}

	var matched []*ServicePolicy
	for _, p := range policies {
		if p == nil || !p.Enabled {
			continue
		}
		for _, pattern := range p.DomainPatterns {
			if MatchPattern(hostname, pattern) {
				matched = append(matched, p)
				break
			}
		}
	}
	return matched
}

// MatchPattern reports whether a single pattern matches a normalized
// hostname.
//
//	*.example.com matches foo.example.com and a.b.example.com, not example.com
//	.example.com  matches example.com and any subdomain
//	example.com   matches example.com only
func MatchPattern(hostname, pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" || hostname == "" {
		return false
	}

	switch {
	case strings.HasPrefix(pattern, "*."):
		// The bare domain never carries the ".example.com" suffix,
		// so subdomain-only semantics fall out of the suffix check.
		return strings.HasSuffix(hostname, pattern[1:])
	case strings.HasPrefix(pattern, "."):
		return hostname == pattern[1:] || strings.HasSuffix(hostname, pattern)
	default:
		return hostname == pattern
	}
}

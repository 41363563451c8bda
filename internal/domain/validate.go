package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError rejects an invalid policy at the store boundary, before
// it can reach the coordinator. It is the only error kind surfaced
// synchronously to the admin caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid policy: %s: %s", e.Field, e.Reason)
}

// Hostname labels: letters, digits, hyphen (not leading/trailing).
var labelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// Validate checks a policy for structural validity. It does not reach
// out to the router: interface names are validated fail-soft at
// reconcile time (the router rejects truly unknown ones).
func (p *ServicePolicy) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if strings.ContainsAny(p.Name, ": \t") {
		return &ValidationError{Field: "name", Reason: "must not contain colons or whitespace"}
	}
	if len(p.Interfaces) == 0 {
		return &ValidationError{Field: "interfaces", Reason: "at least one interface required"}
	}
	for _, iface := range p.Interfaces {
		if strings.TrimSpace(iface) == "" {
			return &ValidationError{Field: "interfaces", Reason: "empty interface name"}
		}
	}
	if len(p.DomainPatterns) == 0 {
		return &ValidationError{Field: "domain_patterns", Reason: "at least one pattern required"}
	}
	for _, pattern := range p.DomainPatterns {
		if err := validatePattern(pattern); err != nil {
			return err
		}
	}
	return nil
}

func validatePattern(pattern string) error {
	p := strings.ToLower(strings.TrimSpace(pattern))
	if p == "" {
		return &ValidationError{Field: "domain_patterns", Reason: "empty pattern"}
	}

	domain := p
	switch {
	case strings.HasPrefix(p, "*."):
		domain = p[2:]
	case strings.HasPrefix(p, "."):
		domain = p[1:]
	}
	if domain == "" || strings.Contains(domain, "*") {
		return &ValidationError{Field: "domain_patterns", Reason: fmt.Sprintf("malformed pattern %q", pattern)}
	}
	for _, label := range strings.Split(domain, ".") {
		if !labelRe.MatchString(label) {
			return &ValidationError{Field: "domain_patterns", Reason: fmt.Sprintf("malformed pattern %q", pattern)}
		}
	}
	return nil
}

package redis

const (
	// KeyPrefixPolicy is the prefix for policy keys
	KeyPrefixPolicy = "dnsvpn:policy:"
	// KeyAllPolicies is the key for the set of all policy names
	KeyAllPolicies = "dnsvpn:policies:all"
)

// PolicyKey returns the Redis key for a policy by name
func PolicyKey(name string) string {
	return KeyPrefixPolicy + name
}

// AllPoliciesKey returns the key for the set of all policy names
func AllPoliciesKey() string {
	return KeyAllPolicies
}

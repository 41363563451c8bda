package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Router
	RouterURL      string        // ex: "http://192.168.1.1"
	RouterLogin    string        //
	RouterPassword string        //
	RouterTimeout  time.Duration // per-request timeout for router calls

	// Routing engine
	DNSLogFile         string        // path to the resolver's query log (JSON lines)
	DNSLogPollInterval time.Duration // tail poll interval
	DNSEventBuffer     int           // bounded event channel size
	ReconcileInterval  time.Duration // interval between reconciliation cycles (default: 5m)
	FallbackInterface  string        // backs the "default" interface alias in policies
	InterfaceFilter    string        // default type filter for the interfaces endpoint
	AggregatePrefix    int           // candidate block size for route aggregation (default: 24)
	AggregateMinHosts  int           // hosts required in a block before collapsing (default: 16)
	PolicyFile         string        // optional policies.yaml seed file (empty = disabled)

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	AllowedCIDRS []string // optional, restrict admin API access to specific IPs/CIDRs
	TrustProxy   bool     // true => trust X-Forwarded-For headers
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("DNSVPN_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("DNSVPN_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("DNSVPN_LOG_LEVEL", "info"),
		PrettyLog: mustBool("DNSVPN_PRETTY_LOG", false),

		// Router
		RouterURL:      requireEnv("DNSVPN_ROUTER_URL"),
		RouterLogin:    requireEnv("DNSVPN_ROUTER_LOGIN"),
		RouterPassword: requireEnv("DNSVPN_ROUTER_PASSWORD"),
		RouterTimeout:  mustDuration("DNSVPN_ROUTER_TIMEOUT", 10*time.Second),

		// Routing engine
		DNSLogFile:         requireEnv("DNSVPN_DNS_LOG_FILE"),
		DNSLogPollInterval: mustDuration("DNSVPN_DNS_LOG_POLL_INTERVAL", 500*time.Millisecond),
		DNSEventBuffer:     getenvInt("DNSVPN_DNS_EVENT_BUFFER", 1024),
		ReconcileInterval:  mustDuration("DNSVPN_RECONCILE_INTERVAL", 5*time.Minute),
		FallbackInterface:  getenv("DNSVPN_FALLBACK_INTERFACE", ""),
		InterfaceFilter:    getenv("DNSVPN_INTERFACE_FILTER", ""),
		AggregatePrefix:    getenvInt("DNSVPN_AGGREGATE_PREFIX", 24),
		AggregateMinHosts:  getenvInt("DNSVPN_AGGREGATE_MIN_HOSTS", 16),
		PolicyFile:         getenv("DNSVPN_POLICY_FILE", ""),

		// Redis settings
		RedisAddr:             requireEnv("DNSVPN_REDIS_ADDR"),
		RedisUser:             getenv("DNSVPN_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("DNSVPN_REDIS_PASSWORD_REQUIRED", true),
		RedisPassword:         getenv("DNSVPN_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("DNSVPN_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedCIDRS: parseAllowedIPs(getenv("DNSVPN_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("DNSVPN_TRUST_PROXY", false),
	}

	// Validate Redis password configuration
	if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: DNSVPN_REDIS_PASSWORD is required when DNSVPN_REDIS_PASSWORD_REQUIRED=true")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		cfgCopy.RouterPassword = "***REDACTED***"
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

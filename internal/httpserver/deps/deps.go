package deps

import (
	"time"

	"github.com/kroleg/homelab/internal/coordinator"
	"github.com/kroleg/homelab/internal/keenetic"
	"github.com/kroleg/homelab/internal/logger"
	redisstore "github.com/kroleg/homelab/internal/store/redis"
)

type Deps struct {
	Logger           logger.Logger
	StartTime        time.Time
	Version          string
	Commit           string
	BuildDate        string
	GoVersion        string
	AllowedCIDRS     []string                 // IPs allowed to reach the admin API
	TrustProxy       bool                     // true if running behind a trusted reverse proxy
	Store            *redisstore.Store        // Policy persistence
	Coordinator      *coordinator.Coordinator // Routing state owner
	Router           *keenetic.Client         // For the interface listing endpoint
	InterfaceFilter  string                   // Default type filter for interface listing
	ReconcileTrigger chan struct{}            // Channel to trigger forced reconciliation
}

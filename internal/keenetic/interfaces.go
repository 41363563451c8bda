package keenetic

import (
	"context"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/kroleg/homelab/internal/domain"
	"github.com/kroleg/homelab/internal/logger"
)

// DefaultInterfaceAlias is the reserved policy interface name resolved
// via the configured fallback interface.
const DefaultInterfaceAlias = "default"

// Router-native interface ids look like "Wireguard0", "PPPoE1", "ISP".
var nativeIDRe = regexp.MustCompile(`^[A-Z][A-Za-z]*\d*$`)

// ListInterfaces returns the router's interfaces, optionally filtered by
// type ("Wireguard", "OpenVPN", ...), sorted by id.
func (c *Client) ListInterfaces(ctx context.Context, typeFilter string) ([]domain.Interface, error) {
	var payload map[string]interfacePayload
	if err := c.do(ctx, http.MethodGet, "/rci/show/interface", nil, &payload); err != nil {
		return nil, err
	}

	ifaces := make([]domain.Interface, 0, len(payload))
	for name, p := range payload {
		if typeFilter != "" && !strings.EqualFold(p.Type, typeFilter) {
			continue
		}
		id := p.ID
		if id == "" {
			id = name
		}
		ifaces = append(ifaces, domain.Interface{
			ID:          id,
			Type:        p.Type,
			Description: p.Description,
			Address:     p.Address,
			Up:          strings.EqualFold(p.State, "up"),
			Connected:   strings.EqualFold(p.Connected, "yes"),
		})
	}
	sort.Slice(ifaces, func(i, j int) bool { return ifaces[i].ID < ifaces[j].ID })
	return ifaces, nil
}

// ResolveInterface maps a policy interface name to a router-native id.
// The reserved alias "default" resolves to fallback. Human names are
// looked up against interface descriptions. Unresolvable names are
// passed through with a warning: interface sets change across firmware
// updates, so the router gets the final say at add time.
func (c *Client) ResolveInterface(ctx context.Context, nameOrID, fallback string) string {
	if strings.EqualFold(nameOrID, DefaultInterfaceAlias) {
		nameOrID = fallback
	}
	if nameOrID == "" || nativeIDRe.MatchString(nameOrID) {
		return nameOrID
	}

	ifaces, err := c.ListInterfaces(ctx, "")
	if err != nil {
		c.log.Warn("interface lookup failed, passing name through",
			logger.String("name", nameOrID), logger.Error(err))
		return nameOrID
	}
	for _, iface := range ifaces {
		if strings.EqualFold(iface.Description, nameOrID) || strings.EqualFold(iface.ID, nameOrID) {
			return iface.ID
		}
	}

	c.log.Warn("interface name does not resolve, passing through",
		logger.String("name", nameOrID))
	return nameOrID
}

package keenetic

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/kroleg/homelab/internal/domain"
)

// Wire payloads of the RCI API. These shapes stay inside this package.

// routePayload is one entry of "show sc ip route". Host routes carry
// Host, network routes carry Network+Mask.
type routePayload struct {
	Host      string `json:"host,omitempty"`
	Network   string `json:"network,omitempty"`
	Mask      string `json:"mask,omitempty"`
	Interface string `json:"interface,omitempty"`
	Gateway   string `json:"gateway,omitempty"`
	Comment   string `json:"comment,omitempty"`
	Auto      bool   `json:"auto,omitempty"`
	No        bool   `json:"no,omitempty"`
}

// rciCommand is one element of a batch POST to /rci/.
type rciCommand struct {
	IP struct {
		Route *routePayload `json:"route,omitempty"`
	} `json:"ip"`
}

// rciStatus is the per-command outcome inside a batch response.
type rciStatus struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Ident   string `json:"ident"`
	Message string `json:"message"`
}

type rciRouteResponse struct {
	IP struct {
		Route struct {
			Status []rciStatus `json:"status"`
		} `json:"route"`
	} `json:"ip"`
}

// interfacePayload is one value of the "show interface" object.
type interfacePayload struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Address     string `json:"address"`
	State       string `json:"state"`
	Connected   string `json:"connected"`
	Link        string `json:"link"`
}

func (p routePayload) toDomain() (domain.Route, error) {
	var prefix netip.Prefix
	switch {
	case p.Host != "":
		addr, err := netip.ParseAddr(p.Host)
		if err != nil {
			return domain.Route{}, fmt.Errorf("bad host %q: %w", p.Host, err)
		}
		prefix = netip.PrefixFrom(addr, addr.BitLen())
	case p.Network != "":
		addr, err := netip.ParseAddr(p.Network)
		if err != nil {
			return domain.Route{}, fmt.Errorf("bad network %q: %w", p.Network, err)
		}
		bits, err := maskBits(p.Mask)
		if err != nil {
			return domain.Route{}, fmt.Errorf("bad mask %q: %w", p.Mask, err)
		}
		prefix = netip.PrefixFrom(addr, bits)
	default:
		return domain.Route{}, fmt.Errorf("route has neither host nor network")
	}
	return domain.Route{
		Prefix:    prefix,
		Interface: p.Interface,
		Comment:   p.Comment,
		Auto:      p.Auto,
	}, nil
}

func fromDomain(r domain.Route) *routePayload {
	p := &routePayload{
		Interface: r.Interface,
		Comment:   r.Comment,
		Auto:      r.Auto,
	}
	if r.IsHost() {
		p.Host = r.Addr().String()
	} else {
		p.Network = r.Prefix.Masked().Addr().String()
		p.Mask = maskString(r.Prefix.Bits())
	}
	return p
}

func maskBits(mask string) (int, error) {
	ip := net.ParseIP(mask)
	if ip == nil {
		return 0, fmt.Errorf("not an address")
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("not an IPv4 mask")
	}
	bits, total := net.IPMask(v4).Size()
	if total != 32 {
		return 0, fmt.Errorf("not a canonical mask")
	}
	return bits, nil
}

func maskString(bits int) string {
	return net.IP(net.CIDRMask(bits, 32)).String()
}

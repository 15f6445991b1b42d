// Package ifaceinfo supplies the Interface records spec.md treats as an
// external collaborator's contract: human name, OS scope identifier, the
// interface's link-local IPv6 address, and its MAC. Enumeration goes
// through github.com/vishvananda/netlink, the library moby/moby and
// bamgate-bamgate both reach for to walk netlink.Link/netlink.Addr records
// instead of shelling out to `ip`.
package ifaceinfo

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
)

// Interface is an immutable record describing one OS network interface,
// constructed once at startup and never mutated.
type Interface struct {
	Name      string
	ScopeID   uint32
	LinkLocal netip.Addr
	MAC       net.HardwareAddr
}

// linkLocalPrefix is fe80::/10, the block every Interface.LinkLocal must
// fall within (§3 invariant).
var linkLocalPrefix = netip.MustParsePrefix("fe80::/10")

// Discover enumerates every OS interface carrying a link-local IPv6
// address and returns one Interface record per link, keyed by name.
func Discover() (map[string]Interface, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("ifaceinfo: list links: %w", err)
	}

	out := make(map[string]Interface, len(links))
	for _, link := range links {
		attrs := link.Attrs()

		addrs, err := netlink.AddrList(link, netlink.FAMILY_V6)
		if err != nil {
			return nil, fmt.Errorf("ifaceinfo: list addrs for %s: %w", attrs.Name, err)
		}

		ll, ok := firstLinkLocal(addrs)
		if !ok {
			continue // no link-local address yet (e.g. interface down); skip
		}

		out[attrs.Name] = Interface{
			Name:      attrs.Name,
			ScopeID:   uint32(attrs.Index),
			LinkLocal: ll,
			MAC:       attrs.HardwareAddr,
		}
	}
	return out, nil
}

func firstLinkLocal(addrs []netlink.Addr) (netip.Addr, bool) {
	for _, a := range addrs {
		ip, ok := netip.AddrFromSlice(a.IP.To16())
		if !ok {
			continue
		}
		ip = ip.Unmap()
		if linkLocalPrefix.Contains(ip) {
			return ip, true
		}
	}
	return netip.Addr{}, false
}

// Select resolves a set of requested interface names (or the sentinel "*"
// meaning "every known interface") against the full discovered set.
func Select(all map[string]Interface, names []string) (map[uint32]Interface, error) {
	out := make(map[uint32]Interface)
	for _, n := range names {
		if n == "*" {
			for _, ifc := range all {
				out[ifc.ScopeID] = ifc
			}
			return out, nil
		}
	}
	for _, n := range names {
		ifc, ok := all[n]
		if !ok {
			return nil, fmt.Errorf("ifaceinfo: unknown interface %q", n)
		}
		out[ifc.ScopeID] = ifc
	}
	return out, nil
}

// Package route finds the local source address used to reach a destination.
package route

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/jackpal/gateway"
)

// Route is the kernel's choice of path towards one destination.
type Route struct {
	Destination netip.Addr
	Gateway     netip.Addr // invalid for directly connected destinations
	Source      netip.Addr // invalid when the kernel did not pick one
	Interface   *net.Interface
}

var errNoRoute = errors.New("no matching route")

// Get returns the most specific route for ip.
func Get(ip netip.Addr) (Route, error) {
	return get(ip.Unmap())
}

// Variable for mocking in tests.
var discoverInterface = gateway.DiscoverInterface

// Source returns the local address packets to ip will carry. It asks the
// routing table first; for IPv4 it falls back to the address of the
// interface holding the default gateway.
func Source(ip netip.Addr) (netip.Addr, error) {
	ip = ip.Unmap()
	r, err := Get(ip)
	if err == nil && r.Source.IsValid() {
		return r.Source, nil
	}
	if err != nil {
		slog.Debug("Route lookup failed", "dst", ip, "err", err)
	}
	if !ip.Is4() {
		if err == nil {
			err = fmt.Errorf("route to %s has no source address", ip)
		}
		return netip.Addr{}, err
	}

	local, gwErr := discoverInterface()
	if gwErr != nil {
		return netip.Addr{}, fmt.Errorf("discover default interface: %w", gwErr)
	}
	src, ok := netip.AddrFromSlice(local)
	if !ok {
		return netip.Addr{}, fmt.Errorf("invalid default interface address %v", local)
	}
	return src.Unmap(), nil
}

//go:build linux

package route

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/jsimonetti/rtnetlink"
	"golang.org/x/sys/unix"
)

// Variable for mocking in tests.
var fetchRIBMessagesForIP = func(ip netip.Addr) ([]rtnetlink.RouteMessage, error) {
	c, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	family := uint8(unix.AF_INET)
	if ip.Is6() {
		family = unix.AF_INET6
	}
	return c.Route.Get(&rtnetlink.RouteMessage{
		Family:     family,
		Table:      unix.RT_TABLE_MAIN,
		Attributes: rtnetlink.RouteAttributes{Dst: ip.AsSlice()},
	})
}

// routeFromMessage converts the RTM_GETROUTE answer for ip. The kernel
// resolves the lookup itself, so exactly one message is expected.
func routeFromMessage(ip netip.Addr, msgs []rtnetlink.RouteMessage) (Route, error) {
	switch {
	case len(msgs) == 0:
		return Route{}, fmt.Errorf("%w for %s", errNoRoute, ip)
	case len(msgs) > 1:
		return Route{}, fmt.Errorf("kernel returned %d routes for %s", len(msgs), ip)
	}
	attrs := msgs[0].Attributes

	dst, ok := netip.AddrFromSlice(attrs.Dst)
	if !ok || dst.Unmap() != ip {
		return Route{}, fmt.Errorf("%w for %s: got destination %v", errNoRoute, ip, attrs.Dst)
	}

	intf, err := net.InterfaceByIndex(int(attrs.OutIface))
	if err != nil {
		return Route{}, fmt.Errorf("interface index %d: %w", attrs.OutIface, err)
	}
	if intf.Flags&net.FlagUp == 0 {
		return Route{}, fmt.Errorf("interface %s is down", intf.Name)
	}

	r := Route{Destination: ip, Interface: intf}
	if gw, ok := netip.AddrFromSlice(attrs.Gateway); ok {
		r.Gateway = gw.Unmap()
	}
	if src, ok := netip.AddrFromSlice(attrs.Src); ok {
		r.Source = src.Unmap()
	}
	return r, nil
}

func get(ip netip.Addr) (Route, error) {
	msgs, err := fetchRIBMessagesForIP(ip)
	if err != nil {
		return Route{}, fmt.Errorf("netlink route lookup: %w", err)
	}
	return routeFromMessage(ip, msgs)
}

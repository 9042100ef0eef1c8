//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package route

import (
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/net/route"
)

// Variable for mocking in tests.
var fetchRIBMessages = func() ([]route.Message, error) {
	rib, err := route.FetchRIB(syscall.AF_UNSPEC, route.RIBTypeRoute, 0)
	if err != nil {
		return nil, err
	}
	return route.ParseRIB(route.RIBTypeRoute, rib)
}

// Variable for mocking in tests.
var interfaceByIndex = net.InterfaceByIndex

// sockaddr indexes into RouteMessage.Addrs.
const (
	rtaxDst     = syscall.RTAX_DST
	rtaxGateway = syscall.RTAX_GATEWAY
	rtaxNetmask = syscall.RTAX_NETMASK
	rtaxIfa     = syscall.RTAX_IFA
)

func addrAt(addrs []route.Addr, i int) netip.Addr {
	if i >= len(addrs) {
		return netip.Addr{}
	}
	switch a := addrs[i].(type) {
	case *route.Inet4Addr:
		return netip.AddrFrom4(a.IP)
	case *route.Inet6Addr:
		return netip.AddrFrom16(a.IP)
	}
	return netip.Addr{}
}

// prefixLen returns the length of the netmask at RTAX_NETMASK, or the full
// address length for host routes.
func prefixLen(rm *route.RouteMessage, dst netip.Addr) (int, bool) {
	if rm.Flags&syscall.RTF_HOST != 0 {
		return dst.BitLen(), true
	}
	if rtaxNetmask >= len(rm.Addrs) {
		return 0, false
	}
	switch m := rm.Addrs[rtaxNetmask].(type) {
	case *route.Inet4Addr:
		ones, _ := net.IPMask(m.IP[:]).Size()
		return ones, true
	case *route.Inet6Addr:
		ones, _ := net.IPMask(m.IP[:]).Size()
		return ones, true
	}
	return 0, false
}

// globalUnicastIPv6 picks a global unicast address of iface, preferring one
// on the same prefix as nextHop.
func globalUnicastIPv6(iface *net.Interface, nextHop netip.Addr) (netip.Addr, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return netip.Addr{}, err
	}

	var fallback netip.Addr
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip, ok := netip.AddrFromSlice(ipNet.IP)
		if !ok || !ip.Is6() || ip.Is4In6() || !ip.IsGlobalUnicast() {
			continue
		}
		if nextHop.IsValid() && !nextHop.IsLinkLocalUnicast() {
			ones, _ := ipNet.Mask.Size()
			if netip.PrefixFrom(ip, ones).Contains(nextHop) {
				return ip, nil
			}
		}
		if !fallback.IsValid() {
			fallback = ip
		}
	}
	if !fallback.IsValid() {
		return netip.Addr{}, fmt.Errorf("interface %s has no global unicast IPv6 address", iface.Name)
	}
	return fallback, nil
}

// longestMatch picks the up route with the longest prefix containing ip.
func longestMatch(ip netip.Addr, msgs []route.Message) (Route, error) {
	var (
		best    *route.RouteMessage
		bestLen = -1
	)
	for _, msg := range msgs {
		rm, ok := msg.(*route.RouteMessage)
		if !ok || rm.Flags&syscall.RTF_UP == 0 {
			continue
		}
		dst := addrAt(rm.Addrs, rtaxDst)
		if !dst.IsValid() || dst.Is4() != ip.Is4() {
			continue
		}
		bits, ok := prefixLen(rm, dst)
		if !ok || bits <= bestLen {
			continue
		}
		if !netip.PrefixFrom(dst, bits).Contains(ip) {
			continue
		}
		best, bestLen = rm, bits
	}
	if best == nil {
		return Route{}, fmt.Errorf("%w for %s", errNoRoute, ip)
	}

	intf, err := interfaceByIndex(best.Index)
	if err != nil {
		return Route{}, fmt.Errorf("interface index %d: %w", best.Index, err)
	}
	r := Route{
		Destination: ip,
		Gateway:     addrAt(best.Addrs, rtaxGateway),
		Source:      addrAt(best.Addrs, rtaxIfa),
		Interface:   intf,
	}
	if ip.Is6() && (!r.Source.IsValid() || r.Source.IsLinkLocalUnicast()) {
		src, err := globalUnicastIPv6(intf, r.Gateway)
		if err != nil {
			return Route{}, err
		}
		r.Source = src
	}
	return r, nil
}

func get(ip netip.Addr) (Route, error) {
	msgs, err := fetchRIBMessages()
	if err != nil {
		return Route{}, fmt.Errorf("fetch routing table: %w", err)
	}
	return longestMatch(ip, msgs)
}

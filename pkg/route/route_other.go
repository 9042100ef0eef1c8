//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package route

import (
	"fmt"
	"net/netip"
)

func get(ip netip.Addr) (Route, error) {
	return Route{}, fmt.Errorf("%w for %s: route lookup not supported on this platform", errNoRoute, ip)
}

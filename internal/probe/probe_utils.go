package probe

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/tkjaer/ping/internal/config"
)

// lookupHost is replaced in tests.
var lookupHost = net.LookupHost

var errNoAddress = errors.New("could not resolve destination")

// getDestinationIP returns the address to ping. Hostnames are resolved and
// the first address of the wanted family is used.
func getDestinationIP(a config.Args) (netip.Addr, error) {
	// Check if destination is an IP address
	if d, err := netip.ParseAddr(a.Destination); err == nil {
		d = d.Unmap()
		if (a.ForceIPv4 && !d.Is4()) || (a.ForceIPv6 && !d.Is6()) {
			return netip.Addr{}, fmt.Errorf("%s: address family does not match -4/-6", a.Destination)
		}
		return d.WithZone(""), nil
	}

	lookup, err := lookupHost(a.Destination)
	if err != nil {
		return netip.Addr{}, err
	}
	for _, record := range lookup {
		ip, err := netip.ParseAddr(record)
		if err != nil {
			continue
		}
		ip = ip.Unmap()
		switch {
		case a.ForceIPv4 && ip.Is4(),
			a.ForceIPv6 && ip.Is6(),
			!a.ForceIPv4 && !a.ForceIPv6:
			return ip, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("%s: %w", a.Destination, errNoAddress)
}

package echo

import (
	"encoding/binary"
	"net/netip"
)

// Checksum returns the Internet checksum (RFC 1071) of b. Running it over a
// message that already carries a valid checksum yields zero.
func Checksum(b []byte) uint16 {
	return finish(sum(0, b))
}

// PseudoHeaderChecksum returns the ICMPv6 checksum of b including the IPv6
// pseudo-header built from src and dst.
func PseudoHeaderChecksum(src, dst netip.Addr, b []byte) uint16 {
	s16, d16 := src.As16(), dst.As16()
	var s uint32
	s = sum(s, s16[:])
	s = sum(s, d16[:])
	s += uint32(len(b)) >> 16
	s += uint32(len(b)) & 0xffff
	s += 58 // next header
	return finish(sum(s, b))
}

func sum(s uint32, b []byte) uint32 {
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		s += uint32(binary.BigEndian.Uint16(b[i:]))
	}
	if n%2 == 1 {
		s += uint32(b[n-1]) << 8
	}
	return s
}

func finish(s uint32) uint16 {
	for s>>16 != 0 {
		s = (s & 0xffff) + (s >> 16)
	}
	return ^uint16(s)
}

package echo

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Decode validates and decodes an ICMP message as read from a raw socket
// (without IP header). src and dst are the outer IP addresses; for ICMPv6 the
// checksum is only verified when both are valid.
func (c *Codec) Decode(b []byte, src, dst netip.Addr) (Message, error) {
	if len(b) < 4 {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrTruncated, len(b))
	}

	switch c.family {
	case IPv4:
		if sum := Checksum(b); sum != 0 {
			return Message{}, fmt.Errorf("%w: residual %#04x", ErrChecksum, sum)
		}
		return decodeICMPv4(b)
	case IPv6:
		if src.IsValid() && dst.IsValid() {
			if sum := PseudoHeaderChecksum(src, dst, b); sum != 0 {
				return Message{}, fmt.Errorf("%w: residual %#04x", ErrChecksum, sum)
			}
		}
		return decodeICMPv6(b)
	}
	return Message{}, fmt.Errorf("unsupported family %v", c.family)
}

func decodeICMPv4(b []byte) (Message, error) {
	if len(b) < HeaderLen {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrTruncated, len(b))
	}
	var icmp layers.ICMPv4
	if err := icmp.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	m := Message{
		Type: icmp.TypeCode.Type(),
		Code: icmp.TypeCode.Code(),
	}
	switch m.Type {
	case layers.ICMPv4TypeEchoReply:
		m.Kind = KindEchoReply
		m.ID = icmp.Id
		m.Seq = icmp.Seq
		m.Payload = icmp.Payload
		return m, nil
	case layers.ICMPv4TypeTimeExceeded, layers.ICMPv4TypeDestinationUnreachable:
		m.Kind = KindTimeExceeded
		if m.Type == layers.ICMPv4TypeDestinationUnreachable {
			m.Kind = KindUnreachable
		}
		// Bytes 4-7 are unused; the quoted datagram follows the header.
		id, seq, dst, err := decodeQuotedIPv4(icmp.Payload)
		if err != nil {
			return Message{}, err
		}
		m.ID, m.Seq, m.OriginalDst = id, seq, dst
		return m, nil
	case layers.ICMPv4TypeEchoRequest,
		layers.ICMPv4TypeSourceQuench,
		layers.ICMPv4TypeRedirect,
		layers.ICMPv4TypeRouterAdvertisement,
		layers.ICMPv4TypeRouterSolicitation,
		layers.ICMPv4TypeParameterProblem,
		layers.ICMPv4TypeTimestampRequest,
		layers.ICMPv4TypeTimestampReply,
		layers.ICMPv4TypeInfoRequest,
		layers.ICMPv4TypeInfoReply,
		layers.ICMPv4TypeAddressMaskRequest,
		layers.ICMPv4TypeAddressMaskReply:
		m.Kind = KindOther
		return m, nil
	}
	return Message{}, fmt.Errorf("%w: ICMPv4 type %d", ErrUnknownType, m.Type)
}

// decodeQuotedIPv4 extracts the identifier, sequence and destination of the
// Echo Request quoted in an ICMPv4 error.
func decodeQuotedIPv4(payload []byte) (id, seq uint16, dst netip.Addr, err error) {
	var ip layers.IPv4
	if err = ip.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		return 0, 0, netip.Addr{}, fmt.Errorf("%w: quoted IPv4 header: %v", ErrTruncated, err)
	}
	if ip.Protocol != layers.IPProtocolICMPv4 {
		return 0, 0, netip.Addr{}, fmt.Errorf("%w: quoted protocol %v", ErrUnknownType, ip.Protocol)
	}
	inner := ip.LayerPayload()
	if len(inner) < HeaderLen {
		return 0, 0, netip.Addr{}, fmt.Errorf("%w: quoted ICMP header is %d bytes", ErrTruncated, len(inner))
	}
	if inner[0] != layers.ICMPv4TypeEchoRequest {
		return 0, 0, netip.Addr{}, fmt.Errorf("%w: quoted ICMPv4 type %d", ErrUnknownType, inner[0])
	}
	dst, _ = netip.AddrFromSlice(ip.DstIP)
	return binary.BigEndian.Uint16(inner[4:6]), binary.BigEndian.Uint16(inner[6:8]), dst.Unmap(), nil
}

func decodeICMPv6(b []byte) (Message, error) {
	var icmp layers.ICMPv6
	if err := icmp.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	m := Message{
		Type: icmp.TypeCode.Type(),
		Code: icmp.TypeCode.Code(),
	}
	// icmp.Payload starts after the 4 byte type/code/checksum header.
	rest := icmp.LayerPayload()
	switch m.Type {
	case layers.ICMPv6TypeEchoReply:
		if len(rest) < 4 {
			return Message{}, fmt.Errorf("%w: echo reply is %d bytes", ErrTruncated, len(b))
		}
		m.Kind = KindEchoReply
		m.ID = binary.BigEndian.Uint16(rest[0:2])
		m.Seq = binary.BigEndian.Uint16(rest[2:4])
		m.Payload = rest[4:]
		return m, nil
	case layers.ICMPv6TypeTimeExceeded, layers.ICMPv6TypeDestinationUnreachable:
		m.Kind = KindTimeExceeded
		if m.Type == layers.ICMPv6TypeDestinationUnreachable {
			m.Kind = KindUnreachable
		}
		id, seq, dst, err := decodeQuotedIPv6(rest)
		if err != nil {
			return Message{}, err
		}
		m.ID, m.Seq, m.OriginalDst = id, seq, dst
		return m, nil
	case layers.ICMPv6TypeEchoRequest,
		layers.ICMPv6TypePacketTooBig,
		layers.ICMPv6TypeParameterProblem,
		layers.ICMPv6TypeRouterSolicitation,
		layers.ICMPv6TypeRouterAdvertisement,
		layers.ICMPv6TypeNeighborSolicitation,
		layers.ICMPv6TypeNeighborAdvertisement,
		layers.ICMPv6TypeRedirect,
		130, 131, 132, 143: // multicast listener query/report/done, MLDv2 report
		m.Kind = KindOther
		return m, nil
	}
	return Message{}, fmt.Errorf("%w: ICMPv6 type %d", ErrUnknownType, m.Type)
}

// decodeQuotedIPv6 extracts the identifier, sequence and destination of the
// Echo Request quoted in an ICMPv6 error.
func decodeQuotedIPv6(payload []byte) (id, seq uint16, dst netip.Addr, err error) {
	offset, ok := locateInnerIPv6Header(payload)
	if !ok {
		return 0, 0, netip.Addr{}, fmt.Errorf("%w: no quoted IPv6 header", ErrTruncated)
	}
	var ip layers.IPv6
	if err = ip.DecodeFromBytes(payload[offset:], gopacket.NilDecodeFeedback); err != nil {
		return 0, 0, netip.Addr{}, fmt.Errorf("%w: quoted IPv6 header: %v", ErrTruncated, err)
	}
	if ip.NextHeader != layers.IPProtocolICMPv6 {
		return 0, 0, netip.Addr{}, fmt.Errorf("%w: quoted next header %v", ErrUnknownType, ip.NextHeader)
	}
	inner := payload[offset+40:]
	if len(inner) < HeaderLen {
		return 0, 0, netip.Addr{}, fmt.Errorf("%w: quoted ICMPv6 header is %d bytes", ErrTruncated, len(inner))
	}
	if inner[0] != layers.ICMPv6TypeEchoRequest {
		return 0, 0, netip.Addr{}, fmt.Errorf("%w: quoted ICMPv6 type %d", ErrUnknownType, inner[0])
	}
	dst, _ = netip.AddrFromSlice(ip.DstIP)
	return binary.BigEndian.Uint16(inner[4:6]), binary.BigEndian.Uint16(inner[6:8]), dst, nil
}

// locateInnerIPv6Header returns the offset of the quoted IPv6 header inside
// an ICMPv6 error body. The body normally starts with 4 unused (or MTU)
// bytes, but some stacks omit them.
func locateInnerIPv6Header(payload []byte) (int, bool) {
	if len(payload) < 40 {
		return 0, false
	}

	if len(payload) >= 44 && payload[4]>>4 == 6 {
		return 4, true
	}

	if payload[0]>>4 == 6 {
		return 0, true
	}

	for offset := 1; offset+40 <= len(payload); offset++ {
		if payload[offset]>>4 == 6 {
			return offset, true
		}
	}

	return 0, false
}

// Package echo encodes and decodes ICMP Echo messages for IPv4 and IPv6.
package echo

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// HeaderLen is the length of the ICMP Echo header.
const HeaderLen = 8

// Family selects between ICMPv4 and ICMPv6.
type Family int

const (
	IPv4 Family = 4
	IPv6 Family = 6
)

func (f Family) String() string {
	switch f {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// FamilyOf returns the family of addr. IPv4-mapped IPv6 addresses are IPv4.
func FamilyOf(addr netip.Addr) Family {
	if addr.Unmap().Is4() {
		return IPv4
	}
	return IPv6
}

var (
	ErrTruncated   = errors.New("truncated ICMP message")
	ErrChecksum    = errors.New("ICMP checksum mismatch")
	ErrUnknownType = errors.New("unknown ICMP type")
)

// Kind tags a decoded Message.
type Kind int

const (
	KindOther Kind = iota
	KindEchoReply
	KindTimeExceeded
	KindUnreachable
)

func (k Kind) String() string {
	switch k {
	case KindEchoReply:
		return "echo-reply"
	case KindTimeExceeded:
		return "time-exceeded"
	case KindUnreachable:
		return "unreachable"
	}
	return "other"
}

// Message is a decoded ICMP message.
//
// For KindEchoReply, ID, Seq and Payload are those of the reply. For
// KindTimeExceeded and KindUnreachable, ID and Seq are taken from the Echo
// Request quoted in the error, and OriginalDst is the quoted destination.
type Message struct {
	Kind        Kind
	Type        uint8
	Code        uint8
	ID          uint16
	Seq         uint16
	Payload     []byte
	OriginalDst netip.Addr
}

// Codec builds Echo Requests carrying a fixed identifier and decodes the
// messages that come back.
type Codec struct {
	family      Family
	id          uint16
	source      netip.Addr
	destination netip.Addr
}

// NewCodec returns a codec for the given family and identifier. source and
// destination are only used for the ICMPv6 pseudo-header checksum; source may
// be the zero Addr when unknown, in which case the kernel fills the checksum.
func NewCodec(family Family, id uint16, source, destination netip.Addr) *Codec {
	return &Codec{
		family:      family,
		id:          id,
		source:      source.Unmap(),
		destination: destination.Unmap(),
	}
}

func (c *Codec) ID() uint16 { return c.id }

// Encode returns an Echo Request with the given sequence number and payload.
func (c *Codec) Encode(seq uint16, payload []byte) ([]byte, error) {
	typ := uint8(layers.ICMPv4TypeEchoRequest)
	if c.family == IPv6 {
		typ = layers.ICMPv6TypeEchoRequest
	}
	return c.encode(typ, seq, payload, c.source, c.destination)
}

// EncodeReply returns the Echo Reply the destination would send for seq.
func (c *Codec) EncodeReply(seq uint16, payload []byte) ([]byte, error) {
	typ := uint8(layers.ICMPv4TypeEchoReply)
	if c.family == IPv6 {
		typ = layers.ICMPv6TypeEchoReply
	}
	return c.encode(typ, seq, payload, c.destination, c.source)
}

func (c *Codec) encode(typ uint8, seq uint16, payload []byte, src, dst netip.Addr) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}

	var err error
	switch c.family {
	case IPv4:
		icmp := &layers.ICMPv4{
			TypeCode: layers.CreateICMPv4TypeCode(typ, 0),
			Id:       c.id,
			Seq:      seq,
		}
		err = gopacket.SerializeLayers(buf, opts, icmp, gopacket.Payload(payload))
	case IPv6:
		icmp := &layers.ICMPv6{
			TypeCode: layers.CreateICMPv6TypeCode(typ, 0),
		}
		echo := &layers.ICMPv6Echo{
			Identifier: c.id,
			SeqNumber:  seq,
		}
		if src.IsValid() && dst.IsValid() {
			ip := &layers.IPv6{
				Version:    6,
				NextHeader: layers.IPProtocolICMPv6,
				HopLimit:   64,
				SrcIP:      src.AsSlice(),
				DstIP:      dst.AsSlice(),
			}
			if err := icmp.SetNetworkLayerForChecksum(ip); err != nil {
				return nil, err
			}
		} else {
			opts.ComputeChecksums = false
		}
		err = gopacket.SerializeLayers(buf, opts, icmp, echo, gopacket.Payload(payload))
	default:
		return nil, fmt.Errorf("unsupported family %v", c.family)
	}
	if err != nil {
		return nil, fmt.Errorf("serialize echo: %w", err)
	}
	return buf.Bytes(), nil
}

// Package transport sends and receives raw ICMP messages.
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Packet is a received ICMP message without its IP header.
type Packet struct {
	Src      netip.Addr
	Dst      netip.Addr // invalid when the platform does not report it
	TTL      int        // -1 when the platform does not report it
	Data     []byte
	Received time.Time
}

// Conn is a raw ICMP socket for one address family.
type Conn struct {
	ipv6 bool
	conn *icmp.PacketConn
	p4   *ipv4.PacketConn
	p6   *ipv6.PacketConn
	ttl  int
	buf  []byte

	closeOnce sync.Once
	closeErr  error
}

// Open acquires a raw ICMP socket and sets its initial TTL (hop limit for
// IPv6). Opening requires elevated privileges on most systems.
func Open(ipv6 bool, ttl int) (*Conn, error) {
	network, address := "ip4:icmp", "0.0.0.0"
	if ipv6 {
		network, address = "ip6:ipv6-icmp", "::"
	}

	pc, err := icmp.ListenPacket(network, address)
	if err != nil {
		return nil, &OpenError{Network: network, Err: classifyOpen(err)}
	}

	c := &Conn{
		ipv6: ipv6,
		conn: pc,
		ttl:  -1,
		buf:  make([]byte, 65536),
	}
	if ipv6 {
		c.p6 = pc.IPv6PacketConn()
		if err := c.p6.SetControlMessage(ipv6ControlFlags, true); err != nil {
			slog.Debug("Failed to enable IPv6 control messages", "err", err)
		}
	} else {
		c.p4 = pc.IPv4PacketConn()
		if err := c.p4.SetControlMessage(ipv4ControlFlags, true); err != nil {
			slog.Debug("Failed to enable IPv4 control messages", "err", err)
		}
	}

	if err := c.installFilter(); err != nil {
		slog.Debug("ICMP filter not installed", "err", err)
	}

	if err := c.SetTTL(ttl); err != nil {
		pc.Close()
		return nil, &OpenError{Network: network, Err: err}
	}
	return c, nil
}

const (
	ipv4ControlFlags = ipv4.FlagTTL | ipv4.FlagDst
	ipv6ControlFlags = ipv6.FlagHopLimit | ipv6.FlagDst
)

// installFilter limits delivery to the ICMP types the prober decodes.
func (c *Conn) installFilter() error {
	if c.ipv6 {
		var f ipv6.ICMPFilter
		f.SetAll(true)
		f.Accept(ipv6.ICMPTypeEchoReply)
		f.Accept(ipv6.ICMPTypeTimeExceeded)
		f.Accept(ipv6.ICMPTypeDestinationUnreachable)
		return c.p6.SetICMPFilter(&f)
	}
	var f ipv4.ICMPFilter
	f.SetAll(true)
	f.Accept(ipv4.ICMPTypeEchoReply)
	f.Accept(ipv4.ICMPTypeTimeExceeded)
	f.Accept(ipv4.ICMPTypeDestinationUnreachable)
	return c.p4.SetICMPFilter(&f)
}

// SetTTL sets the TTL (IPv4) or unicast hop limit (IPv6) of subsequent sends.
func (c *Conn) SetTTL(ttl int) error {
	if ttl == c.ttl {
		return nil
	}
	var err error
	if c.ipv6 {
		err = c.p6.SetHopLimit(ttl)
	} else {
		err = c.p4.SetTTL(ttl)
	}
	if err != nil {
		return fmt.Errorf("set ttl %d: %w", ttl, err)
	}
	c.ttl = ttl
	return nil
}

// Send writes one ICMP message to dst.
func (c *Conn) Send(dst netip.Addr, b []byte) error {
	_, err := c.conn.WriteTo(b, &net.IPAddr{IP: dst.AsSlice(), Zone: dst.Zone()})
	if err != nil {
		return &SendError{Dst: dst, Err: err}
	}
	return nil
}

// Receive waits up to timeout for one ICMP message. It returns nil, nil when
// nothing arrives in time.
func (c *Conn) Receive(timeout time.Duration) (*Packet, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, &ReceiveError{Err: err}
	}

	var (
		n   int
		src net.Addr
		err error
		pkt = &Packet{TTL: -1}
	)
	if c.ipv6 {
		var cm *ipv6.ControlMessage
		n, cm, src, err = c.p6.ReadFrom(c.buf)
		if cm != nil {
			pkt.TTL = cm.HopLimit
			pkt.Dst, _ = netip.AddrFromSlice(cm.Dst)
		}
	} else {
		var cm *ipv4.ControlMessage
		n, cm, src, err = c.p4.ReadFrom(c.buf)
		if cm != nil {
			pkt.TTL = cm.TTL
			pkt.Dst, _ = netip.AddrFromSlice(cm.Dst)
		}
	}
	pkt.Received = time.Now()

	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, nil
		}
		return nil, &ReceiveError{Err: err}
	}

	if a, ok := src.(*net.IPAddr); ok {
		pkt.Src, _ = netip.AddrFromSlice(a.IP)
		pkt.Src = pkt.Src.Unmap()
	}
	pkt.Dst = pkt.Dst.Unmap()
	if !c.ipv6 && pkt.TTL == 0 {
		// Some platforms deliver the control message without the TTL set.
		pkt.TTL = -1
	}
	pkt.Data = append([]byte(nil), c.buf[:n]...)
	return pkt, nil
}

// Close releases the socket. Subsequent calls return the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

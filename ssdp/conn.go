package ssdp

import (
	"net"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/lanctl/upnpcp/addrmode"
)

// multicastConn is the minimal per-family surface the Datagram Server
// Core needs. golang.org/x/net/ipv4.PacketConn and
// golang.org/x/net/ipv6.PacketConn expose the same operations under
// slightly different names (SetMulticastTTL vs SetMulticastHopLimit)
// and distinct control-message types; this control point never reads
// or writes those control messages, so the two adapters below simply
// drop them and present one interface to the rest of the package.
type multicastConn interface {
	JoinGroup(ifi *net.Interface, group net.Addr) error
	LeaveGroup(ifi *net.Interface, group net.Addr) error
	SetTTL(ttl int) error
	SetReadDeadline(t time.Time) error
	ReadFrom(b []byte) (n int, src net.Addr, err error)
	WriteTo(b []byte, dst net.Addr) (int, error)
	LocalAddr() net.Addr
	Close() error
}

type ipv4Conn struct{ pc *ipv4.PacketConn }

func (c *ipv4Conn) JoinGroup(ifi *net.Interface, group net.Addr) error  { return c.pc.JoinGroup(ifi, group) }
func (c *ipv4Conn) LeaveGroup(ifi *net.Interface, group net.Addr) error { return c.pc.LeaveGroup(ifi, group) }
func (c *ipv4Conn) SetTTL(ttl int) error                                { return c.pc.SetMulticastTTL(ttl) }
func (c *ipv4Conn) SetReadDeadline(t time.Time) error                   { return c.pc.SetReadDeadline(t) }
func (c *ipv4Conn) LocalAddr() net.Addr                                 { return c.pc.LocalAddr() }
func (c *ipv4Conn) Close() error                                        { return c.pc.Close() }

func (c *ipv4Conn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, _, src, err := c.pc.ReadFrom(b)
	return n, src, err
}

func (c *ipv4Conn) WriteTo(b []byte, dst net.Addr) (int, error) {
	return c.pc.WriteTo(b, nil, dst)
}

type ipv6Conn struct{ pc *ipv6.PacketConn }

func (c *ipv6Conn) JoinGroup(ifi *net.Interface, group net.Addr) error  { return c.pc.JoinGroup(ifi, group) }
func (c *ipv6Conn) LeaveGroup(ifi *net.Interface, group net.Addr) error { return c.pc.LeaveGroup(ifi, group) }
func (c *ipv6Conn) SetTTL(hopLimit int) error                           { return c.pc.SetMulticastHopLimit(hopLimit) }
func (c *ipv6Conn) SetReadDeadline(t time.Time) error                   { return c.pc.SetReadDeadline(t) }
func (c *ipv6Conn) LocalAddr() net.Addr                                 { return c.pc.LocalAddr() }
func (c *ipv6Conn) Close() error                                        { return c.pc.Close() }

func (c *ipv6Conn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, _, src, err := c.pc.ReadFrom(b)
	return n, src, err
}

func (c *ipv6Conn) WriteTo(b []byte, dst net.Addr) (int, error) {
	return c.pc.WriteTo(b, nil, dst)
}

const multicastTTL = 4

func openMulticastSocket(mode addrmode.Mode, iface *net.Interface, bindPort int) (multicastConn, error) {
	udpConn, err := net.ListenUDP(mode.Network(), &net.UDPAddr{Port: bindPort})
	if err != nil {
		return nil, err
	}
	var conn multicastConn
	if mode == addrmode.IPv6LinkLocal {
		pc := ipv6.NewPacketConn(udpConn)
		conn = &ipv6Conn{pc}
	} else {
		pc := ipv4.NewPacketConn(udpConn)
		conn = &ipv4Conn{pc}
	}
	if err := setOutgoingInterface(conn, iface); err != nil {
		udpConn.Close()
		return nil, err
	}
	if err := conn.SetTTL(multicastTTL); err != nil {
		udpConn.Close()
		return nil, err
	}
	return conn, nil
}

func setOutgoingInterface(conn multicastConn, iface *net.Interface) error {
	switch c := conn.(type) {
	case *ipv4Conn:
		return c.pc.SetMulticastInterface(iface)
	case *ipv6Conn:
		return c.pc.SetMulticastInterface(iface)
	}
	return nil
}

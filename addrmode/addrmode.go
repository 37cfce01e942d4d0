// Package addrmode enumerates the IPv4 and IPv6-link-local SSDP
// multicast groups and picks the matching local address on a network
// interface.
package addrmode

import (
	"errors"
	"net"
)

// ErrNoSuitableAddress is returned when an interface has no address of
// the mode's family, or (for IPv6) no link-local address.
var ErrNoSuitableAddress = errors.New("addrmode: interface has no suitable address")

// Mode is one of the two SSDP multicast address families.
type Mode int

const (
	// IPv4 is the 239.255.255.250:1900 SSDP multicast group.
	IPv4 Mode = iota
	// IPv6LinkLocal is the [ff02::c]:1900 SSDP multicast group.
	IPv6LinkLocal
)

var (
	ipv4Group = net.IPv4(239, 255, 255, 250)
	ipv6Group = net.ParseIP("ff02::c")
)

const ssdpPort = 1900

// GroupAddress returns the multicast group IP for the mode.
func (m Mode) GroupAddress() net.IP {
	if m == IPv6LinkLocal {
		return ipv6Group
	}
	return ipv4Group
}

// SocketAddress returns the group address and SSDP port as a UDPAddr.
func (m Mode) SocketAddress() *net.UDPAddr {
	return &net.UDPAddr{IP: m.GroupAddress(), Port: ssdpPort}
}

// String renders the canonical display form used in HOST headers:
// "239.255.255.250:1900" or "[ff02::c]:1900".
func (m Mode) String() string {
	if m == IPv6LinkLocal {
		return "[ff02::c]:1900"
	}
	return "239.255.255.250:1900"
}

// Network returns the net package network name for use with
// net.ListenPacket/net.ListenUDP ("udp4" or "udp6").
func (m Mode) Network() string {
	if m == IPv6LinkLocal {
		return "udp6"
	}
	return "udp4"
}

// PickInterfaceAddress returns the first IPv4 address (IPv4 mode) or
// the first link-local IPv6 address (IPv6LinkLocal mode) configured on
// iface. Behavior when an interface carries more than one qualifying
// address is unspecified beyond "first found in iface.Addrs() order" —
// callers should not depend on a particular one being chosen when more
// than one exists.
func (m Mode) PickInterfaceAddress(iface *net.Interface) (net.IP, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP
		switch m {
		case IPv4:
			if v4 := ip.To4(); v4 != nil {
				return v4, nil
			}
		case IPv6LinkLocal:
			if ip.To4() == nil && ip.IsLinkLocalUnicast() {
				return ip, nil
			}
		}
	}
	return nil, ErrNoSuitableAddress
}

// PrefixLength returns the subnet prefix length of iface's address that
// matches ip, or -1 if no configured address covers ip. Used by the
// SSDP message's valid-segment check.
func PrefixLength(iface *net.Interface, ip net.IP) int {
	addrs, err := iface.Addrs()
	if err != nil {
		return -1
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ipNet.IP.Equal(ip) {
			ones, _ := ipNet.Mask.Size()
			return ones
		}
	}
	return -1
}

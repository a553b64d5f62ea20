// Package types holds the data model shared across the connection, peer
// registry and sync layers: peer addresses, capability bitsets, difficulty
// and the sync status enum.
package types

import (
	"fmt"
	"net"
	"strings"
)

// AddrKind discriminates the two forms a PeerAddr can take.
type AddrKind uint8

const (
	AddrIP AddrKind = iota
	AddrOnion
)

// PeerAddr is a tagged union over an IP socket address and an onion host
// identifier. Equality is byte equality for IP (after IPv4-mapped-IPv6
// normalization) and case-sensitive string equality for onion.
type PeerAddr struct {
	Kind  AddrKind
	IP    net.IP
	Port  uint16
	Onion string
}

// NewIPAddr builds a PeerAddr for an IPv4/IPv6 socket address, normalizing
// IPv4-mapped IPv6 down to plain IPv4.
func NewIPAddr(ip net.IP, port uint16) PeerAddr {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return PeerAddr{Kind: AddrIP, IP: ip, Port: port}
}

// NewOnionAddr builds a PeerAddr for an onion service host and port.
func NewOnionAddr(host string, port uint16) PeerAddr {
	return PeerAddr{Kind: AddrOnion, Onion: host, Port: port}
}

// Equal implements the equality rule from the data model: byte equality for
// IP, case-sensitive string equality for onion.
func (a PeerAddr) Equal(b PeerAddr) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case AddrOnion:
		return a.Onion == b.Onion
	default:
		return a.IP.Equal(b.IP) && a.Port == b.Port
	}
}

// Key returns a value usable as a Go map key; net.IP is a slice and cannot
// be used directly, so it is rendered through String().
func (a PeerAddr) Key() string {
	return a.String()
}

func (a PeerAddr) String() string {
	switch a.Kind {
	case AddrOnion:
		return a.Onion
	default:
		return fmt.Sprintf("%s:%d", a.IP.String(), a.Port)
	}
}

// IsLoopback reports whether the address refers to the local host; onion
// addresses are never loopback.
func (a PeerAddr) IsLoopback() bool {
	if a.Kind == AddrOnion {
		return false
	}
	return a.IP.IsLoopback()
}

// IsOnion reports whether this address must be dialed through a SOCKS proxy.
func (a PeerAddr) IsOnion() bool { return a.Kind == AddrOnion }

// ParseOnionHost reports whether host looks like a Tor onion service name.
func ParseOnionHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(host), ".onion")
}

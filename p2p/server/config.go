package server

import "time"

// Config holds the listener/admission/NAT tunables named in §6.
type Config struct {
	Host string
	Port uint16

	// SocksPort routes outbound dials through a local SOCKS5 proxy when
	// non-zero (required for onion targets); 0 means direct dialing.
	SocksPort uint16

	MaxInbound  int
	MaxOutbound int
	// ListenerBufferCount is extra headroom on inbound accept beyond MaxInbound.
	ListenerBufferCount int

	SelfAddrs []string // our own advertised addresses, for self-loop detection

	AllowLoopback bool // disabled in production; enabled under test

	InitialSocketTimeout time.Duration
	AcceptPollInterval   time.Duration

	NATEnabled bool

	// AcceptRatePerSec and AcceptBurst throttle the rate of accepted inbound
	// handshakes, independent of MaxInbound: a flood of short-lived connection
	// attempts from one source is an abuse pattern distinct from steady-state
	// admission pressure. Zero disables throttling.
	AcceptRatePerSec float64
	AcceptBurst      int
}

// DefaultConfig mirrors the source's constants: 5s initial socket
// read/write timeouts, a short accept-loop poll to avoid busy spin.
func DefaultConfig() Config {
	return Config{
		Host:                 "0.0.0.0",
		Port:                 3414,
		MaxInbound:           64,
		MaxOutbound:          12,
		ListenerBufferCount:  8,
		InitialSocketTimeout: 5 * time.Second,
		AcceptPollInterval:   5 * time.Millisecond,
		AcceptRatePerSec:     20,
		AcceptBurst:          40,
	}
}

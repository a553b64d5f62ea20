package server

import (
	"net"
	"testing"

	"github.com/mwc-project/mwc-node/p2p/peers"
	"github.com/mwc-project/mwc-node/p2p/types"
)

func testServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	registry := peers.New(nil, peers.DefaultConfig(), nil)
	return New(cfg, registry, nil, nil)
}

// TestConnectRefusesSelfLoop exercises §8 scenario 3: dialing one of our
// own advertised addresses must be refused without creating an entry.
func TestConnectRefusesSelfLoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SelfAddrs = []string{"x.onion"}
	s := testServer(t, cfg)

	addr := types.NewOnionAddr("x.onion", 3414)
	if _, err := s.Connect(addr); err != ErrPeerWithSelf {
		t.Fatalf("Connect(self onion) = %v, want ErrPeerWithSelf", err)
	}
}

func TestConnectRefusesLoopbackInProduction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowLoopback = false
	s := testServer(t, cfg)

	addr := types.NewIPAddr(net.ParseIP("127.0.0.1"), 3414)
	if _, err := s.Connect(addr); err != ErrLoopbackDenied {
		t.Fatalf("Connect(loopback) = %v, want ErrLoopbackDenied", err)
	}
}

func TestConnectRefusesWhenStopped(t *testing.T) {
	cfg := DefaultConfig()
	s := testServer(t, cfg)
	s.stopped = 1

	addr := types.NewIPAddr(net.ParseIP("8.8.8.8"), 3414)
	if _, err := s.Connect(addr); err != ErrStopping {
		t.Fatalf("Connect while stopped = %v, want ErrStopping", err)
	}
}

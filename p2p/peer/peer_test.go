package peer

import (
	"net"
	"testing"

	"github.com/mwc-project/mwc-node/p2p/conn"
	"github.com/mwc-project/mwc-node/p2p/iface"
	"github.com/mwc-project/mwc-node/p2p/types"
)

type noopHandler struct{}

func (noopHandler) Consume(types.PeerAddr, uint8, []byte) (iface.Consumed, error) {
	return iface.Consumed{}, nil
}

func newTestPeer(t *testing.T) (*Peer, *conn.Worker, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	addr := types.NewIPAddr(net.ParseIP("127.0.0.1"), 3414)
	worker := conn.New(addr, local, noopHandler{})
	info := &types.PeerInfo{Addr: addr}
	return New(info, worker, DefaultThresholds()), worker, remote
}

// TestIsConnectedReflectsWorkerLiveness covers §3's invariant that a peer
// whose worker goroutines have exited (for any reason, including a fatal
// I/O error) must stop reporting connected — not just while a Stop() call
// is in flight.
func TestIsConnectedReflectsWorkerLiveness(t *testing.T) {
	p, worker, remote := newTestPeer(t)
	defer remote.Close()

	if !p.IsConnected() {
		t.Fatal("freshly built peer reports not connected")
	}

	worker.Stop()
	if p.IsConnected() {
		t.Fatal("peer still reports connected after its worker stopped")
	}
}

func TestIsConnectedFalseWhenBanned(t *testing.T) {
	p, _, remote := newTestPeer(t)
	defer remote.Close()

	p.MarkBanned()
	if p.IsConnected() {
		t.Fatal("banned peer reports connected")
	}
}

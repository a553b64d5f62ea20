package sync

import (
	"net"
	"testing"

	"github.com/mwc-project/mwc-node/p2p/conn"
	"github.com/mwc-project/mwc-node/p2p/iface"
	"github.com/mwc-project/mwc-node/p2p/peer"
	"github.com/mwc-project/mwc-node/p2p/types"
)

type discardHandler struct{}

func (discardHandler) Consume(types.PeerAddr, uint8, []byte) (iface.Consumed, error) {
	return iface.Consumed{}, nil
}

// newTestSyncPeer builds a Peer Handle over a net.Pipe with its remote end
// drained, enough to exercise Send/Addr/Info without a running worker.
func newTestSyncPeer(t *testing.T, port uint16) *peer.Peer {
	t.Helper()
	local, remote := net.Pipe()
	addr := types.NewIPAddr(net.ParseIP("127.0.0.1"), port)
	w := conn.New(addr, local, discardHandler{})
	info := &types.PeerInfo{Addr: addr, Direction: types.Outbound}
	t.Cleanup(func() { _ = remote.Close() })
	return peer.New(info, w, peer.DefaultThresholds())
}

package conn

import (
	"net"
	"testing"

	"github.com/mwc-project/mwc-node/p2p/codec"
	"github.com/mwc-project/mwc-node/p2p/iface"
	"github.com/mwc-project/mwc-node/p2p/types"
)

type noopHandler struct{}

func (noopHandler) Consume(types.PeerAddr, uint8, []byte) (iface.Consumed, error) {
	return iface.Consumed{}, nil
}

func newTestWorker(t *testing.T) (*Worker, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	addr := types.NewIPAddr(net.ParseIP("127.0.0.1"), 3414)
	w := New(addr, local, noopHandler{})
	return w, remote
}

// TestOutboundQueueDropsOnOverflow exercises the "outbound full drop"
// boundary from §8: the 41st enqueue on a full queue is dropped, not
// blocked, and Send still reports success.
func TestOutboundQueueDropsOnOverflow(t *testing.T) {
	w, remote := newTestWorker(t)
	defer remote.Close()

	h := w.Handle()
	for i := 0; i < SendChannelCap; i++ {
		if err := h.Send(codec.MsgTransaction, []byte("tx"), false); err != nil {
			t.Fatalf("enqueue %d: unexpected error %v", i, err)
		}
	}
	if got := len(h.queue); got != SendChannelCap {
		t.Fatalf("queue length = %d, want %d", got, SendChannelCap)
	}

	// One more enqueue beyond capacity must be silently dropped, not
	// blocked and not reported as an error.
	if err := h.Send(codec.MsgTransaction, []byte("overflow"), false); err != nil {
		t.Fatalf("overflow enqueue returned error: %v", err)
	}
	if got := len(h.queue); got != SendChannelCap {
		t.Fatalf("queue length after overflow = %d, want unchanged %d", got, SendChannelCap)
	}
}

func TestSendAfterStopReturnsDisconnected(t *testing.T) {
	w, remote := newTestWorker(t)
	defer remote.Close()

	w.stop.Stop()
	if err := w.Handle().Send(codec.MsgPing, nil, false); err != ErrQueueDisconnected {
		t.Fatalf("Send after stop: got %v, want ErrQueueDisconnected", err)
	}
}

// TestAliveReflectsStopFlag exercises §3's liveness invariant: Alive must
// flip false the instant the stop flag is set, regardless of which
// goroutine (or test, standing in for a fatal I/O error) set it.
func TestAliveReflectsStopFlag(t *testing.T) {
	w, remote := newTestWorker(t)
	defer remote.Close()

	if !w.Alive() {
		t.Fatal("freshly built worker reports not alive")
	}
	w.stop.Stop()
	if w.Alive() {
		t.Fatal("worker reports alive after stop.Stop()")
	}
}

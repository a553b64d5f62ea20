package sync

import (
	"testing"

	"github.com/mwc-project/mwc-node/p2p/peer"
	"github.com/mwc-project/mwc-node/p2p/types"
)

func noHashes() []types.Hash { return nil }

func TestManagerBeginEntersHeaderHashSync(t *testing.T) {
	mgr := NewManager(&fakeChain{}, DefaultConfig(), noHashes, noHashes)
	if mgr.Status() != types.NoSync {
		t.Fatalf("new manager status = %v, want NoSync", mgr.Status())
	}
	mgr.Begin()
	if mgr.Status() != types.HeaderHashSync {
		t.Fatalf("status after Begin = %v, want HeaderHashSync", mgr.Status())
	}
}

func TestManagerBeginIsIdempotent(t *testing.T) {
	mgr := NewManager(&fakeChain{}, DefaultConfig(), noHashes, noHashes)
	mgr.Begin()
	mgr.Begin()
	if mgr.Status() != types.HeaderHashSync {
		t.Fatalf("a second Begin() must not re-enter or reset the stage, status = %v", mgr.Status())
	}
}

// TestManagerAdvancesOnHeaderHashMajority exercises the HeaderHashSync ->
// HeaderSync transition: a single responding peer forms a trivial majority
// of one, so the next pulse after its vote advances the macro stage.
func TestManagerAdvancesOnHeaderHashMajority(t *testing.T) {
	chain := &fakeChain{archiveHeader: []byte("root-x")}
	mgr := NewManager(chain, DefaultConfig(), noHashes, noHashes)
	mgr.Begin()

	p := newTestSyncPeer(t, 5600)
	if _, err := mgr.SyncRequest([]*peer.Peer{p}); err != nil {
		t.Fatalf("SyncRequest (request phase): %v", err)
	}
	if err := mgr.OnMessage(p, 0, []byte("root-x")); err != nil {
		t.Fatalf("OnMessage: %v", err)
	}
	if _, err := mgr.SyncRequest([]*peer.Peer{p}); err != nil {
		t.Fatalf("SyncRequest (transition phase): %v", err)
	}
	if mgr.Status() != types.HeaderSync {
		t.Fatalf("status = %v, want HeaderSync", mgr.Status())
	}
}

func TestManagerSyncRequestOnNoSyncReturnsDoneWithoutPeers(t *testing.T) {
	mgr := NewManager(&fakeChain{}, DefaultConfig(), noHashes, noHashes)
	resp, err := mgr.SyncRequest(nil)
	if err != nil {
		t.Fatalf("SyncRequest: %v", err)
	}
	if resp.Kind != types.RespSyncDone {
		t.Fatalf("resp.Kind = %v, want RespSyncDone", resp.Kind)
	}
}

// TestAwaitPeersVisibleUntilBegin covers the review fix: Status() must be
// able to report AwaitingPeers during the Runner's bootstrap quarantine,
// and Begin() must still transition out of it exactly like it does out of
// the bare NoSync zero value.
func TestAwaitPeersVisibleUntilBegin(t *testing.T) {
	mgr := NewManager(&fakeChain{}, DefaultConfig(), noHashes, noHashes)
	mgr.AwaitPeers()
	if mgr.Status() != types.AwaitingPeers {
		t.Fatalf("status after AwaitPeers = %v, want AwaitingPeers", mgr.Status())
	}
	mgr.Begin()
	if mgr.Status() != types.HeaderHashSync {
		t.Fatalf("status after Begin = %v, want HeaderHashSync", mgr.Status())
	}
}

func TestAwaitPeersNoopOnceStarted(t *testing.T) {
	mgr := NewManager(&fakeChain{}, DefaultConfig(), noHashes, noHashes)
	mgr.Begin()
	mgr.AwaitPeers()
	if mgr.Status() != types.HeaderHashSync {
		t.Fatalf("AwaitPeers must not regress status, got %v", mgr.Status())
	}
}

func TestManagerTimedOutPeersNilOutsideHeaderSync(t *testing.T) {
	mgr := NewManager(&fakeChain{}, DefaultConfig(), noHashes, noHashes)
	mgr.Begin() // HeaderHashSync, not HeaderSync
	if got := mgr.TimedOutPeers(); got != nil {
		t.Fatalf("TimedOutPeers outside HeaderSync = %v, want nil", got)
	}
}

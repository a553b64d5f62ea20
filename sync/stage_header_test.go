package sync

import (
	"testing"
	"time"

	"github.com/mwc-project/mwc-node/p2p/peer"
	"github.com/mwc-project/mwc-node/p2p/types"
)

// TestHeaderStageReportsFullHistBoostHint covers the SyncResponse ->
// Runner -> Registry boost-hint data flow: a live HeaderStage request must
// advertise CapFullHist so the Runner can prioritize full-history peers
// without falling back to its own status-keyed default.
func TestHeaderStageReportsFullHistBoostHint(t *testing.T) {
	cfg := Config{HeaderBatchSize: 10, HeaderRequestTimeout: time.Second, MaxTimeoutsBeforeDrop: 3}
	stage := NewHeaderStage(&fakeChain{}, cfg, 0, 100)
	a := newTestSyncPeer(t, 5504)

	resp, err := stage.Request([]*peer.Peer{a})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.PeersCapabilities != types.CapFullHist {
		t.Fatalf("PeersCapabilities = %v, want CapFullHist", resp.PeersCapabilities)
	}
}

// TestHeaderStageTimeoutAccumulatesAndFlagsPeer exercises §8 scenario 5's
// drop side: a peer that repeatedly fails to answer within the deadline
// accumulates a timeout count, and is reported by TimedOutPeers once it
// reaches MaxTimeoutsBeforeDrop.
func TestHeaderStageTimeoutAccumulatesAndFlagsPeer(t *testing.T) {
	cfg := Config{
		HeaderBatchSize:       1,
		HeaderRequestTimeout:  5 * time.Millisecond,
		MaxTimeoutsBeforeDrop: 3,
	}
	chain := &fakeChain{}
	stage := NewHeaderStage(chain, cfg, 0, 100)
	a := newTestSyncPeer(t, 5500)

	for i := 0; i < 4; i++ {
		if i > 0 {
			time.Sleep(10 * time.Millisecond)
		}
		if _, err := stage.Request([]*peer.Peer{a}); err != nil {
			t.Fatalf("Request iteration %d: %v", i, err)
		}
	}

	timedOut := stage.TimedOutPeers()
	if len(timedOut) != 1 || !timedOut[0].Equal(a.Addr()) {
		t.Fatalf("expected %s to be flagged after repeated timeouts, got %+v", a.Addr(), timedOut)
	}
}

// TestHeaderStageReissuesTimedOutBatchToAnotherPeer exercises §8 scenario
// 5's reissue side: once peer A's batch times out, the next Request call
// (given only peer B as a candidate) hands B the outstanding work instead.
func TestHeaderStageReissuesTimedOutBatchToAnotherPeer(t *testing.T) {
	cfg := Config{
		HeaderBatchSize:       1,
		HeaderRequestTimeout:  5 * time.Millisecond,
		MaxTimeoutsBeforeDrop: 10,
	}
	chain := &fakeChain{}
	stage := NewHeaderStage(chain, cfg, 0, 5)
	a := newTestSyncPeer(t, 5501)
	b := newTestSyncPeer(t, 5502)

	if _, err := stage.Request([]*peer.Peer{a}); err != nil {
		t.Fatalf("first Request: %v", err)
	}
	if _, ok := stage.inFlight[0]; !ok {
		t.Fatalf("expected batch 0 in flight to peer A")
	}

	time.Sleep(10 * time.Millisecond)

	if _, err := stage.Request([]*peer.Peer{b}); err != nil {
		t.Fatalf("second Request: %v", err)
	}

	for _, fl := range stage.inFlight {
		if fl.peerAddr.Equal(a.Addr()) {
			t.Fatalf("timed-out batch should not remain assigned to peer A")
		}
	}
	found := false
	for _, fl := range stage.inFlight {
		if fl.peerAddr.Equal(b.Addr()) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the reissued batch to be assigned to peer B, inFlight=%+v", stage.inFlight)
	}
}

// TestHeaderStageDoneWhenTargetReachedWithNoOutstanding confirms the normal
// completion path: once nextBatch has caught up to target and nothing is
// in flight, the stage reports itself Done.
func TestHeaderStageDoneWhenTargetReachedWithNoOutstanding(t *testing.T) {
	cfg := Config{HeaderBatchSize: 10, HeaderRequestTimeout: time.Second, MaxTimeoutsBeforeDrop: 3}
	chain := &fakeChain{}
	stage := NewHeaderStage(chain, cfg, 10, 10)
	a := newTestSyncPeer(t, 5503)

	if _, err := stage.Request([]*peer.Peer{a}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !stage.Done() {
		t.Fatalf("expected stage to be immediately Done when startHeight already meets target")
	}
}

package sync

import (
	"testing"
	"time"

	"github.com/mwc-project/mwc-node/p2p/peers"
	"github.com/mwc-project/mwc-node/p2p/types"
)

// TestRunnerStaysInQuarantineBelowMinPeers exercises §8 scenario 4's gating
// condition: with the registry below MinPeers and AwaitingPeersWait not yet
// elapsed, the Runner must not call Begin() and the macro status stays
// AwaitingPeers.
//
// waitForMinPeers polls coarsely (every 3s, up to AwaitingPeersWait), so
// rather than racing that cadence this only asserts the
// negative (still quarantined shortly after Start) and leaves the positive
// case (peers already present at Start) to the sibling test below.
func TestRunnerStaysInQuarantineBelowMinPeers(t *testing.T) {
	cfg := Config{
		MinPeers:          1,
		AwaitingPeersWait: time.Hour,
		NormalPulse:       5 * time.Millisecond,
		HeaderDrainPulse:  5 * time.Millisecond,
	}
	registry := peers.New(nil, peers.DefaultConfig(), nil)
	mgr := NewManager(&fakeChain{}, cfg, noHashes, noHashes)
	runner := NewRunner(mgr, cfg, registry)

	runner.Start()
	defer runner.Stop()

	time.Sleep(50 * time.Millisecond)
	if mgr.Status() != types.AwaitingPeers {
		t.Fatalf("status = %v before MinPeers is reached, want AwaitingPeers (bootstrap quarantine)", mgr.Status())
	}
}

// TestRunnerProceedsImmediatelyWhenMinPeersAlreadyMet exercises the other
// half of §8 scenario 4: once the registry already holds MinPeers, the
// bootstrap check passes on its very first poll and the Manager leaves
// NoSync without waiting out AwaitingPeersWait.
func TestRunnerProceedsImmediatelyWhenMinPeersAlreadyMet(t *testing.T) {
	cfg := Config{
		MinPeers:          1,
		AwaitingPeersWait: time.Hour,
		NormalPulse:       5 * time.Millisecond,
		HeaderDrainPulse:  5 * time.Millisecond,
	}
	registry := peers.New(nil, peers.DefaultConfig(), nil)
	p := newTestSyncPeer(t, 5700)
	if err := registry.AddConnected(p); err != nil {
		t.Fatalf("AddConnected: %v", err)
	}

	mgr := NewManager(&fakeChain{}, cfg, noHashes, noHashes)
	runner := NewRunner(mgr, cfg, registry)

	runner.Start()
	defer runner.Stop()

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		if mgr.Status() == types.HeaderHashSync {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("runner never reached HeaderHashSync although MinPeers was already satisfied at Start, status = %v", mgr.Status())
}

// TestRunnerStopDuringQuarantineIsClean confirms Stop() unblocks
// waitForMinPeers and returns promptly when no peers ever arrive.
func TestRunnerStopDuringQuarantineIsClean(t *testing.T) {
	cfg := Config{
		MinPeers:          3,
		AwaitingPeersWait: time.Hour,
		NormalPulse:       5 * time.Millisecond,
		HeaderDrainPulse:  5 * time.Millisecond,
	}
	registry := peers.New(nil, peers.DefaultConfig(), nil)
	mgr := NewManager(&fakeChain{}, cfg, noHashes, noHashes)
	runner := NewRunner(mgr, cfg, registry)

	runner.Start()
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		runner.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop() did not return promptly while stuck in bootstrap quarantine")
	}
	if mgr.Status() != types.AwaitingPeers {
		t.Fatalf("status = %v, want AwaitingPeers (Begin must never have been called)", mgr.Status())
	}
}

package peers

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/mwc-project/mwc-node/p2p/peer"
	"github.com/mwc-project/mwc-node/p2p/types"
)

// TestCleanPeersRemovesAbusivePeer exercises §8 scenario 2: a peer whose
// received rate exceeds the abuse threshold is removed and persisted as
// Banned.
func TestCleanPeersRemovesAbusivePeer(t *testing.T) {
	r, store := testRegistry(t)

	lowThreshold := peer.Thresholds{AbusiveBytesPerMin: 1000}
	abusive, _ := newTestPeer(t, 4400, types.Outbound, lowThreshold)
	healthy, _ := newTestPeer(t, 4401, types.Outbound, lowThreshold)

	if err := r.AddConnected(abusive); err != nil {
		t.Fatalf("AddConnected abusive: %v", err)
	}
	if err := r.AddConnected(healthy); err != nil {
		t.Fatalf("AddConnected healthy: %v", err)
	}

	abusive.Tracker().IncReceived(2000, false)

	r.CleanPeers(uint256.Int{}, 0, 0)

	if _, ok := r.Get(abusive.Addr()); ok {
		t.Fatalf("abusive peer should have been removed by clean_peers")
	}
	if _, ok := r.Get(healthy.Addr()); !ok {
		t.Fatalf("healthy peer should not have been touched")
	}

	data, ok, err := store.Get(abusive.Addr())
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if !ok || data.State != types.Banned || data.BanReason != types.BanAbusive {
		t.Fatalf("expected abusive peer persisted as Banned/Abusive, got %+v (ok=%v)", data, ok)
	}
}

// TestCleanPeersIdempotent exercises the round-trip property: a second
// clean_peers call with no intervening input removes nothing further.
func TestCleanPeersIdempotent(t *testing.T) {
	r, _ := testRegistry(t)

	p, _ := newTestPeer(t, 4500, types.Outbound, peer.DefaultThresholds())
	if err := r.AddConnected(p); err != nil {
		t.Fatalf("AddConnected: %v", err)
	}

	r.CleanPeers(uint256.Int{}, 0, 0)
	if _, ok := r.Get(p.Addr()); !ok {
		t.Fatalf("healthy peer should survive the first clean_peers pass")
	}

	r.CleanPeers(uint256.Int{}, 0, 0)
	if _, ok := r.Get(p.Addr()); !ok {
		t.Fatalf("healthy peer should also survive a repeated clean_peers pass")
	}
}

func TestCleanPeersExcessOutboundCapsAtTwoPerCycle(t *testing.T) {
	r, _ := testRegistry(t)
	r.cfg.MaxOutbound = 2

	for i := 0; i < 6; i++ {
		p, _ := newTestPeer(t, uint16(4600+i), types.Outbound, peer.DefaultThresholds())
		if err := r.AddConnected(p); err != nil {
			t.Fatalf("AddConnected %d: %v", i, err)
		}
	}

	r.CleanPeers(uint256.Int{}, 0, 0)

	if got := r.Count(); got != 4 {
		t.Fatalf("expected at most 2 excess-outbound removals per cycle (6 -> 4), got count %d", got)
	}
}

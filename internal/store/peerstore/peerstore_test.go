package peerstore

import (
	"net"
	"testing"

	"github.com/mwc-project/mwc-node/p2p/types"
)

func mustOpenMem(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMem()
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveGetRoundTrip(t *testing.T) {
	s := mustOpenMem(t)

	addr := types.NewIPAddr(net.ParseIP("10.0.0.1"), 3414)
	data := types.PeerData{
		Addr:          addr,
		Capabilities:  types.CapFullHist | types.CapPeerList,
		UserAgent:     "mwcnode/0.1",
		State:         types.Healthy,
		LastConnected: 1000,
	}
	if err := s.Save(data); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := s.Get(addr)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected record to be found")
	}
	if got.UserAgent != data.UserAgent || got.State != data.State {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, data)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := mustOpenMem(t)

	addr := types.NewIPAddr(net.ParseIP("10.0.0.2"), 3414)
	_, ok, err := s.Get(addr)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected no record for an address never saved")
	}
}

func TestFindPeersFiltersByStateAndCapability(t *testing.T) {
	s := mustOpenMem(t)

	healthy := types.PeerAddr{}
	healthy = types.NewIPAddr(net.ParseIP("10.0.0.3"), 3414)
	banned := types.NewIPAddr(net.ParseIP("10.0.0.4"), 3414)

	if err := s.Save(types.PeerData{Addr: healthy, State: types.Healthy, Capabilities: types.CapPibd}); err != nil {
		t.Fatalf("Save healthy: %v", err)
	}
	if err := s.Save(types.PeerData{Addr: banned, State: types.Banned, Capabilities: types.CapPibd}); err != nil {
		t.Fatalf("Save banned: %v", err)
	}

	found, err := s.FindPeers(types.Healthy, types.CapPibd)
	if err != nil {
		t.Fatalf("FindPeers: %v", err)
	}
	if len(found) != 1 || !found[0].Addr.Equal(healthy) {
		t.Fatalf("expected exactly the healthy peer, got %+v", found)
	}
}

func TestDeletePeers(t *testing.T) {
	s := mustOpenMem(t)

	a := types.NewIPAddr(net.ParseIP("10.0.0.5"), 3414)
	b := types.NewIPAddr(net.ParseIP("10.0.0.6"), 3414)
	if err := s.Save(types.PeerData{Addr: a, State: types.Defunct}); err != nil {
		t.Fatalf("Save a: %v", err)
	}
	if err := s.Save(types.PeerData{Addr: b, State: types.Healthy}); err != nil {
		t.Fatalf("Save b: %v", err)
	}

	if err := s.DeletePeers(func(d types.PeerData) bool { return d.State == types.Defunct }); err != nil {
		t.Fatalf("DeletePeers: %v", err)
	}

	all, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 || !all[0].Addr.Equal(b) {
		t.Fatalf("expected only the non-defunct peer to survive, got %+v", all)
	}
}

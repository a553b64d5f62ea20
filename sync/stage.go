package sync

import (
	"github.com/mwc-project/mwc-node/p2p/peer"
	"github.com/mwc-project/mwc-node/p2p/types"
)

// Stage is the interface each macro sync stage implements, per §4.5:
// request() issues outstanding work against the given candidate peers,
// onMessage() applies a collaborator-delivered response's side effects.
type Stage interface {
	Status() types.SyncStatus
	Request(peers []*peer.Peer) (types.SyncResponse, error)
	OnMessage(p *peer.Peer, msgType uint8, payload []byte) error
	// Done reports whether this stage has finished its work and the
	// Manager should advance to the next one.
	Done() bool
}

// inFlight tracks one outstanding (peer, object-id, deadline) triple, used
// by HeaderSync/BodySync/StateSync to detect timeouts and re-issue to a
// different peer.
type inFlight struct {
	peerAddr types.PeerAddr
	objectID string
	deadline int64 // unix nano
}

// rankPeers orders candidates by (has-required-capability, total_difficulty,
// not-currently-in-flight), per §4.5's tie-break policy.
func rankPeers(peers []*peer.Peer, required types.Capabilities, inFlightAddrs map[string]bool) []*peer.Peer {
	type scored struct {
		p     *peer.Peer
		score int
	}
	scoredPeers := make([]scored, 0, len(peers))
	for _, p := range peers {
		s := 0
		if p.Info.Capabilities.Has(required) {
			s += 1 << 24
		}
		s += int(p.Info.Live().TotalDifficulty.Uint64()%(1<<19)) << 1
		if !inFlightAddrs[p.Addr().Key()] {
			s++
		}
		scoredPeers = append(scoredPeers, scored{p: p, score: s})
	}
	for i := 1; i < len(scoredPeers); i++ {
		for j := i; j > 0 && scoredPeers[j-1].score < scoredPeers[j].score; j-- {
			scoredPeers[j-1], scoredPeers[j] = scoredPeers[j], scoredPeers[j-1]
		}
	}
	out := make([]*peer.Peer, len(scoredPeers))
	for i, s := range scoredPeers {
		out[i] = s.p
	}
	return out
}

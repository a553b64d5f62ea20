package sync

import (
	"sync"
	"time"

	"github.com/mwc-project/mwc-node/p2p/iface"
	"github.com/mwc-project/mwc-node/p2p/peer"
	"github.com/mwc-project/mwc-node/p2p/types"
)

// OrphanStage re-requests the parents of blocks that arrived out of order
// (orphans), per §4.5: the chain adapter tracks orphan pools and reports the
// set of missing parent hashes it's still waiting on; this stage keeps
// polling that set and re-requesting until it empties, at which point the
// Manager falls back to BodySync for anything that surfaces a reorg.
type OrphanStage struct {
	chain iface.ChainAdapter
	cfg   Config

	mu       sync.Mutex
	missing  func() []types.Hash // supplied by the Manager; queries the orphan pool
	inFlight map[string]inFlight // hash.String() -> in-flight record
	done     bool
}

// NewOrphanStage constructs the stage; missing is invoked on each Request to
// refresh the current set of orphan parents still needed.
func NewOrphanStage(chain iface.ChainAdapter, cfg Config, missing func() []types.Hash) *OrphanStage {
	return &OrphanStage{
		chain:    chain,
		cfg:      cfg,
		missing:  missing,
		inFlight: make(map[string]inFlight),
	}
}

func (s *OrphanStage) Status() types.SyncStatus { return types.OrphanSync }

func (s *OrphanStage) Request(peers []*peer.Peer) (types.SyncResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixNano()
	for k, fl := range s.inFlight {
		if now > fl.deadline {
			delete(s.inFlight, k)
		}
	}

	need := s.missing()
	if len(need) == 0 && len(s.inFlight) == 0 {
		s.done = true
		return types.SyncResponse{Kind: types.RespSyncDone}, nil
	}
	if len(peers) == 0 {
		return types.SyncResponse{Kind: types.RespWaitingForPeers, PeersCapabilities: types.CapFullHist}, nil
	}

	busy := make(map[string]bool, len(s.inFlight))
	for _, fl := range s.inFlight {
		busy[fl.peerAddr.Key()] = true
	}
	ranked := rankPeers(peers, types.CapFullHist, busy)

	idx := 0
	for _, hash := range need {
		key := hash.String()
		if _, already := s.inFlight[key]; already {
			continue
		}
		if idx >= len(ranked) {
			break
		}
		p := ranked[idx]
		idx++
		if !p.SendHeader(hash[:]) {
			continue
		}
		s.inFlight[key] = inFlight{
			peerAddr: p.Addr(),
			objectID: key,
			deadline: now + s.cfg.HeaderRequestTimeout.Nanoseconds(),
		}
	}
	return types.SyncResponse{Kind: types.RespSyncing, PeersCapabilities: types.CapFullHist}, nil
}

// OnMessage applies a fetched parent block and clears its in-flight entry.
func (s *OrphanStage) OnMessage(p *peer.Peer, msgType uint8, payload []byte) error {
	ok, err := s.chain.BlockReceived(p.Addr(), payload)
	if err != nil {
		return err
	}
	_ = ok

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, fl := range s.inFlight {
		if fl.peerAddr.Equal(p.Addr()) {
			delete(s.inFlight, k)
		}
	}
	return nil
}

func (s *OrphanStage) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

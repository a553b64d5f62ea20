package sync

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/mwc-project/mwc-node/p2p/iface"
	"github.com/mwc-project/mwc-node/p2p/peer"
	"github.com/mwc-project/mwc-node/p2p/types"
)

const maxInFlightPerPeer = 8

// BodyStage requests full blocks above the pruning horizon, capping
// concurrent in-flight requests per peer, per §4.5. A bounded LRU of the
// block hashes this stage instance has already requested skips duplicates
// in its pending queue; it is not shared with OrphanSync or earlier rounds.
type BodyStage struct {
	chain iface.ChainAdapter
	cfg   Config

	mu         sync.Mutex
	seen       *lru.Cache
	inFlight   map[string]int // peer addr key -> count of in-flight requests
	pending    []types.Hash
	done       bool
}

// NewBodyStage constructs the stage against a queue of block hashes to fetch.
func NewBodyStage(chain iface.ChainAdapter, cfg Config, pending []types.Hash) *BodyStage {
	seen, _ := lru.New(4096)
	return &BodyStage{
		chain:    chain,
		cfg:      cfg,
		seen:     seen,
		inFlight: make(map[string]int),
		pending:  pending,
	}
}

func (s *BodyStage) Status() types.SyncStatus { return types.BodySync }

func (s *BodyStage) Request(peers []*peer.Peer) (types.SyncResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		s.done = true
		return types.SyncResponse{Kind: types.RespSyncDone}, nil
	}
	if len(peers) == 0 {
		return types.SyncResponse{Kind: types.RespWaitingForPeers, PeersCapabilities: types.CapFullHist}, nil
	}

	ranked := rankPeers(peers, types.CapFullHist, nil)
	for _, p := range ranked {
		if len(s.pending) == 0 {
			break
		}
		key := p.Addr().Key()
		if s.inFlight[key] >= maxInFlightPerPeer {
			continue
		}
		hash := s.pending[0]
		if _, dup := s.seen.Get(hash); dup {
			s.pending = s.pending[1:]
			continue
		}
		if !p.SendHeader(hash[:]) {
			continue
		}
		s.seen.Add(hash, time.Now())
		s.inFlight[key]++
		s.pending = s.pending[1:]
	}
	return types.SyncResponse{Kind: types.RespSyncing, PeersCapabilities: types.CapFullHist}, nil
}

// OnMessage applies a received block and releases its in-flight slot.
func (s *BodyStage) OnMessage(p *peer.Peer, msgType uint8, payload []byte) error {
	s.mu.Lock()
	key := p.Addr().Key()
	if s.inFlight[key] > 0 {
		s.inFlight[key]--
	}
	s.mu.Unlock()

	ok, err := s.chain.BlockReceived(p.Addr(), payload)
	if err != nil {
		return err
	}
	_ = ok
	return nil
}

func (s *BodyStage) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

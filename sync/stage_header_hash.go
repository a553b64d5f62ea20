package sync

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mwc-project/mwc-node/log"
	"github.com/mwc-project/mwc-node/p2p/iface"
	"github.com/mwc-project/mwc-node/p2p/peer"
	"github.com/mwc-project/mwc-node/p2p/types"
)

// HeaderHashStage acquires, from a majority of the responding peers, the
// Merkle root over the header chain at the chosen archive height, per
// §4.5. Concurrent requests to the same archive height are collapsed via
// singleflight so a burst of ticks doesn't re-ask every peer again before
// the first round's responses are in. Every candidate peer is asked; no
// difficulty filter is applied.
type HeaderHashStage struct {
	chain iface.ChainAdapter

	mu        sync.Mutex
	responses map[string]int // hash.String() -> vote count
	requested bool
	done      bool

	group singleflight.Group
}

// NewHeaderHashStage constructs the stage against chain.
func NewHeaderHashStage(chain iface.ChainAdapter) *HeaderHashStage {
	return &HeaderHashStage{chain: chain, responses: make(map[string]int)}
}

func (s *HeaderHashStage) Status() types.SyncStatus { return types.HeaderHashSync }

func (s *HeaderHashStage) Request(peers []*peer.Peer) (types.SyncResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return types.SyncResponse{Kind: types.RespSyncDone}, nil
	}
	if len(peers) == 0 {
		return types.SyncResponse{Kind: types.RespWaitingForPeers, PeersCapabilities: types.CapFullHist}, nil
	}

	if !s.requested {
		s.requested = true
		_, _, _ = s.group.Do("archive-header-hash", func() (interface{}, error) {
			archive, err := s.chain.ArchiveHeader()
			if err != nil {
				return nil, err
			}
			for _, p := range peers {
				_ = p.SendHeader(archive)
			}
			return nil, nil
		})
	}
	return types.SyncResponse{Kind: types.RespSyncing, PeersCapabilities: types.CapFullHist}, nil
}

// OnMessage records a peer's reported archive-height hash; once a majority
// of the responding peers agree, the stage considers itself done.
func (s *HeaderHashStage) OnMessage(p *peer.Peer, msgType uint8, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(payload)
	s.responses[key]++
	total := 0
	for _, v := range s.responses {
		total += v
	}
	if s.responses[key]*2 > total && total >= 1 {
		s.done = true
		log.Debug("sync: header-hash majority reached", "hash", key, "votes", s.responses[key], "total", total)
	}
	return nil
}

func (s *HeaderHashStage) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

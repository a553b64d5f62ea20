package sync

import (
	"fmt"
	"sync"
	"time"

	"github.com/mwc-project/mwc-node/log"
	"github.com/mwc-project/mwc-node/p2p/iface"
	"github.com/mwc-project/mwc-node/p2p/peer"
	"github.com/mwc-project/mwc-node/p2p/types"
)

// HeaderStage walks batches of headers (default 512) using locator-based
// requests, tracking in-flight (peer, batch_start) with deadlines and
// re-issuing on timeout to a different peer, per §4.5.
type HeaderStage struct {
	chain iface.ChainAdapter
	cfg   Config

	mu        sync.Mutex
	inFlight  map[uint64]inFlight // batchStart -> in-flight record
	timeouts  map[string]*timeoutCount
	nextBatch uint64
	target    uint64
	done      bool
}

type timeoutCount struct {
	addr  types.PeerAddr
	count int
}

// NewHeaderStage constructs the stage; target is the known remote tip height.
func NewHeaderStage(chain iface.ChainAdapter, cfg Config, startHeight, target uint64) *HeaderStage {
	return &HeaderStage{
		chain:     chain,
		cfg:       cfg,
		inFlight:  make(map[uint64]inFlight),
		timeouts:  make(map[string]*timeoutCount),
		nextBatch: startHeight,
		target:    target,
	}
}

func (s *HeaderStage) Status() types.SyncStatus { return types.HeaderSync }

func (s *HeaderStage) Request(peers []*peer.Peer) (types.SyncResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(peers) == 0 {
		return types.SyncResponse{Kind: types.RespWaitingForPeers, PeersCapabilities: types.CapFullHist}, nil
	}

	now := time.Now().UnixNano()
	for start, fl := range s.inFlight {
		if now > fl.deadline {
			key := fl.peerAddr.Key()
			tc, ok := s.timeouts[key]
			if !ok {
				tc = &timeoutCount{addr: fl.peerAddr}
				s.timeouts[key] = tc
			}
			tc.count++
			delete(s.inFlight, start)
			if start < s.nextBatch {
				s.nextBatch = start
			}
			log.Debug("sync: header batch timed out", "start", start, "peer", fl.peerAddr)
		}
	}

	if s.nextBatch >= s.target && len(s.inFlight) == 0 {
		s.done = true
		return types.SyncResponse{Kind: types.RespSyncDone}, nil
	}

	ranked := rankPeers(peers, types.CapFullHist, inFlightAddrSet(s.inFlight))
	issued := false
	for _, p := range ranked {
		for s.cfg.HeaderBatchSize > 0 {
			if _, taken := s.inFlight[s.nextBatch]; !taken {
				break
			}
			s.nextBatch += uint64(s.cfg.HeaderBatchSize)
		}
		if s.nextBatch >= s.target {
			break
		}
		if _, busy := inFlightAddrSet(s.inFlight)[p.Addr().Key()]; busy {
			continue
		}
		start := s.nextBatch
		locator, err := s.chain.LocateHeaders([]types.Hash{})
		if err != nil {
			return types.SyncResponse{}, fmt.Errorf("sync: locate headers: %w", err)
		}
		_ = locator
		if !p.SendHeader([]byte(fmt.Sprintf("locator-request:%d", start))) {
			continue
		}
		s.inFlight[start] = inFlight{
			peerAddr: p.Addr(),
			objectID: fmt.Sprintf("batch-%d", start),
			deadline: now + s.cfg.HeaderRequestTimeout.Nanoseconds(),
		}
		s.nextBatch += uint64(s.cfg.HeaderBatchSize)
		issued = true
	}

	if !issued && len(s.inFlight) == 0 {
		return types.SyncResponse{Kind: types.RespWaitingForPeers, PeersCapabilities: types.CapFullHist}, nil
	}
	return types.SyncResponse{Kind: types.RespHasMoreHeadersToApply, PeersCapabilities: types.CapFullHist}, nil
}

// OnMessage applies a received header batch and clears its in-flight entry.
func (s *HeaderStage) OnMessage(p *peer.Peer, msgType uint8, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for start, fl := range s.inFlight {
		if fl.peerAddr.Equal(p.Addr()) {
			delete(s.inFlight, start)
			delete(s.timeouts, p.Addr().Key())
		}
	}
	return s.chain.HeadersReceived(p.Addr(), [][]byte{payload}, s.target-s.nextBatch)
}

func (s *HeaderStage) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// TimedOutPeers returns addresses that have timed out MaxTimeoutsBeforeDrop
// times, for the Runner/Manager to drop via the registry.
func (s *HeaderStage) TimedOutPeers() []types.PeerAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.PeerAddr
	for _, tc := range s.timeouts {
		if tc.count >= s.cfg.MaxTimeoutsBeforeDrop {
			out = append(out, tc.addr)
		}
	}
	return out
}

func inFlightAddrSet(m map[uint64]inFlight) map[string]bool {
	out := make(map[string]bool, len(m))
	for _, fl := range m {
		out[fl.peerAddr.Key()] = true
	}
	return out
}

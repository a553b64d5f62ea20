package sync

import (
	"sync"

	"github.com/mwc-project/mwc-node/log"
	"github.com/mwc-project/mwc-node/p2p/iface"
	"github.com/mwc-project/mwc-node/p2p/peer"
	"github.com/mwc-project/mwc-node/p2p/types"
)

// Manager drives the macro sync stage machine described in §4.5:
// AwaitingPeers -> HeaderHashSync -> HeaderSync -> BodySync -> StateSync ->
// OrphanSync -> NoSync, with OrphanSync able to re-enter BodySync when the
// chain adapter reports a reorg's worth of new missing parents.
//
// Manager owns no goroutine of its own; the Runner drives it on a pulse.
type Manager struct {
	chain iface.ChainAdapter
	cfg   Config

	missingParents func() []types.Hash
	pendingBlocks  func() []types.Hash

	mu      sync.Mutex
	status  types.SyncStatus
	current Stage
}

// NewManager constructs a Manager in NoSync, ready to be kicked into
// AwaitingPeers by the Runner's bootstrap check. missingParents and
// pendingBlocks are supplied by the embedder to bridge OrphanStage/BodyStage
// to the actual chain/orphan-pool state; see §4.5 and §11.
func NewManager(chain iface.ChainAdapter, cfg Config, missingParents, pendingBlocks func() []types.Hash) *Manager {
	return &Manager{
		chain:          chain,
		cfg:            cfg,
		missingParents: missingParents,
		pendingBlocks:  pendingBlocks,
		status:         types.NoSync,
	}
}

// Status reports the current macro stage.
func (m *Manager) Status() types.SyncStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// AwaitPeers marks the bootstrap quarantine as in progress, so
// /v1/sync/status (and any other Status() reader) can observe AwaitingPeers
// while the Runner is still waiting on wait_for_min_peers. It is a no-op
// once Begin has moved the machine past NoSync.
func (m *Manager) AwaitPeers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != types.NoSync {
		return
	}
	m.status = types.AwaitingPeers
}

// Begin transitions out of AwaitingPeers (or NoSync, if AwaitPeers was never
// called) into HeaderHashSync, called by the Runner once the bootstrap
// quarantine (wait_for_min_peers) has been satisfied.
func (m *Manager) Begin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != types.NoSync && m.status != types.AwaitingPeers {
		return
	}
	m.enterHeaderHashLocked()
}

func (m *Manager) enterHeaderHashLocked() {
	m.status = types.HeaderHashSync
	m.current = NewHeaderHashStage(m.chain)
	log.Info("sync: entering stage", "stage", m.status)
}

func (m *Manager) enterHeaderLocked() {
	m.status = types.HeaderSync
	m.current = NewHeaderStage(m.chain, m.cfg, m.chain.TotalHeight(), m.chain.TotalHeight())
	log.Info("sync: entering stage", "stage", m.status)
}

func (m *Manager) enterBodyLocked() {
	m.status = types.BodySync
	m.current = NewBodyStage(m.chain, m.cfg, m.pendingBlocks())
	log.Info("sync: entering stage", "stage", m.status)
}

func (m *Manager) enterStateLocked() {
	m.status = types.StateSync
	m.current = NewStateStage(m.chain, m.cfg, nil)
	log.Info("sync: entering stage", "stage", m.status)
}

func (m *Manager) enterOrphanLocked() {
	m.status = types.OrphanSync
	m.current = NewOrphanStage(m.chain, m.cfg, m.missingParents)
	log.Info("sync: entering stage", "stage", m.status)
}

func (m *Manager) enterNoSyncLocked() {
	m.status = types.NoSync
	m.current = nil
	log.Info("sync: sync complete, entering NoSync")
}

// HeadersBlocksRequest delegates to SyncRequest, advancing to the next
// stage as soon as the current one reports Done. The Runner does not call
// it; its pulse loop calls SyncRequest directly.
func (m *Manager) HeadersBlocksRequest(peers []*peer.Peer) (types.SyncResponse, error) {
	return m.SyncRequest(peers)
}

// SyncRequest advances the current stage one pulse and transitions forward
// whenever the active stage reports itself Done. A nil current stage (i.e.
// NoSync) returns RespSyncDone without consulting peers.
func (m *Manager) SyncRequest(peers []*peer.Peer) (types.SyncResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == types.NoSync {
		return types.SyncResponse{Kind: types.RespSyncDone}, nil
	}

	resp, err := m.current.Request(peers)
	if err != nil {
		return resp, err
	}

	if m.current.Done() {
		switch m.status {
		case types.HeaderHashSync:
			m.enterHeaderLocked()
		case types.HeaderSync:
			m.enterBodyLocked()
		case types.BodySync:
			m.enterStateLocked()
		case types.StateSync:
			m.enterOrphanLocked()
		case types.OrphanSync:
			if len(m.missingParents()) > 0 {
				m.enterBodyLocked()
			} else {
				m.enterNoSyncLocked()
			}
		}
		return types.SyncResponse{Kind: types.RespSyncing}, nil
	}
	return resp, nil
}

// OnMessage dispatches an inbound message to whichever stage is currently
// active; messages arriving for a stage that has already advanced are
// silently ignored, since the relevant in-flight tracking was cleared on
// transition.
func (m *Manager) OnMessage(p *peer.Peer, msgType uint8, payload []byte) error {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()
	if current == nil {
		return nil
	}
	return current.OnMessage(p, msgType, payload)
}

// TimedOutPeers reports peers the current stage has given up on, if it
// tracks timeouts; used by the Runner to drop chronically unresponsive
// peers from the registry.
func (m *Manager) TimedOutPeers() []types.PeerAddr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hs, ok := m.current.(*HeaderStage); ok {
		return hs.TimedOutPeers()
	}
	return nil
}

// ChainSnapshot reports the local chain's total difficulty and height, used
// by the Runner to drive clean_peers's stuck-peer comparison (§4.3 step 2).
func (m *Manager) ChainSnapshot() (types.Difficulty, uint64) {
	return m.chain.TotalDifficulty(), m.chain.TotalHeight()
}

// TransactionReceived passes an inbound transaction straight to the chain
// adapter; transactions aren't part of the macro stage machine, so this
// bypasses the current stage rather than routing through OnMessage.
func (m *Manager) TransactionReceived(addr types.PeerAddr, payload []byte) error {
	return m.chain.TransactionReceived(addr, payload, false)
}

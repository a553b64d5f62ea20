package sync

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/mwc-project/mwc-node/log"
	"github.com/mwc-project/mwc-node/p2p/peer"
	"github.com/mwc-project/mwc-node/p2p/peers"
	"github.com/mwc-project/mwc-node/p2p/types"
)

// errPingFailed is returned by pingPeer when the outbound queue has already
// been torn down; CheckAll treats any error as grounds for removal.
var errPingFailed = errors.New("sync: ping enqueue failed")

// Runner is the sync goroutine described in §4.5: wait_for_min_peers
// bootstrap quarantine, then a pulse loop (1000ms normally, 100ms while
// actively draining header batches) driving the Manager, a 120-second-
// sticky boost hint publish while not in NoSync, a 20-minute peer-table
// dump, and a 20-iteration/1s drain after SyncDone before returning to idle.
type Runner struct {
	mgr     *Manager
	cfg     Config
	peers   *peers.Registry
	running int32
	stop    chan struct{}
	done    chan struct{}
}

// NewRunner constructs a Runner bound to mgr and registry.
func NewRunner(mgr *Manager, cfg Config, registry *peers.Registry) *Runner {
	return &Runner{
		mgr:   mgr,
		cfg:   cfg,
		peers: registry,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the pulse-loop goroutine. Calling Start twice is a no-op.
func (r *Runner) Start() {
	if !atomic.CompareAndSwapInt32(&r.running, 0, 1) {
		return
	}
	go r.loop()
}

// Stop signals the loop to exit and blocks until it has.
func (r *Runner) Stop() {
	if !atomic.CompareAndSwapInt32(&r.running, 1, 0) {
		return
	}
	close(r.stop)
	<-r.done
}

func (r *Runner) loop() {
	defer close(r.done)

	r.mgr.AwaitPeers()
	if !r.waitForMinPeers() {
		log.Info("sync: stopped during bootstrap quarantine")
		return
	}
	r.mgr.Begin()

	lastDump := time.Now()
	lastClean := time.Now()
	var doneAt time.Time
	draining := false

	for {
		pulse := r.cfg.NormalPulse
		if r.mgr.Status() == types.HeaderSync || r.mgr.Status() == types.BodySync {
			pulse = r.cfg.HeaderDrainPulse
		}
		if draining {
			pulse = r.cfg.PostSyncDonePulse
		}

		select {
		case <-r.stop:
			return
		case <-time.After(pulse):
		}

		candidates := r.peers.Iter().Slice()
		resp, err := r.mgr.SyncRequest(candidates)
		if err != nil {
			log.Error("sync: stage request failed", "err", err)
			continue
		}

		for _, addr := range r.mgr.TimedOutPeers() {
			log.Warn("sync: dropping chronically unresponsive peer", "addr", addr)
			_ = r.peers.BanPeer(addr, types.BanAbusive)
		}

		if status := r.mgr.Status(); status != types.NoSync {
			boost := resp.PeersCapabilities
			if boost == types.CapabilityUnknown {
				boost = boostCapFor(status)
			}
			r.peers.SetBoost(boost)
		}

		if resp.Kind == types.RespSyncDone && !draining {
			draining = true
			doneAt = time.Now()
		}
		if draining && time.Since(doneAt) > r.cfg.PostSyncDoneDrain {
			draining = false
		}

		if time.Since(lastDump) > r.cfg.PeerTableDumpInterval {
			r.dumpPeerTable()
			lastDump = time.Now()
		}

		if time.Since(lastClean) > r.cfg.CleanPeersInterval {
			r.peers.CheckAll(pingPeer)
			diff, height := r.mgr.ChainSnapshot()
			r.peers.CleanPeers(diff, height, 0)
			lastClean = time.Now()
		}
	}
}

// pingPeer is the liveness probe CheckAll applies to every connected peer;
// an enqueue failure (the worker has already torn down) is the only error
// it can report.
func pingPeer(p *peer.Peer) error {
	if !p.SendPing(nil) {
		return errPingFailed
	}
	return nil
}

// waitForMinPeers blocks, re-checking every 3s, until the registry holds at
// least cfg.MinPeers peers (Count counts every registered peer) or
// cfg.AwaitingPeersWait has elapsed, whichever comes first, or the Runner
// is stopped. Returns false iff stopped.
func (r *Runner) waitForMinPeers() bool {
	deadline := time.Now().Add(r.cfg.AwaitingPeersWait)
	for {
		if r.peers.Count() >= r.cfg.MinPeers || !time.Now().Before(deadline) {
			return true
		}
		wait := 3 * time.Second
		if rem := time.Until(deadline); rem < wait {
			wait = rem
		}
		select {
		case <-r.stop:
			return false
		case <-time.After(wait):
		}
	}
}

func (r *Runner) dumpPeerTable() {
	all := r.peers.All()
	log.Info("sync: peer table", "count", len(all))
	for _, p := range all {
		live := p.Info.Live()
		log.Debug("sync: peer", "addr", p.Addr(), "height", live.Height, "banned", p.IsBanned())
	}
}

// boostCapFor reports the capability hint to publish for the given macro
// stage: StateSync wants PIBD-capable peers prioritized, everything else
// wants full-history peers.
func boostCapFor(status types.SyncStatus) types.Capabilities {
	if status == types.StateSync {
		return types.CapPibd
	}
	return types.CapFullHist
}

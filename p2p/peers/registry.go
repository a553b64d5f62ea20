// Package peers implements the Peer Registry (`Peers`): the authoritative
// in-memory map of active peer handles plus a persistent store of peer
// metadata, admission, banning, broadcast fan-out and periodic pruning,
// per §4.3.
package peers

import (
	"errors"
	"time"

	mapset "github.com/deckarep/golang-set"

	"github.com/mwc-project/mwc-node/internal/lockutil"
	"github.com/mwc-project/mwc-node/log"
	"github.com/mwc-project/mwc-node/p2p/iface"
	"github.com/mwc-project/mwc-node/p2p/peer"
	"github.com/mwc-project/mwc-node/p2p/types"
)

// Sentinel errors as package-level vars.
var (
	ErrTimeout       = lockutil.ErrTimeout
	ErrPeerNotFound  = errors.New("peers: peer not found")
	ErrPeerNotBanned = errors.New("peers: peer not banned")
)

// Registry is the Peer Registry described in §3/§4.3.
type Registry struct {
	mu    lockutil.TimedRWMutex
	peers map[string]*peer.Peer

	excluded  mapset.Set // addr.Key() values never reported as connected
	preferred mapset.Set // addr.Key() values exempt from eviction

	underperform map[string]uint32 // consecutive underperformance observations, outbound only

	boostCap   types.Capabilities
	boostSetAt time.Time

	store  iface.PeerStore
	cfg    Config
	stopping func() bool
}

// New builds an empty registry backed by store, with excluded/preferred
// sets seeded from cfg. stopping reports whether the process is shutting
// down, used to decide whether lock-contention failures log an error.
func New(store iface.PeerStore, cfg Config, stopping func() bool) *Registry {
	if stopping == nil {
		stopping = func() bool { return false }
	}
	preferred := mapset.NewSet()
	for _, p := range cfg.Preferred {
		preferred.Add(p)
	}
	return &Registry{
		peers:        make(map[string]*peer.Peer),
		excluded:     mapset.NewSet(),
		preferred:    preferred,
		underperform: make(map[string]uint32),
		store:        store,
		cfg:          cfg,
		stopping:     stopping,
	}
}

// Exclude marks addr as never reportable as connected (e.g. ourself, or a
// denylisted address), per the invariant that excluded peers are never
// included in broadcast fan-out or sync candidate selection.
func (r *Registry) Exclude(addr types.PeerAddr) {
	r.excluded.Add(addr.Key())
}

func (r *Registry) isExcluded(addr types.PeerAddr) bool {
	return r.excluded.Contains(addr.Key())
}

func (r *Registry) isPreferred(addr types.PeerAddr) bool {
	return r.preferred.Contains(addr.Key())
}

// AddConnected inserts p into the map under a write-lock held only for the
// insert, then persists a Healthy PeerData outside the lock. Returns
// ErrTimeout if lock acquisition exceeds the configured timeout.
func (r *Registry) AddConnected(p *peer.Peer) error {
	if !r.mu.TryLockTimeout(r.cfg.LockTimeout) {
		return ErrTimeout
	}
	r.peers[p.Addr().Key()] = p
	r.mu.Unlock()

	if r.store != nil {
		err := r.store.Save(types.PeerData{
			Addr:          p.Addr(),
			Capabilities:  p.Info.Capabilities,
			UserAgent:     p.Info.UserAgent,
			State:         types.Healthy,
			LastConnected: time.Now().Unix(),
		})
		if err != nil {
			log.Error("peers: failed to persist connected peer", "addr", p.Addr(), "err", err)
		}
	}
	return nil
}

// AddBanned persists a Banned PeerData without touching the live map.
func (r *Registry) AddBanned(addr types.PeerAddr, reason types.BanReason) error {
	if r.store == nil {
		return nil
	}
	return r.store.Save(types.PeerData{
		Addr:       addr,
		State:      types.Banned,
		BanReason:  reason,
		LastBanned: time.Now().Unix(),
	})
}

// BanPeer persists Banned state; if the peer is currently connected, it is
// best-effort notified of the reason, marked banned, stopped and removed.
func (r *Registry) BanPeer(addr types.PeerAddr, reason types.BanReason) error {
	if err := r.AddBanned(addr, reason); err != nil {
		log.Error("peers: failed to persist ban", "addr", addr, "err", err)
	}

	if !r.mu.TryLockTimeout(r.cfg.LockTimeout) {
		return ErrTimeout
	}
	p, ok := r.peers[addr.Key()]
	if ok {
		delete(r.peers, addr.Key())
	}
	r.mu.Unlock()

	if !ok {
		return ErrPeerNotFound
	}
	p.SendBanReason(reason)
	p.MarkBanned()
	p.Stop()
	return nil
}

// UnbanPeer transitions persistent state Banned -> Healthy.
func (r *Registry) UnbanPeer(addr types.PeerAddr) error {
	if r.store == nil {
		return ErrPeerNotBanned
	}
	data, ok, err := r.store.Get(addr)
	if err != nil {
		return err
	}
	if !ok || data.State != types.Banned {
		return ErrPeerNotBanned
	}
	data.State = types.Healthy
	return r.store.Save(data)
}

// Get returns the live peer handle for addr, if connected.
func (r *Registry) Get(addr types.PeerAddr) (*peer.Peer, bool) {
	if !r.mu.TryRLockTimeout(r.cfg.LockTimeout) {
		return nil, false
	}
	defer r.mu.RUnlock()
	p, ok := r.peers[addr.Key()]
	return p, ok
}

// Count returns the number of live entries in the map.
func (r *Registry) Count() int {
	if !r.mu.TryRLockTimeout(r.cfg.LockTimeout) {
		return 0
	}
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Broadcast iterates connected peers, applies fn to each, counts successes,
// and on any send error stops and removes that peer (re-acquiring the lock
// per removal, per the documented guarantee). Excluded peers never
// participate.
func (r *Registry) Broadcast(name string, fn func(*peer.Peer) error) int {
	snapshot := r.snapshotConnected()

	var ok int
	var failed []*peer.Peer
	for _, p := range snapshot {
		if err := fn(p); err != nil {
			failed = append(failed, p)
			continue
		}
		ok++
	}

	for _, p := range failed {
		r.removeAndStop(p)
	}
	if len(failed) > 0 {
		log.Debug("peers: broadcast dropped failing peers", "op", name, "dropped", len(failed), "delivered", ok)
	}
	return ok
}

// CheckAll pings every connected peer and removes those that error.
func (r *Registry) CheckAll(ping func(*peer.Peer) error) {
	r.Broadcast("ping", ping)
}

func (r *Registry) snapshotConnected() []*peer.Peer {
	if !r.mu.TryRLockTimeout(r.cfg.LockTimeout) {
		if !r.stopping() {
			log.Error("peers: lock contention while iterating", "timeout", r.cfg.LockTimeout)
		}
		return nil
	}
	defer r.mu.RUnlock()

	out := make([]*peer.Peer, 0, len(r.peers))
	for key, p := range r.peers {
		if r.excluded.Contains(key) {
			continue
		}
		if !p.IsConnected() {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (r *Registry) removeAndStop(p *peer.Peer) {
	if !r.mu.TryLockTimeout(r.cfg.LockTimeout) {
		log.Error("peers: lock contention removing peer", "addr", p.Addr())
		return
	}
	delete(r.peers, p.Addr().Key())
	r.mu.Unlock()
	p.Stop()
}

// All returns a snapshot of every live peer, including excluded ones, for
// administrative/observability use (e.g. the 20-minute peer-table dump).
func (r *Registry) All() []*peer.Peer {
	if !r.mu.TryRLockTimeout(r.cfg.LockTimeout) {
		return nil
	}
	defer r.mu.RUnlock()
	out := make([]*peer.Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// SetBoost records a 120-second-sticky capability hint from the Sync
// Manager, consulted by clean_peers.
func (r *Registry) SetBoost(cap types.Capabilities) {
	r.boostCap = cap
	r.boostSetAt = time.Now()
}

// IsBoostingMode reports whether a boost hint is still within its sticky
// window.
func (r *Registry) IsBoostingMode() (types.Capabilities, bool) {
	if r.boostCap == types.CapabilityUnknown {
		return types.CapabilityUnknown, false
	}
	return r.boostCap, time.Since(r.boostSetAt) < r.cfg.BoostWindow
}

// FindPeerAddrs returns persisted, healthy addresses advertising every bit
// of capabilities, for answering a peer-address gossip request (CapPeerList,
// per §4.3/§11).
func (r *Registry) FindPeerAddrs(capabilities types.Capabilities) []types.PeerAddr {
	if r.store == nil {
		return nil
	}
	data, err := r.store.FindPeers(types.Healthy, capabilities)
	if err != nil {
		log.Error("peers: find peer addrs failed", "err", err)
		return nil
	}
	out := make([]types.PeerAddr, 0, len(data))
	for _, d := range data {
		if r.isExcluded(d.Addr) {
			continue
		}
		out = append(out, d.Addr)
	}
	return out
}

// PeerAddrsReceived persists gossiped addresses as Healthy candidates, if
// not already known, so a later dial attempt has somewhere new to reach.
// Excluded addresses and already-known records are left untouched.
func (r *Registry) PeerAddrsReceived(addrs []types.PeerAddr) {
	if r.store == nil {
		return
	}
	for _, addr := range addrs {
		if r.isExcluded(addr) {
			continue
		}
		if _, ok, err := r.store.Get(addr); err == nil && ok {
			continue
		}
		if err := r.store.Save(types.PeerData{Addr: addr, State: types.Healthy}); err != nil {
			log.Debug("peers: failed to persist gossiped peer", "addr", addr, "err", err)
		}
	}
}

// AddrBanned reports the persisted ban state for addr, independent of
// whether it currently has a live connection. It is distinct from
// peer.Peer.IsBanned, which only reflects a connected handle's in-memory
// flag.
func (r *Registry) AddrBanned(addr types.PeerAddr) bool {
	if r.store == nil {
		return false
	}
	data, ok, err := r.store.Get(addr)
	if err != nil || !ok {
		return false
	}
	return data.State == types.Banned
}

// NetAdapter returns a view of the registry satisfying iface.NetAdapter, for
// wiring into a MessageHandler that answers peer-address gossip. It exists
// as a separate type rather than having Registry implement the interface
// directly because BanPeer's richer signature (it returns an error for
// callers that need to observe ErrPeerNotFound) is kept for internal use.
func (r *Registry) NetAdapter() iface.NetAdapter { return netAdapter{r} }

type netAdapter struct{ r *Registry }

func (n netAdapter) FindPeerAddrs(capabilities types.Capabilities) []types.PeerAddr {
	return n.r.FindPeerAddrs(capabilities)
}

func (n netAdapter) PeerAddrsReceived(addrs []types.PeerAddr) { n.r.PeerAddrsReceived(addrs) }

func (n netAdapter) IsBanned(addr types.PeerAddr) bool { return n.r.AddrBanned(addr) }

func (n netAdapter) BanPeer(addr types.PeerAddr, reason types.BanReason) {
	if err := n.r.BanPeer(addr, reason); err != nil && err != ErrPeerNotFound {
		log.Error("peers: net adapter ban failed", "addr", addr, "err", err)
	}
}

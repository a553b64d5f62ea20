package peers

import (
	"math/rand"

	"github.com/mwc-project/mwc-node/log"
	"github.com/mwc-project/mwc-node/p2p/peer"
	"github.com/mwc-project/mwc-node/p2p/types"
)

// Iter is the chainable filter pipeline over a registry snapshot described
// in §4.3: iter() -> connected | inbound | outbound | with_capabilities(c)
// | with_difficulty(pred) | with_min_height(h) | choose_random | count.
// Each adaptor filters eagerly, building a new slice when it is called.
//
// Per the open question in §9, the source's inoutbound() adaptor (intended
// to match either direction but which in fact only matches outbound) is
// treated as a known bug and is simply not reproduced here; callers that
// want "either direction" use Iter() unfiltered by direction.
type Iter struct {
	peers []*peer.Peer
}

// Iter returns a filter pipeline over a snapshot of the registry. Lock
// contention on the map is resolved with a timed acquisition: failure
// yields an empty iterator, logged unless the process is stopping.
func (r *Registry) Iter() Iter {
	if !r.mu.TryRLockTimeout(r.cfg.LockTimeout) {
		if !r.stopping() {
			log.Error("peers: lock contention while iterating", "timeout", r.cfg.LockTimeout)
		}
		return Iter{}
	}
	defer r.mu.RUnlock()
	out := make([]*peer.Peer, 0, len(r.peers))
	for key, p := range r.peers {
		if r.excluded.Contains(key) {
			continue
		}
		out = append(out, p)
	}
	return Iter{peers: out}
}

// Connected filters to peers whose worker is presently alive.
func (it Iter) Connected() Iter {
	return it.filter(func(p *peer.Peer) bool { return p.IsConnected() })
}

// Inbound filters to peers that connected to us.
func (it Iter) Inbound() Iter {
	return it.filter(func(p *peer.Peer) bool { return p.Info.Direction == types.Inbound })
}

// Outbound filters to peers we connected to.
func (it Iter) Outbound() Iter {
	return it.filter(func(p *peer.Peer) bool { return p.Info.Direction == types.Outbound })
}

// WithCapabilities filters to peers advertising all bits in c.
func (it Iter) WithCapabilities(c types.Capabilities) Iter {
	return it.filter(func(p *peer.Peer) bool { return p.Info.Capabilities.Has(c) })
}

// WithDifficulty filters by an arbitrary predicate over the peer's live
// total difficulty.
func (it Iter) WithDifficulty(pred func(types.Difficulty) bool) Iter {
	return it.filter(func(p *peer.Peer) bool { return pred(p.Info.Live().TotalDifficulty) })
}

// WithMinHeight filters to peers reporting height >= h.
func (it Iter) WithMinHeight(h uint64) Iter {
	return it.filter(func(p *peer.Peer) bool { return p.Info.Live().Height >= h })
}

func (it Iter) filter(pred func(*peer.Peer) bool) Iter {
	out := make([]*peer.Peer, 0, len(it.peers))
	for _, p := range it.peers {
		if pred(p) {
			out = append(out, p)
		}
	}
	return Iter{peers: out}
}

// ChooseRandom returns up to n peers chosen without replacement.
func (it Iter) ChooseRandom(n int) []*peer.Peer {
	idx := rand.Perm(len(it.peers))
	if n > len(idx) {
		n = len(idx)
	}
	out := make([]*peer.Peer, 0, n)
	for _, i := range idx[:n] {
		out = append(out, it.peers[i])
	}
	return out
}

// Count returns the number of peers remaining in the pipeline.
func (it Iter) Count() int { return len(it.peers) }

// Slice returns the peers remaining in the pipeline.
func (it Iter) Slice() []*peer.Peer { return it.peers }

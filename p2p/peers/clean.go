package peers

import (
	"sort"

	"github.com/mwc-project/mwc-node/log"
	"github.com/mwc-project/mwc-node/p2p/peer"
	"github.com/mwc-project/mwc-node/p2p/types"
)

// CleanPeers computes a removal set under a read-lock snapshot, releases
// it, then removes under write-lock, per §4.3. The six ordered steps and
// their constants are reproduced verbatim from original_source/p2p/src/peers.rs:
//
//  1. banned/disconnected/abusive peers (abusive also promotes to Banned).
//  2. stuck peers with lower difficulty than our tip (promotes to Defunct).
//  3. while boosting: trim non-capable outbound peers down to maxOut/2.
//  4. underperforming outbound peers: 3 consecutive bad observations -> removed.
//  5. excess outbound capacity, at most 2 removed per cycle, ranked by
//     total difficulty (base-fee-disadvantaged peers scored at half weight).
//  6. excess inbound, non-preferred first, until count <= maxIn.
func (r *Registry) CleanPeers(localDiff types.Difficulty, localHeight uint64, localBaseFee uint64) {
	all := r.Iter().Slice()

	toRemove := make(map[string]*peer.Peer)
	toDefunct := make(map[string]*peer.Peer)
	toBan := make(map[string]*peer.Peer)

	// Step 1: banned, disconnected or abusive.
	var step1Survivors []*peer.Peer
	for _, p := range all {
		switch {
		case p.IsBanned(), !p.IsConnected():
			toRemove[p.Addr().Key()] = p
		case p.IsAbusive():
			toRemove[p.Addr().Key()] = p
			toBan[p.Addr().Key()] = p
		default:
			step1Survivors = append(step1Survivors, p)
		}
	}

	// Step 2: stuck peers behind our tip.
	var step2Survivors []*peer.Peer
	for _, p := range step1Survivors {
		if stuck, lastDiff := p.IsStuck(); stuck {
			pd := localDiff
			var ld types.Difficulty
			ld.SetUint64(lastDiff)
			if ld.Cmp(&pd) < 0 {
				toRemove[p.Addr().Key()] = p
				toDefunct[p.Addr().Key()] = p
				continue
			}
		}
		step2Survivors = append(step2Survivors, p)
	}

	// Step 3: boost-mode outbound trim.
	step3Survivors := step2Survivors
	if cap, boosting := r.IsBoostingMode(); boosting {
		var outboundLacking []*peer.Peer
		var rest []*peer.Peer
		for _, p := range step2Survivors {
			if p.Info.Direction == types.Outbound && !p.Info.Capabilities.Has(cap) && !r.isPreferred(p.Addr()) {
				outboundLacking = append(outboundLacking, p)
			} else {
				rest = append(rest, p)
			}
		}
		outboundCount := countOutbound(step2Survivors)
		limit := r.cfg.MaxOutbound / 2
		excess := outboundCount - limit
		if excess > 0 && len(outboundLacking) > 0 {
			n := excess
			if n > len(outboundLacking) {
				n = len(outboundLacking)
			}
			for _, p := range outboundLacking[:n] {
				toRemove[p.Addr().Key()] = p
			}
			rest = append(rest, outboundLacking[n:]...)
		} else {
			rest = append(rest, outboundLacking...)
		}
		step3Survivors = rest
	}

	// Step 4: underperforming outbound peers (3-strike counter).
	var step4Survivors []*peer.Peer
	seenThisCycle := make(map[string]bool)
	for _, p := range step3Survivors {
		if p.Info.Direction != types.Outbound {
			step4Survivors = append(step4Survivors, p)
			continue
		}
		live := p.Info.Live()
		underperforming := live.Height+2 <= localHeight && live.TotalDifficulty.Cmp(&localDiff) < 0
		key := p.Addr().Key()
		if underperforming {
			seenThisCycle[key] = true
			r.underperform[key]++
			if r.underperform[key] >= 3 {
				toRemove[key] = p
				delete(r.underperform, key)
				continue
			}
		} else {
			delete(r.underperform, key)
		}
		step4Survivors = append(step4Survivors, p)
	}

	// Step 5: excess outbound capacity, at most 2 removed per cycle.
	var outbound, inbound []*peer.Peer
	for _, p := range step4Survivors {
		if p.Info.Direction == types.Outbound {
			outbound = append(outbound, p)
		} else {
			inbound = append(inbound, p)
		}
	}
	excessOutgoing := len(outbound) - r.cfg.MaxOutbound
	if excessOutgoing > 2 {
		excessOutgoing = 2
	}
	if excessOutgoing > 0 {
		sort.Slice(outbound, func(i, j int) bool {
			return outboundScore(outbound[i], localBaseFee) < outboundScore(outbound[j], localBaseFee)
		})
		victims := 0
		var kept []*peer.Peer
		for _, p := range outbound {
			if victims < excessOutgoing && !r.isPreferred(p.Addr()) {
				toRemove[p.Addr().Key()] = p
				victims++
				continue
			}
			kept = append(kept, p)
		}
		outbound = kept
	}

	// Step 6: excess inbound, non-preferred first, until count <= maxIn.
	if len(inbound) > r.cfg.MaxInbound {
		sort.Slice(inbound, func(i, j int) bool {
			return !r.isPreferred(inbound[i].Addr()) && r.isPreferred(inbound[j].Addr())
		})
		excess := len(inbound) - r.cfg.MaxInbound
		for _, p := range inbound[:excess] {
			toRemove[p.Addr().Key()] = p
		}
	}

	for key, p := range toBan {
		_ = r.BanPeer(p.Addr(), types.BanAbusive)
		delete(toRemove, key)
		_ = key
	}
	for key, p := range toDefunct {
		if r.store != nil {
			_ = r.store.Save(types.PeerData{Addr: p.Addr(), State: types.Defunct})
		}
		delete(toRemove, key)
		r.removeAndStop(p)
	}
	for _, p := range toRemove {
		r.removeAndStop(p)
	}

	if n := len(toRemove) + len(toBan) + len(toDefunct); n > 0 {
		log.Debug("peers: clean_peers removed peers", "count", n)
	}
}

func countOutbound(peers []*peer.Peer) int {
	n := 0
	for _, p := range peers {
		if p.Info.Direction == types.Outbound {
			n++
		}
	}
	return n
}

// outboundScore ranks outbound peers for step 5's eviction order: total
// difficulty, halved for peers whose negotiated min base fee is lower than
// ours (they are preferred victims).
func outboundScore(p *peer.Peer, localBaseFee uint64) float64 {
	diff := p.Info.Live().TotalDifficulty
	score := diff.Uint64()
	if p.Info.MinBaseFee < localBaseFee {
		return float64(score) / 2
	}
	return float64(score)
}

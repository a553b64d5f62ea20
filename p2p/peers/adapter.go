package peers

import (
	"github.com/mwc-project/mwc-node/log"
	"github.com/mwc-project/mwc-node/p2p/iface"
	"github.com/mwc-project/mwc-node/p2p/types"
)

// ChainAdapterWrapper is the interception pattern noted in §9: rather than
// the registry re-implementing ChainAdapter as a trait-object chain (as the
// source does), it owns the downstream adapter and wraps each method,
// adding ban-on-error side effects — an Ok(false) from HeaderReceived,
// BlockReceived or CompactBlockReceived bans with the matching reason, per
// §7's protocol-violation taxonomy; a rejected segment is only logged.
type ChainAdapterWrapper struct {
	iface.ChainAdapter
	registry *Registry
}

// WrapChainAdapter returns inner wrapped with ban-on-bad-object behavior.
func WrapChainAdapter(inner iface.ChainAdapter, registry *Registry) *ChainAdapterWrapper {
	return &ChainAdapterWrapper{ChainAdapter: inner, registry: registry}
}

func (w *ChainAdapterWrapper) banIfBad(ok bool, err error, addr types.PeerAddr, reason types.BanReason) error {
	if err != nil {
		return err
	}
	if !ok {
		if banErr := w.registry.BanPeer(addr, reason); banErr != nil && banErr != ErrPeerNotFound {
			log.Error("peers: failed to ban peer for bad object", "addr", addr, "reason", reason, "err", banErr)
		}
	}
	return nil
}

func (w *ChainAdapterWrapper) HeaderReceived(peer types.PeerAddr, hash types.Hash, header []byte) (bool, error) {
	ok, err := w.ChainAdapter.HeaderReceived(peer, hash, header)
	if wrapErr := w.banIfBad(ok, err, peer, types.BanBadBlockHeader); wrapErr != nil {
		return ok, wrapErr
	}
	return ok, nil
}

func (w *ChainAdapterWrapper) BlockReceived(peer types.PeerAddr, block []byte) (bool, error) {
	ok, err := w.ChainAdapter.BlockReceived(peer, block)
	if wrapErr := w.banIfBad(ok, err, peer, types.BanBadBlock); wrapErr != nil {
		return ok, wrapErr
	}
	return ok, nil
}

func (w *ChainAdapterWrapper) CompactBlockReceived(peer types.PeerAddr, block []byte) (bool, error) {
	ok, err := w.ChainAdapter.CompactBlockReceived(peer, block)
	if wrapErr := w.banIfBad(ok, err, peer, types.BanBadCompactBlock); wrapErr != nil {
		return ok, wrapErr
	}
	return ok, nil
}

func (w *ChainAdapterWrapper) SegmentReceived(peer types.PeerAddr, kind types.SegmentKind, id types.SegmentIdentifier, data []byte) (bool, error) {
	ok, err := w.ChainAdapter.SegmentReceived(peer, kind, id, data)
	// A bad segment is a protocol violation but not one of the three named
	// ban reasons; log and let the stage decide whether to retry.
	if err == nil && !ok {
		log.Debug("peers: segment rejected by chain", "peer", peer, "kind", kind, "id", id)
	}
	return ok, err
}

// Package devchain is a minimal, in-memory implementation of the three
// embedder-supplied collaborators (ChainAdapter, Handshake, MessageHandler)
// named in p2p/iface. It exists so cmd/mwcnode links into a runnable binary
// without a real blockchain backend; a production deployment replaces it
// with a real chain/wallet implementation, per §1's "external collaborator"
// framing.
package devchain

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/mwc-project/mwc-node/log"
	"github.com/mwc-project/mwc-node/p2p/codec"
	"github.com/mwc-project/mwc-node/p2p/iface"
	"github.com/mwc-project/mwc-node/p2p/peer"
	"github.com/mwc-project/mwc-node/p2p/peers"
	"github.com/mwc-project/mwc-node/p2p/types"
	"github.com/mwc-project/mwc-node/sync"
)

// Chain is a trivial in-memory ChainAdapter: it accepts every object it's
// handed, tracks only height and total difficulty, and serves no real
// archive/segment data. It is not meant to validate anything.
type Chain struct {
	mu         sync.RWMutex
	height     uint64
	difficulty types.Difficulty
}

// New constructs an empty Chain at height zero.
func New() *Chain { return &Chain{} }

func (c *Chain) TotalDifficulty() types.Difficulty {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.difficulty
}

func (c *Chain) TotalHeight() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

func (c *Chain) HeaderReceived(_ types.PeerAddr, _ types.Hash, _ []byte) (bool, error) { return true, nil }

func (c *Chain) HeadersReceived(_ types.PeerAddr, headers [][]byte, _ uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += uint64(len(headers))
	return nil
}

func (c *Chain) BlockReceived(_ types.PeerAddr, _ []byte) (bool, error) { return true, nil }

func (c *Chain) CompactBlockReceived(_ types.PeerAddr, _ []byte) (bool, error) { return true, nil }

func (c *Chain) TransactionReceived(_ types.PeerAddr, _ []byte, _ bool) error { return nil }

func (c *Chain) TxKernelReceived(_ types.PeerAddr, _ types.Hash) error { return nil }

func (c *Chain) LocateHeaders(_ []types.Hash) ([][]byte, error) { return nil, nil }

func (c *Chain) GetBlock(_ types.Hash) ([]byte, bool) { return nil, false }

func (c *Chain) ArchiveHeader() ([]byte, error) { return []byte("genesis"), nil }

func (c *Chain) TxHashsetRead(_ types.Hash) (io.ReadCloser, int64, error) {
	return nil, 0, errors.New("devchain: txhashset archive not available")
}

func (c *Chain) PrepareSegmenter() error { return nil }

func (c *Chain) GetSegment(_ types.SegmentKind, _ types.SegmentIdentifier) ([]byte, error) {
	return nil, errors.New("devchain: no segments available")
}

func (c *Chain) SegmentReceived(_ types.PeerAddr, _ types.SegmentKind, _ types.SegmentIdentifier, _ []byte) (bool, error) {
	return true, nil
}

func (c *Chain) PIBDStatusReceived(_ types.PeerAddr, _ []byte) error { return nil }

func (c *Chain) PeerDifficulty(_ types.PeerAddr, _ types.Difficulty, _ uint64) {}

// Pool is a trivial admin.TxPool backed by Chain: every pushed transaction
// is accepted unconditionally, mirroring pool_api.rs's add_to_pool contract
// without real mempool validation.
type Pool struct {
	chain *Chain
}

// NewPool builds a Pool resolving chain head against chain.
func NewPool(chain *Chain) *Pool { return &Pool{chain: chain} }

func (p *Pool) ChainHead() ([]byte, error) {
	return p.chain.ArchiveHeader()
}

func (p *Pool) AddToPool(tx []byte, stem bool, head []byte) error {
	return p.chain.TransactionReceived(types.PeerAddr{}, tx, stem)
}

// greeting is exchanged, newline-delimited JSON, before the codec's framed
// protocol begins; this stands in for the out-of-scope cryptographic
// handshake codec.
type greeting struct {
	UserAgent    string `json:"user_agent"`
	Capabilities uint32 `json:"capabilities"`
	Version      uint32 `json:"version"`
}

const protocolVersion = 1

// Handshake performs a trivial plaintext capability/version exchange. It is
// explicitly not a cryptographic handshake; it exists only so cmd/mwcnode
// has something to link against.
type Handshake struct {
	Capabilities types.Capabilities
	UserAgent    string
}

func (h *Handshake) exchange(rw io.ReadWriter, selfAddr types.PeerAddr) (types.PeerInfo, uint32, error) {
	enc := json.NewEncoder(rw)
	if err := enc.Encode(greeting{UserAgent: h.UserAgent, Capabilities: uint32(h.Capabilities), Version: protocolVersion}); err != nil {
		return types.PeerInfo{}, 0, err
	}
	var remote greeting
	dec := json.NewDecoder(bufio.NewReader(rw))
	if err := dec.Decode(&remote); err != nil {
		return types.PeerInfo{}, 0, err
	}
	info := types.PeerInfo{
		Addr:         selfAddr,
		Capabilities: types.Capabilities(remote.Capabilities),
		UserAgent:    remote.UserAgent,
	}
	return info, remote.Version, nil
}

func (h *Handshake) Connect(stream io.ReadWriter, selfAddr types.PeerAddr) (types.PeerInfo, uint32, error) {
	return h.exchange(stream, selfAddr)
}

func (h *Handshake) Accept(stream io.ReadWriter, selfAddr types.PeerAddr) (types.PeerInfo, uint32, error) {
	return h.exchange(stream, selfAddr)
}

// Handler routes decoded inbound frames to the sync Manager, answers pings
// with a pong, and answers peer-address gossip through the registry's
// NetAdapter view. It does not update peers' live height/difficulty
// counters.
type Handler struct {
	registry *peers.Registry
	net      iface.NetAdapter
	mgr      *sync.Manager
}

// NewHandler binds a Handler to the registry (for peer-handle lookup and
// peer-address gossip) and the sync Manager (the destination for most
// message kinds).
func NewHandler(registry *peers.Registry, mgr *sync.Manager) *Handler {
	return &Handler{registry: registry, net: registry.NetAdapter(), mgr: mgr}
}

func (h *Handler) Consume(addr types.PeerAddr, msgType uint8, payload []byte) (iface.Consumed, error) {
	p, ok := h.registry.Get(addr)
	if !ok {
		return iface.Consumed{}, nil
	}

	switch codec.MsgType(msgType) {
	case codec.MsgPing:
		return iface.Consumed{Kind: iface.ConsumedResponse, ResponseType: uint8(codec.MsgPong)}, nil
	case codec.MsgPong:
		return iface.Consumed{}, nil
	case codec.MsgPeerAddrsRequest:
		var req types.Capabilities
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &req)
		}
		addrs := h.net.FindPeerAddrs(req)
		body, err := json.Marshal(addrs)
		if err != nil {
			return iface.Consumed{}, err
		}
		return iface.Consumed{Kind: iface.ConsumedResponse, ResponseType: uint8(codec.MsgPeerAddrs), ResponsePayload: body}, nil
	case codec.MsgPeerAddrs:
		var addrs []types.PeerAddr
		if err := json.Unmarshal(payload, &addrs); err != nil {
			log.Debug("devchain: malformed peer-addrs gossip", "peer", addr, "err", err)
			return iface.Consumed{}, nil
		}
		h.net.PeerAddrsReceived(addrs)
		return iface.Consumed{}, nil
	case codec.MsgTransaction:
		if err := h.mgr.TransactionReceived(p.Addr(), payload); err != nil {
			return iface.Consumed{}, err
		}
		h.registry.Broadcast("relay-tx", func(other *peer.Peer) error {
			if other.Addr().Equal(addr) {
				return nil
			}
			other.SendTransaction(payload)
			return nil
		})
		return iface.Consumed{}, nil
	case codec.MsgHeader, codec.MsgHeaderBatch, codec.MsgBlock, codec.MsgCompactBlock, codec.MsgSegmentResponse:
		if err := h.mgr.OnMessage(p, msgType, payload); err != nil {
			return iface.Consumed{}, err
		}
		if codec.MsgType(msgType) == codec.MsgBlock || codec.MsgType(msgType) == codec.MsgCompactBlock {
			h.registry.Broadcast("relay-block", func(other *peer.Peer) error {
				if other.Addr().Equal(addr) {
					return nil
				}
				other.SendCompactBlock(payload)
				return nil
			})
		}
		return iface.Consumed{}, nil
	default:
		return iface.Consumed{}, nil
	}
}

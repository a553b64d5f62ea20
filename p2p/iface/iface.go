// Package iface defines the collaborator interfaces this core demands of
// its host: chain validation/storage, peer-address discovery, inbound
// message handling, persistent peer metadata and the handshake codec. The
// core treats all of these as external capabilities. PeerStore has a
// concrete implementation in internal/store/peerstore, and NetAdapter one
// via p2p/peers.Registry.NetAdapter(). ChainAdapter, Handshake and
// MessageHandler have only the minimal in-memory development versions in
// internal/devchain; the cryptographic negotiation codec is out of scope
// for this layer.
package iface

import (
	"io"

	"github.com/mwc-project/mwc-node/p2p/types"
)

// ChainAdapter is the chain-state capability required by the sync layer.
// HeaderReceived, BlockReceived or CompactBlockReceived returning
// (false, nil) signals an intrinsically bad object (triggers a ban with the
// matching BanReason); a false SegmentReceived is only logged. A non-nil
// error is surfaced to the calling stage instead.
type ChainAdapter interface {
	TotalDifficulty() types.Difficulty
	TotalHeight() uint64

	HeaderReceived(peer types.PeerAddr, headerHash types.Hash, header []byte) (bool, error)
	HeadersReceived(peer types.PeerAddr, headers [][]byte, remaining uint64) error
	BlockReceived(peer types.PeerAddr, block []byte) (bool, error)
	CompactBlockReceived(peer types.PeerAddr, block []byte) (bool, error)
	TransactionReceived(peer types.PeerAddr, tx []byte, stem bool) error
	TxKernelReceived(peer types.PeerAddr, kernelHash types.Hash) error

	LocateHeaders(locator []types.Hash) ([][]byte, error)
	GetBlock(hash types.Hash) ([]byte, bool)

	ArchiveHeader() ([]byte, error)
	TxHashsetRead(hash types.Hash) (io.ReadCloser, int64, error)

	PrepareSegmenter() error
	GetSegment(kind types.SegmentKind, id types.SegmentIdentifier) ([]byte, error)
	SegmentReceived(peer types.PeerAddr, kind types.SegmentKind, id types.SegmentIdentifier, data []byte) (bool, error)
	PIBDStatusReceived(peer types.PeerAddr, status []byte) error

	PeerDifficulty(addr types.PeerAddr, diff types.Difficulty, height uint64)
}

// NetAdapter is the peer-discovery capability required by the server/registry.
type NetAdapter interface {
	FindPeerAddrs(capabilities types.Capabilities) []types.PeerAddr
	PeerAddrsReceived(addrs []types.PeerAddr)
	IsBanned(addr types.PeerAddr) bool
	BanPeer(addr types.PeerAddr, reason types.BanReason)
}

// ConsumedKind enumerates the verdicts a MessageHandler can return for one
// inbound message, per the reader-loop dispatch rule in the component design.
type ConsumedKind uint8

const (
	ConsumedNone ConsumedKind = iota
	ConsumedResponse
	ConsumedAttachment
	ConsumedDisconnect
)

// Consumed is the result of handling one inbound message.
type Consumed struct {
	Kind           ConsumedKind
	ResponseType   uint8
	ResponsePayload []byte
	AttachmentName string
	AttachmentSize uint64
}

// MessageHandler processes one fully-decoded inbound message on behalf of
// the connection worker's reader loop.
type MessageHandler interface {
	Consume(peer types.PeerAddr, msgType uint8, payload []byte) (Consumed, error)
}

// PeerStore is the persistent metadata capability.
type PeerStore interface {
	Save(data types.PeerData) error
	Get(addr types.PeerAddr) (types.PeerData, bool, error)
	FindPeers(state types.PersistState, cap types.Capabilities) ([]types.PeerData, error)
	All() ([]types.PeerData, error)
	DeletePeers(pred func(types.PeerData) bool) error
}

// Handshake is the cryptographic negotiation capability; it consumes an
// already-connected stream and returns the remote's advertised identity
// plus the negotiated protocol version.
type Handshake interface {
	Connect(stream io.ReadWriter, selfAddr types.PeerAddr) (types.PeerInfo, uint32, error)
	Accept(stream io.ReadWriter, selfAddr types.PeerAddr) (types.PeerInfo, uint32, error)
}

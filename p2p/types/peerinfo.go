package types

import "sync"

// Direction is the side that initiated a connection.
type Direction uint8

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// PeerInfo is the per-peer identity block described in the data model:
// address, direction, declared capabilities, user agent, negotiated min
// base fee, and the mutable live counter.
type PeerInfo struct {
	Addr         PeerAddr
	Direction    Direction
	Capabilities Capabilities
	UserAgent    string
	MinBaseFee   uint64

	mu   sync.RWMutex
	live LiveCounter
}

// Live returns a copy of the current live counter.
func (p *PeerInfo) Live() LiveCounter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.live
}

// SetLive updates the live counter; callers must be the connection worker
// dispatching a ping/pong or announcement message for this peer.
func (p *PeerInfo) SetLive(c LiveCounter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live = c
}

// PersistState is the enum of persistent peer states kept in the store.
type PersistState uint8

const (
	Healthy PersistState = iota
	Banned
	Defunct
)

func (s PersistState) String() string {
	switch s {
	case Banned:
		return "Banned"
	case Defunct:
		return "Defunct"
	default:
		return "Healthy"
	}
}

// BanReason enumerates the typed reasons a peer may be banned for, used both
// to select the persisted reason string and to drive the sync-layer ban
// decisions described in the error-handling design.
type BanReason string

const (
	BanBadBlock         BanReason = "BadBlock"
	BanBadCompactBlock  BanReason = "BadCompactBlock"
	BanBadBlockHeader   BanReason = "BadBlockHeader"
	BanBadHandshake     BanReason = "BadHandshake"
	BanAbusive          BanReason = "Abusive"
	BanManual           BanReason = "Manual"
)

// PeerData is the persistent peer record kept in the PeerStore.
type PeerData struct {
	Addr           PeerAddr
	Capabilities   Capabilities
	UserAgent      string
	State          PersistState
	LastBanned     int64 // unix seconds; zero if never banned
	BanReason      BanReason
	LastConnected  int64 // unix seconds
}

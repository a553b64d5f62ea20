package types

// SyncStatus is the macro sync stage machine described in the component
// design: AwaitingPeers -> HeaderHashSync -> HeaderSync -> BodySync ->
// StateSync -> OrphanSync -> NoSync, with OrphanSync able to re-enter
// BodySync on reorg.
type SyncStatus uint8

const (
	NoSync SyncStatus = iota
	AwaitingPeers
	HeaderHashSync
	HeaderSync
	BodySync
	StateSync
	OrphanSync
)

func (s SyncStatus) String() string {
	switch s {
	case AwaitingPeers:
		return "AwaitingPeers"
	case HeaderHashSync:
		return "HeaderHashSync"
	case HeaderSync:
		return "HeaderSync"
	case BodySync:
		return "BodySync"
	case StateSync:
		return "StateSync"
	case OrphanSync:
		return "OrphanSync"
	default:
		return "NoSync"
	}
}

// SyncResponseKind is the result a sync stage's request() call reports back
// to the Runner each pulse.
type SyncResponseKind uint8

const (
	RespWaitingForPeers SyncResponseKind = iota
	RespSyncing
	RespHasMoreHeadersToApply
	RespSyncDone
)

// SyncResponse is returned by SyncManager.SyncRequest each pulse.
type SyncResponse struct {
	Kind               SyncResponseKind
	PeersCapabilities  Capabilities
}

// SegmentIdentifier identifies a fixed-size piece of a Merkle-organized
// data structure by height and index, used by PIBD/StateSync.
type SegmentIdentifier struct {
	Height uint8
	Index  uint64
}

// SegmentKind enumerates the four segment families StateSync fetches.
type SegmentKind uint8

const (
	SegmentBitmap SegmentKind = iota
	SegmentOutput
	SegmentRangeproof
	SegmentKernel
)

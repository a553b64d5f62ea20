// Package sync implements the Sync Manager and Runner described in §4.5: a
// state machine that drives the local chain toward the network tip through
// header, body, state-snapshot and orphan stages.
package sync

import "time"

// Config holds the Runner's pacing constants, reproduced from
// original_source/servers/src/mwc/sync/syncer.rs.
type Config struct {
	MinPeers int

	AwaitingPeersWait time.Duration
	NormalPulse       time.Duration
	HeaderDrainPulse  time.Duration

	PeerTableDumpInterval time.Duration
	CleanPeersInterval    time.Duration
	PostSyncDoneDrain     time.Duration
	PostSyncDonePulse     time.Duration

	HeaderBatchSize       int
	HeaderRequestTimeout  time.Duration
	SegmentRequestTimeout time.Duration
	MaxTimeoutsBeforeDrop int
}

// DefaultConfig reproduces the source's constants verbatim: MIN_PEERS = 3,
// 30s bootstrap wait else 3s, 1000ms default pulse (100ms while draining
// header batches), a 20-minute peer-table dump interval, and a 20-iteration
// /1s drain loop after SyncDone.
func DefaultConfig() Config {
	return Config{
		MinPeers:              3,
		AwaitingPeersWait:     30 * time.Second,
		NormalPulse:           1000 * time.Millisecond,
		HeaderDrainPulse:      100 * time.Millisecond,
		PeerTableDumpInterval: 20 * time.Minute,
		CleanPeersInterval:    60 * time.Second,
		PostSyncDoneDrain:     20 * time.Second,
		PostSyncDonePulse:     1 * time.Second,
		HeaderBatchSize:       512,
		HeaderRequestTimeout:  10 * time.Second,
		SegmentRequestTimeout: 20 * time.Second,
		MaxTimeoutsBeforeDrop: 3,
	}
}

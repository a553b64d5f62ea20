package types

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/holiman/uint256"
)

// Difficulty and TotalDifficulty are rendered as uint256 rather than a
// plain uint64 so the sync stages can compare cumulative chain work the
// same way the source's arbitrary-precision difficulty type does.
type Difficulty = uint256.Int

// Hash is the 32-byte identifier used for block/header hashes and segment
// roots throughout the registry and sync layers.
type Hash = chainhash.Hash

// LiveCounter is the mutable per-peer view of chain progress, updated only
// by the connection worker that owns the peer on receipt of ping/pong or
// announcement messages.
type LiveCounter struct {
	Height          uint64
	TotalDifficulty Difficulty
}

// Advanced reports whether other represents further chain work than c.
func (c LiveCounter) Advanced(other LiveCounter) bool {
	return other.TotalDifficulty.Cmp(&c.TotalDifficulty) > 0
}

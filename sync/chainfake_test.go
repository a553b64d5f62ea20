package sync

import (
	"io"
	"sync"

	"github.com/mwc-project/mwc-node/p2p/types"
)

// fakeChain is a minimal iface.ChainAdapter stub for driving stage/manager
// behavior deterministically under test, independent of internal/devchain.
type fakeChain struct {
	mu sync.Mutex

	totalHeight     uint64
	totalDifficulty types.Difficulty
	archiveHeader   []byte

	headersReceivedCalls int
}

func (c *fakeChain) TotalDifficulty() types.Difficulty { return c.totalDifficulty }
func (c *fakeChain) TotalHeight() uint64                { return c.totalHeight }

func (c *fakeChain) HeaderReceived(types.PeerAddr, types.Hash, []byte) (bool, error) { return true, nil }

func (c *fakeChain) HeadersReceived(_ types.PeerAddr, _ [][]byte, _ uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headersReceivedCalls++
	return nil
}

func (c *fakeChain) BlockReceived(types.PeerAddr, []byte) (bool, error) { return true, nil }

func (c *fakeChain) CompactBlockReceived(types.PeerAddr, []byte) (bool, error) { return true, nil }

func (c *fakeChain) TransactionReceived(types.PeerAddr, []byte, bool) error { return nil }

func (c *fakeChain) TxKernelReceived(types.PeerAddr, types.Hash) error { return nil }

func (c *fakeChain) LocateHeaders([]types.Hash) ([][]byte, error) { return nil, nil }

func (c *fakeChain) GetBlock(types.Hash) ([]byte, bool) { return nil, false }

func (c *fakeChain) ArchiveHeader() ([]byte, error) {
	if c.archiveHeader != nil {
		return c.archiveHeader, nil
	}
	return []byte("genesis"), nil
}

func (c *fakeChain) TxHashsetRead(types.Hash) (io.ReadCloser, int64, error) { return nil, 0, nil }

func (c *fakeChain) PrepareSegmenter() error { return nil }

func (c *fakeChain) GetSegment(types.SegmentKind, types.SegmentIdentifier) ([]byte, error) {
	return nil, nil
}

func (c *fakeChain) SegmentReceived(types.PeerAddr, types.SegmentKind, types.SegmentIdentifier, []byte) (bool, error) {
	return true, nil
}

func (c *fakeChain) PIBDStatusReceived(types.PeerAddr, []byte) error { return nil }

func (c *fakeChain) PeerDifficulty(types.PeerAddr, types.Difficulty, uint64) {}

package conn

import (
	"sync"
	"sync/atomic"

	"github.com/mwc-project/mwc-node/log"
)

// StopHandle coordinates cooperative shutdown of the reader and writer
// goroutines for one peer, per the cancellation model: a shared atomic
// flag plus a closed-channel signal so blocking receives wake promptly.
type StopHandle struct {
	stopped int32
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	ownerAddr string
}

// NewStopHandle creates a handle for the peer identified by addr (used only
// to detect and no-op a self-join from within a dispatch callback).
func NewStopHandle(addr string) *StopHandle {
	return &StopHandle{done: make(chan struct{}), ownerAddr: addr}
}

// Stop signals both workers to exit at their next iteration boundary. Safe
// to call more than once and from multiple goroutines.
func (s *StopHandle) Stop() {
	atomic.StoreInt32(&s.stopped, 1)
	s.once.Do(func() { close(s.done) })
}

// Stopped reports whether Stop has been called.
func (s *StopHandle) Stopped() bool {
	return atomic.LoadInt32(&s.stopped) == 1
}

// Done returns a channel closed when Stop is called, for use in select
// statements guarding blocking operations.
func (s *StopHandle) Done() <-chan struct{} {
	return s.done
}

// Add registers n goroutines that must complete before Wait returns.
func (s *StopHandle) Add(n int) { s.wg.Add(n) }

// WorkerDone marks one registered goroutine as finished.
func (s *StopHandle) WorkerDone() { s.wg.Done() }

// Wait joins both worker goroutines, unless callerAddr matches the owning
// peer's address, in which case it is a self-join and becomes a no-op with
// a debug log, per the cancellation model's self-join rule.
func (s *StopHandle) Wait(callerAddr string) {
	if callerAddr != "" && callerAddr == s.ownerAddr {
		log.Debug("stop handle: ignoring self-join", "peer", s.ownerAddr)
		return
	}
	s.wg.Wait()
}

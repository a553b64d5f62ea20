// Package peer implements the Peer Handle façade: the composition of
// PeerInfo, a connection worker's write handle, its lifecycle handle, its
// byte-rate tracker and a banned flag, described in §3 and §4.2.
package peer

import (
	"sync/atomic"
	"time"

	"github.com/mwc-project/mwc-node/log"
	"github.com/mwc-project/mwc-node/p2p/codec"
	"github.com/mwc-project/mwc-node/p2p/conn"
	"github.com/mwc-project/mwc-node/p2p/types"
)

// Thresholds are policy, not transport, per §4.2: abuse/stuck detection is
// driven by tracker counters and timestamps, configurable by the embedder.
type Thresholds struct {
	AbusiveBytesPerMin uint64
	StuckWindow        time.Duration
}

// DefaultThresholds mirrors the source's conservative defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AbusiveBytesPerMin: 8 << 20, // 8 MiB/min
		StuckWindow:        5 * time.Minute,
	}
}

// Peer is the composed handle the rest of the system interacts with.
type Peer struct {
	Info *types.PeerInfo

	worker *conn.Worker
	th     Thresholds

	banned int32
}

// New wraps a started connection worker with peer identity and policy
// thresholds into a Peer Handle.
func New(info *types.PeerInfo, worker *conn.Worker, th Thresholds) *Peer {
	return &Peer{Info: info, worker: worker, th: th}
}

// Addr is a convenience accessor over the wrapped PeerInfo's address.
func (p *Peer) Addr() types.PeerAddr { return p.Info.Addr }

// Send enqueues msg on the bounded outbound queue via a non-blocking
// try-send, per §4.2: Ok(enqueued), Ok(dropped-because-full, logged debug),
// or Err iff the worker has already terminated.
func (p *Peer) Send(typ codec.MsgType, payload []byte) error {
	return p.worker.Handle().Send(typ, payload, false)
}

// SendCompressed is Send for payloads eligible for snappy compression
// (large attachment chunks).
func (p *Peer) SendCompressed(typ codec.MsgType, payload []byte) error {
	return p.worker.Handle().Send(typ, payload, true)
}

// SendPing/SendHeader/... are typed senders per §4.2: serialize, compute
// envelope, then Send. They return false only when the worker has been
// stopped; a message dropped because the queue is full still returns true.
// No check is made for whether the remote already has the object.
func (p *Peer) SendPing(payload []byte) bool {
	return p.Send(codec.MsgPing, payload) == nil
}

func (p *Peer) SendHeader(payload []byte) bool {
	return p.Send(codec.MsgHeader, payload) == nil
}

func (p *Peer) SendCompactBlock(payload []byte) bool {
	return p.Send(codec.MsgCompactBlock, payload) == nil
}

func (p *Peer) SendTransaction(payload []byte) bool {
	return p.Send(codec.MsgTransaction, payload) == nil
}

// SendBanReason best-effort notifies a peer why it is being disconnected.
func (p *Peer) SendBanReason(reason types.BanReason) bool {
	return p.Send(codec.MsgBanReason, []byte(reason)) == nil
}

// IsConnected reports whether the peer is not banned and its worker is
// still alive.
func (p *Peer) IsConnected() bool {
	return !p.IsBanned() && p.worker != nil && p.worker.Alive()
}

// IsBanned reports the in-memory banned flag, set by the registry as part
// of ban_peer before the worker is stopped and removed.
func (p *Peer) IsBanned() bool {
	return atomic.LoadInt32(&p.banned) == 1
}

// MarkBanned flips the banned flag; called by the registry, never by the
// peer itself.
func (p *Peer) MarkBanned() {
	atomic.StoreInt32(&p.banned, 1)
}

// Tracker exposes the underlying byte-rate tracker; the registry's tests use
// it to simulate abusive traffic.
func (p *Peer) Tracker() *conn.Tracker {
	return p.worker.Tracker()
}

// IsAbusive reports whether received- or sent-bytes-per-minute exceed the
// configured threshold.
func (p *Peer) IsAbusive() bool {
	t := p.worker.Tracker()
	return t.ReceivedBytesPerMin() > p.th.AbusiveBytesPerMin || t.SentBytesPerMin() > p.th.AbusiveBytesPerMin
}

// IsStuck reports whether the peer's last reported difficulty has not
// advanced within the configured window, and that last difficulty.
func (p *Peer) IsStuck() (bool, uint64) {
	return p.worker.Tracker().IsStuck(p.th.StuckWindow)
}

// Stop signals the worker's goroutines to exit at their next iteration
// boundary.
func (p *Peer) Stop() {
	log.Debug("peer: stopping", "addr", p.Addr())
	p.worker.Stop()
}

// Wait joins the worker's goroutines; self-join from callerAddr equal to
// this peer's address is a no-op.
func (p *Peer) Wait(callerAddr string) {
	p.worker.Wait(callerAddr)
}

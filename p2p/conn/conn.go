// Package conn implements the per-peer Connection Worker: a reader/writer
// goroutine pair bound to one byte stream, a bounded outbound queue, the
// framing codec, rate tracking and cooperative lifecycle control.
package conn

import (
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mwc-project/mwc-node/log"
	"github.com/mwc-project/mwc-node/p2p/codec"
	"github.com/mwc-project/mwc-node/p2p/iface"
	"github.com/mwc-project/mwc-node/p2p/types"
)

const (
	// SendChannelCap bounds per-peer outbound memory; overflow drops the
	// message rather than blocking the producer. Reproduced from the
	// source's SEND_CHANNEL_CAP = 32 + 8.
	SendChannelCap = 32 + 8

	// WriterQueueTimeout is how long the writer blocks waiting for the
	// first message of a batch before re-checking the stop flag.
	WriterQueueTimeout = 15 * time.Second
	// WriteTimeout bounds a single batched write syscall sequence.
	WriteTimeout = 10 * time.Second
	// readPollTimeout bounds a single codec read so the reader loop can
	// observe the stop flag even on an idle connection.
	readPollTimeout = 2 * time.Second
)

// ErrQueueDisconnected is returned by Send once the worker's stop flag is
// set.
var ErrQueueDisconnected = errors.New("conn: outbound queue disconnected")

type outboundMsg struct {
	typ     codec.MsgType
	payload []byte
	compress bool
}

// Handle is the write-side façade over one peer's outbound queue, handed to
// the Peer Handle layer above.
type Handle struct {
	addr  string
	queue chan outboundMsg
	stop  *StopHandle
}

// Send enqueues msg via a non-blocking try-send. It never blocks the
// producer: a full queue silently drops the message (logged at debug, not
// an error — the remote may simply be slow). It returns ErrQueueDisconnected
// only once the worker has been stopped; the queue itself is never closed.
func (h *Handle) Send(typ codec.MsgType, payload []byte, compress bool) error {
	if h.stop.Stopped() {
		return ErrQueueDisconnected
	}
	select {
	case h.queue <- outboundMsg{typ: typ, payload: payload, compress: compress}:
		return nil
	default:
		log.Debug("conn: outbound queue full, dropping message", "peer", h.addr, "type", typ)
		return nil
	}
}

// Worker owns one byte stream and runs its reader/writer goroutines.
type Worker struct {
	addr      string
	sessionID string
	peerAddr  types.PeerAddr
	conn      net.Conn
	codec     *codec.Codec
	tracker   *Tracker
	handler   iface.MessageHandler
	stop      *StopHandle
	handle    *Handle

	attachment     *codec.Attachment
	attachmentFile *os.File

	retrySlot []outboundMsg
}

// New builds a worker bound to conn, ready to have Start called. Each worker
// gets a random session id, used only to correlate log lines across a single
// stream's lifetime when a peer reconnects under the same address.
func New(peerAddr types.PeerAddr, c net.Conn, handler iface.MessageHandler) *Worker {
	addr := peerAddr.String()
	stop := NewStopHandle(addr)
	queue := make(chan outboundMsg, SendChannelCap)
	w := &Worker{
		addr:      addr,
		sessionID: uuid.NewString(),
		peerAddr:  peerAddr,
		conn:      c,
		codec:     codec.New(c),
		tracker:   NewTracker(),
		handler:   handler,
		stop:      stop,
		handle:    &Handle{addr: addr, queue: queue, stop: stop},
	}
	return w
}

// Handle returns the outbound-send façade for this worker.
func (w *Worker) Handle() *Handle { return w.handle }

// Tracker exposes the byte-rate counters for abuse/stuck detection.
func (w *Worker) Tracker() *Tracker { return w.tracker }

// Stop signals both goroutines to exit at their next iteration boundary.
func (w *Worker) Stop() { w.stop.Stop() }

// Alive reports whether the stop flag is still clear: true from New (even
// before Start) until Stop is called or either goroutine exits. Because
// readLoop and writeLoop each defer shutdown() (which calls stop.Stop())
// before stop.WorkerDone(), the stop flag flips the instant either goroutine
// exits for any reason, including a fatal I/O error — so this needs no
// liveness state beyond the existing StopHandle.
func (w *Worker) Alive() bool { return !w.stop.Stopped() }

// Wait joins both worker goroutines; a self-join (callerAddr == this
// worker's peer address) is a no-op, per the cancellation model.
func (w *Worker) Wait(callerAddr string) { w.stop.Wait(callerAddr) }

// Start launches the reader and writer goroutines.
func (w *Worker) Start() {
	log.Debug("conn: starting worker", "peer", w.addr, "session", w.sessionID)
	w.stop.Add(2)
	go w.readLoop()
	go w.writeLoop()
}

func (w *Worker) shutdown() {
	w.stop.Stop()
	_ = w.conn.Close()
	if w.attachmentFile != nil {
		_ = w.attachmentFile.Close()
		w.attachmentFile = nil
	}
}

// readLoop implements the reader side of §4.1: check stop, read one frame,
// tick the rate tracker, dispatch on message kind.
func (w *Worker) readLoop() {
	defer w.stop.WorkerDone()
	defer w.shutdown()

	for {
		if w.stop.Stopped() {
			return
		}
		_ = w.conn.SetReadDeadline(time.Now().Add(readPollTimeout))
		frame, err := w.codec.ReadFrame()
		if err != nil {
			if isTimeoutOrWouldBlock(err) {
				continue
			}
			if err == io.EOF {
				log.Debug("conn: peer closed stream", "peer", w.addr)
				return
			}
			log.Debug("conn: fatal read error", "peer", w.addr, "err", err)
			return
		}

		quiet := frame.Type == codec.MsgAttachmentChunk || frame.Type == codec.MsgHeaderBatch
		w.tracker.IncReceived(uint64(frame.BytesRead), quiet)

		if !w.dispatch(frame) {
			return
		}
	}
}

// dispatch handles one decoded frame. It returns false if the loop must
// break (a fatal transport condition or a handler Disconnect verdict).
func (w *Worker) dispatch(frame codec.Frame) bool {
	switch frame.Type {
	case codec.MsgAttachmentChunk:
		return w.handleAttachmentChunk(frame.Payload)
	case codec.MsgUnknown:
		log.Debug("conn: unknown frame type, ignoring", "peer", w.addr)
		return true
	default:
		consumed, err := w.handler.Consume(w.peerAddr, uint8(frame.Type), frame.Payload)
		if err != nil {
			// Transient adapter/store errors are skipped, not fatal.
			log.Debug("conn: handler error, skipping message", "peer", w.addr, "err", err)
			return true
		}
		return w.applyConsumed(consumed)
	}
}

func (w *Worker) applyConsumed(c iface.Consumed) bool {
	switch c.Kind {
	case iface.ConsumedResponse:
		_ = w.handle.Send(codec.MsgType(c.ResponseType), c.ResponsePayload, false)
		return true
	case iface.ConsumedAttachment:
		w.attachment = codec.NewAttachment(c.AttachmentName, c.AttachmentSize)
		f, err := os.CreateTemp("", "attachment-*")
		if err != nil {
			log.Error("conn: failed to open attachment file", "peer", w.addr, "err", err)
			return false
		}
		w.attachmentFile = f
		return true
	case iface.ConsumedDisconnect:
		log.Debug("conn: handler requested disconnect", "peer", w.addr)
		return false
	default:
		return true
	}
}

func (w *Worker) handleAttachmentChunk(payload []byte) bool {
	if w.attachment == nil {
		log.Debug("conn: attachment chunk with no announcement, terminating", "peer", w.addr)
		return false
	}
	bytesLeft, data, err := codec.AttachmentChunkPayload(payload)
	if err != nil {
		log.Debug("conn: malformed attachment chunk", "peer", w.addr, "err", err)
		return false
	}
	if w.attachmentFile != nil {
		if _, err := w.attachmentFile.Write(data); err != nil {
			log.Error("conn: attachment write failed", "peer", w.addr, "err", err)
			return false
		}
	}
	// bytes_left == 0 is the wire's end-of-attachment signal per §6/§8; the
	// locally-tracked remaining-from-announced-size counter also advances
	// every chunk, and the attachment finishes as soon as either one says so.
	done := w.attachment.Consume(uint64(len(data)))
	if bytesLeft == 0 {
		done = true
	}
	if done {
		if w.attachmentFile != nil {
			_ = w.attachmentFile.Sync()
			_ = w.attachmentFile.Close()
			w.attachmentFile = nil
		}
		w.attachment = nil
	}
	return true
}

// writeLoop implements the writer side of §4.1: block on the queue with a
// timeout, drain a batch non-blocking, write it as one sequence, retry a
// partially-failed batch on the next iteration rather than dropping it.
func (w *Worker) writeLoop() {
	defer w.stop.WorkerDone()
	defer w.shutdown()

	for {
		if w.stop.Stopped() {
			return
		}

		var batch []outboundMsg
		if len(w.retrySlot) > 0 {
			batch = w.retrySlot
			w.retrySlot = nil
		} else {
			select {
			case msg, ok := <-w.handle.queue:
				if !ok {
					log.Debug("conn: outbound queue closed", "peer", w.addr)
					return
				}
				batch = append(batch, msg)
			case <-w.stop.Done():
				return
			case <-time.After(WriterQueueTimeout):
				continue
			}
			batch = append(batch, w.drainNonBlocking()...)
		}

		_ = w.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
		if err := w.writeBatch(batch); err != nil {
			log.Debug("conn: write failed, will retry batch", "peer", w.addr, "err", err)
			w.retrySlot = batch
			if isFatalWriteErr(err) {
				return
			}
			continue
		}
	}
}

func (w *Worker) drainNonBlocking() []outboundMsg {
	var extra []outboundMsg
	for len(extra) < SendChannelCap {
		select {
		case msg, ok := <-w.handle.queue:
			if !ok {
				return extra
			}
			extra = append(extra, msg)
		default:
			return extra
		}
	}
	return extra
}

func (w *Worker) writeBatch(batch []outboundMsg) error {
	var sent int
	for _, msg := range batch {
		n, err := w.codec.WriteFrame(msg.typ, msg.payload, msg.compress)
		if err != nil {
			w.tracker.IncSent(uint64(n), false)
			return err
		}
		w.tracker.IncSent(uint64(n), msg.typ == codec.MsgAttachmentChunk || msg.typ == codec.MsgHeaderBatch)
		sent++
	}
	return w.codec.Flush()
}

func isTimeoutOrWouldBlock(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}

func isFatalWriteErr(err error) bool {
	return !isTimeoutOrWouldBlock(err)
}

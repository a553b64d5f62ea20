// Package codec implements the wire framing used by the connection worker:
// length-prefixed typed frames, plus an out-of-band chunked attachment
// sub-frame terminated by a zero-remaining chunk.
package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// MsgType identifies the kind of a frame's payload.
type MsgType uint8

const (
	MsgUnknown MsgType = iota
	MsgPing
	MsgPong
	MsgHeader
	MsgHeaderBatch
	MsgBlock
	MsgCompactBlock
	MsgTransaction
	MsgBanReason
	MsgAttachmentAnnounce
	MsgAttachmentChunk
	MsgSegmentRequest
	MsgSegmentResponse
	MsgPeerAddrs
	MsgPeerAddrsRequest
)

const (
	headerLen = 1 + 4 // type byte + uint32 length
	// maxFrameLen bounds a single frame to guard against a malformed or
	// hostile length prefix causing an unbounded allocation.
	maxFrameLen = 64 << 20
)

// flagCompressed marks a frame body as snappy-compressed; set by the sender
// for large attachment chunks per the domain-stack wiring of snappy.
const flagCompressed = 0x80

// Frame is one decoded wire message: a type tag and its raw payload.
type Frame struct {
	Type       MsgType
	Payload    []byte
	BytesRead  int
}

// Attachment describes an in-flight out-of-band chunked transfer.
type Attachment struct {
	Name       string
	TotalSize  uint64
	remaining  uint64
}

// NewAttachment begins tracking an attachment transfer of the given size.
func NewAttachment(name string, size uint64) *Attachment {
	return &Attachment{Name: name, TotalSize: size, remaining: size}
}

// Remaining reports the bytes left to receive.
func (a *Attachment) Remaining() uint64 { return a.remaining }

// Consume records n received bytes and reports whether the attachment is
// now complete (remaining == 0).
func (a *Attachment) Consume(n uint64) bool {
	if n > a.remaining {
		a.remaining = 0
	} else {
		a.remaining -= n
	}
	return a.remaining == 0
}

// Codec reads and writes frames on a single byte stream.
type Codec struct {
	r *bufio.Reader
	w *bufio.Writer
}

// New wraps a stream with buffered frame I/O.
func New(rw io.ReadWriter) *Codec {
	return &Codec{r: bufio.NewReaderSize(rw, 32*1024), w: bufio.NewWriterSize(rw, 32*1024)}
}

// ReadFrame blocks until a complete frame is available (subject to the
// stream's configured read deadline) and returns it along with the number
// of bytes consumed from the wire, used by the reader loop's rate tracker.
func (c *Codec) ReadFrame() (Frame, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	typ := MsgType(hdr[0] &^ flagCompressed)
	compressed := hdr[0]&flagCompressed != 0
	length := binary.BigEndian.Uint32(hdr[1:])
	if length > maxFrameLen {
		return Frame{}, fmt.Errorf("codec: frame length %d exceeds maximum %d", length, maxFrameLen)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(c.r, body); err != nil {
		return Frame{}, err
	}
	total := headerLen + int(length)
	if compressed {
		decoded, err := snappy.Decode(nil, body)
		if err != nil {
			return Frame{}, fmt.Errorf("codec: snappy decode: %w", err)
		}
		body = decoded
	}
	return Frame{Type: typ, Payload: body, BytesRead: total}, nil
}

// WriteFrame serializes one frame. compress should only be requested for
// large attachment chunk bodies per the domain-stack wiring.
func (c *Codec) WriteFrame(typ MsgType, payload []byte, compress bool) (int, error) {
	tag := byte(typ)
	body := payload
	if compress {
		body = snappy.Encode(nil, payload)
		tag |= flagCompressed
	}
	var hdr [headerLen]byte
	hdr[0] = tag
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(body)))
	if _, err := c.w.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := c.w.Write(body); err != nil {
		return 0, err
	}
	return headerLen + len(body), nil
}

// Flush pushes any buffered writes to the underlying stream.
func (c *Codec) Flush() error {
	return c.w.Flush()
}

// AttachmentChunkPayload decodes an attachment-chunk frame body into the
// remaining-bytes counter and the chunk's data.
func AttachmentChunkPayload(payload []byte) (bytesLeft uint64, data []byte, err error) {
	if len(payload) < 8 {
		return 0, nil, fmt.Errorf("codec: attachment chunk too short")
	}
	bytesLeft = binary.BigEndian.Uint64(payload[:8])
	return bytesLeft, payload[8:], nil
}

// EncodeAttachmentChunk builds an attachment-chunk frame body.
func EncodeAttachmentChunk(bytesLeft uint64, data []byte) []byte {
	out := make([]byte, 8+len(data))
	binary.BigEndian.PutUint64(out[:8], bytesLeft)
	copy(out[8:], data)
	return out
}

package conn

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/fastcache"
)

// Tracker counts bytes sent/received per peer for abuse and stuck-peer
// detection. Per-minute buckets are kept in a small fastcache instance
// instead of a hand-rolled ring buffer, bounding memory for long-lived
// connections while still answering "bytes in the last minute" cheaply.
type Tracker struct {
	sentTotal     uint64
	receivedTotal uint64

	buckets *fastcache.Cache

	lastDifficulty uint64
	lastDiffSeenAt int64 // unix seconds
}

// NewTracker allocates a tracker with a small dedicated minute-bucket cache.
func NewTracker() *Tracker {
	return &Tracker{buckets: fastcache.New(64 * 1024)}
}

func minuteKey(dir string, t time.Time) []byte {
	return []byte(fmt.Sprintf("%s:%d", dir, t.Unix()/60))
}

// IncSent records n bytes sent, attributing them to the current minute
// bucket. quiet (passed for attachment chunks and header batches) has no
// effect: quiet and non-quiet calls are counted identically, and the
// tracker keeps byte counts only, no per-message count.
func (t *Tracker) IncSent(n uint64, quiet bool) {
	atomic.AddUint64(&t.sentTotal, n)
	t.bump("sent", n)
	_ = quiet // counted identically
}

// IncReceived is the receive-side analogue of IncSent.
func (t *Tracker) IncReceived(n uint64, quiet bool) {
	atomic.AddUint64(&t.receivedTotal, n)
	t.bump("recv", n)
	_ = quiet
}

func (t *Tracker) bump(dir string, n uint64) {
	key := minuteKey(dir, time.Now())
	buf, _ := t.buckets.HasGet(nil, key)
	var cur uint64
	if len(buf) == 8 {
		for i := 0; i < 8; i++ {
			cur |= uint64(buf[i]) << (8 * i)
		}
	}
	cur += n
	var out [8]byte
	for i := 0; i < 8; i++ {
		out[i] = byte(cur >> (8 * i))
	}
	t.buckets.Set(key, out[:])
}

func (t *Tracker) perMinute(dir string) uint64 {
	now := time.Now()
	var sum uint64
	for _, ts := range []time.Time{now, now.Add(-time.Minute)} {
		buf, ok := t.buckets.HasGet(nil, minuteKey(dir, ts))
		if ok && len(buf) == 8 {
			var v uint64
			for i := 0; i < 8; i++ {
				v |= uint64(buf[i]) << (8 * i)
			}
			sum += v
		}
	}
	return sum
}

// ReceivedBytesPerMin reports an approximate receive rate over the trailing
// minute, used by abuse detection.
func (t *Tracker) ReceivedBytesPerMin() uint64 { return t.perMinute("recv") }

// SentBytesPerMin is the send-side analogue.
func (t *Tracker) SentBytesPerMin() uint64 { return t.perMinute("sent") }

// SentTotal and ReceivedTotal report lifetime totals.
func (t *Tracker) SentTotal() uint64     { return atomic.LoadUint64(&t.sentTotal) }
func (t *Tracker) ReceivedTotal() uint64 { return atomic.LoadUint64(&t.receivedTotal) }

// ReportDifficulty records the peer's most recently announced total
// difficulty for the stuck-peer check in IsStuck.
func (t *Tracker) ReportDifficulty(diff uint64) {
	if diff != atomic.LoadUint64(&t.lastDifficulty) {
		atomic.StoreUint64(&t.lastDifficulty, diff)
		atomic.StoreInt64(&t.lastDiffSeenAt, time.Now().Unix())
	}
}

// IsStuck reports whether the peer's difficulty has not advanced within
// window, along with the last reported difficulty.
func (t *Tracker) IsStuck(window time.Duration) (stuck bool, lastDifficulty uint64) {
	lastDifficulty = atomic.LoadUint64(&t.lastDifficulty)
	seenAt := atomic.LoadInt64(&t.lastDiffSeenAt)
	if seenAt == 0 {
		return false, lastDifficulty
	}
	stuck = time.Since(time.Unix(seenAt, 0)) > window
	return stuck, lastDifficulty
}

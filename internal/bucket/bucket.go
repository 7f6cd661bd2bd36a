// Package bucket implements the per-key accumulation at the heart of the
// aggregator: an ordered byte stream that appends are folded into, armed
// with an idle timer and a hard TTL, flushed to the writer when either
// fires or the item ceiling is reached.
package bucket

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
)

// TimeoutKind distinguishes which of a bucket's two timers fired.
type TimeoutKind int

const (
	TimeoutIdle TimeoutKind = iota
	TimeoutTTL
)

// NotifyFunc is how a bucket's timers reach back into the table without
// owning it: timers are keyed by the bucket's own key, not by a retained
// pointer into the table, so there is no Bucket<->Table retain cycle
// (spec §9, "Cyclic references"). The table (or whatever owns the
// notification channel) decides whether the event still applies — the
// bucket that fired it may already have been flushed and replaced.
type NotifyFunc func(key string, b *Bucket, kind TimeoutKind)

// Allocator constructs the backing Stream for a new bucket. Substituting
// one that can fail models the "pipe pair unavailable" case from spec §4.2
// without requiring an actual OS pipe implementation.
type Allocator func() (Stream, error)

// Bucket is the per-key accumulator described in spec §3. It is touched
// exclusively by the ingress goroutine; its timers run on their own
// goroutines but only ever call NotifyFunc, which does nothing but hand an
// event to a channel the ingress goroutine drains serially.
type Bucket struct {
	key         string
	firstSeen   time.Time
	stream      Stream
	itemCount   int
	maxItems    int
	idleTimeout time.Duration
	notify      NotifyFunc
	idleTimer   *time.Timer
	ttlTimer    *time.Timer
	healthy     bool
}

// New allocates a bucket's stream, writes its header line, and arms both
// timers. A Bucket returned with Healthy() == false must be discarded
// without insertion into the table (spec §4.2, §7 BucketAllocFail).
func New(key string, now time.Time, maxItems int, idleTimeout, ttl time.Duration, notify NotifyFunc, allocate Allocator) (*Bucket, error) {
	if allocate == nil {
		allocate = newBufferStream
	}

	stream, err := allocate()
	if err != nil {
		return &Bucket{key: key, healthy: false}, errors.Wrap(err, "bucket: allocate stream")
	}

	b := &Bucket{
		key:         key,
		firstSeen:   now,
		stream:      stream,
		maxItems:    maxItems,
		idleTimeout: idleTimeout,
		notify:      notify,
		healthy:     true,
	}

	header := fmt.Sprintf("\n%f;%s", unixFractional(now), key)
	if _, err := stream.Write([]byte(header)); err != nil {
		return &Bucket{key: key, healthy: false}, errors.Wrap(err, "bucket: write header")
	}

	b.idleTimer = time.AfterFunc(idleTimeout, func() { notify(key, b, TimeoutIdle) })
	b.ttlTimer = time.AfterFunc(ttl, func() { notify(key, b, TimeoutTTL) })

	return b, nil
}

// Key returns the bucket's immutable key.
func (b *Bucket) Key() string { return b.key }

// FirstSeen returns the creation timestamp embedded in every record this
// bucket will ever produce, regardless of when it eventually flushes.
func (b *Bucket) FirstSeen() time.Time { return b.firstSeen }

// ItemCount returns the number of values appended so far (excludes the header).
func (b *Bucket) ItemCount() int { return b.itemCount }

// Healthy reports whether the bucket's stream is usable.
func (b *Bucket) Healthy() bool { return b.healthy }

// Len reports the number of unconsumed bytes in the bucket's stream.
func (b *Bucket) Len() int { return b.stream.Len() }

// WriteTo drains the bucket's stream into w, consuming the bytes it writes.
// Used exclusively by the writer during flush.
func (b *Bucket) WriteTo(w io.Writer) (int64, error) { return b.stream.WriteTo(w) }

// Append folds value (which already carries its own leading separator,
// spec §3) into the stream. flush is true when the caller must detach
// and enqueue the bucket immediately; reason explains why.
func (b *Bucket) Append(value []byte) (flush bool, reason Reason, err error) {
	if _, werr := b.stream.Write(value); werr != nil {
		return true, ReasonSysError, werr
	}

	b.itemCount++
	if b.itemCount >= b.maxItems {
		return true, ReasonMaxSize, nil
	}

	b.rearmIdle()
	return false, 0, nil
}

// rearmIdle stops and restarts the idle timer (spec §4.2: "stops and
// restarts the idle timer at max_bucket_idle seconds from now"). The TTL
// timer is never rearmed.
func (b *Bucket) rearmIdle() {
	if b.idleTimer != nil {
		b.idleTimer.Stop()
	}
	key, notify := b.key, b.notify
	b.idleTimer = time.AfterFunc(b.idleTimeout, func() { notify(key, b, TimeoutIdle) })
}

// StopTimers stops both timers. Idempotent, safe to call more than once
// during a flush race between idle and TTL firing near-simultaneously.
func (b *Bucket) StopTimers() {
	if b.idleTimer != nil {
		b.idleTimer.Stop()
	}
	if b.ttlTimer != nil {
		b.ttlTimer.Stop()
	}
}

func unixFractional(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

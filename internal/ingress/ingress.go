// Package ingress implements the UDP receive loop (spec §4.5). A dedicated
// reader goroutine blocks on the socket and hands each datagram to a single
// ingress-loop goroutine over a channel; bucket timers do the same for
// their idle/TTL fires. Every BucketTable mutation therefore happens on
// that one goroutine, reproducing spec §4.3's "touched only by the Ingress
// thread, so it requires no internal locking" guarantee without literally
// running on one OS thread — the same channel-handoff shape kcptun itself
// uses to keep its accept loop off the I/O goroutines.
package ingress

import (
	"bytes"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/christianparpart/kollektor/internal/bucket"
	"github.com/christianparpart/kollektor/internal/stats"
	"github.com/christianparpart/kollektor/internal/writer"
)

// maxDatagramSize is the largest UDP payload the wire format allows (spec §6).
const maxDatagramSize = 4096

// Clock lets tests substitute a synthetic clock for wall time.
type Clock func() time.Time

type datagramEvent struct {
	payload []byte
	now     time.Time
}

type timeoutEvent struct {
	key  string
	b    *bucket.Bucket
	kind bucket.TimeoutKind
}

// Ingress owns the bucket table and drives it from datagrams and bucket
// timer fires, handing flushed buckets to w.
type Ingress struct {
	conn     net.PacketConn
	table    *bucket.Table
	w        *writer.Writer
	stats    *stats.Stats
	now      Clock
	allocate bucket.Allocator

	maxBucketSize int
	idleTimeout   time.Duration
	ttl           time.Duration

	timeouts  chan timeoutEvent
	datagrams chan datagramEvent
	readerErr chan error
	stopRead  chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

// New constructs an Ingress bound to an already-listening conn. allocate,
// if nil, defaults to the in-memory Stream substitute (spec §4.2).
func New(conn net.PacketConn, maxBucketCount, maxBucketSize int, idle, ttl time.Duration, w *writer.Writer, st *stats.Stats, now Clock, allocate bucket.Allocator) *Ingress {
	in := &Ingress{
		conn:          conn,
		w:             w,
		stats:         st,
		now:           now,
		allocate:      allocate,
		maxBucketSize: maxBucketSize,
		idleTimeout:   idle,
		ttl:           ttl,
		timeouts:      make(chan timeoutEvent, 64),
		datagrams:     make(chan datagramEvent, 64),
		readerErr:     make(chan error, 1),
		stopRead:      make(chan struct{}),
		done:          make(chan struct{}),
	}
	in.table = bucket.NewTable(maxBucketCount, in.onTimeout, allocate)
	return in
}

// Table exposes the bucket table for stats/testing purposes.
func (in *Ingress) Table() *bucket.Table { return in.table }

// onTimeout is the NotifyFunc threaded into every bucket this Ingress
// creates. It never touches the table directly (spec §9) — it only hands
// the event to the ingress loop, which decides whether the bucket that
// fired is still the live one for its key.
func (in *Ingress) onTimeout(key string, b *bucket.Bucket, kind bucket.TimeoutKind) {
	select {
	case in.timeouts <- timeoutEvent{key: key, b: b, kind: kind}:
	case <-in.done:
	}
}

// Run starts the UDP reader goroutine and blocks, serially processing
// datagrams and timer fires, until Stop is called. Must be invoked from
// its own goroutine by the caller if the caller needs to do anything else.
func (in *Ingress) Run() {
	defer close(in.done)

	go in.readLoop()

	for {
		select {
		case ev := <-in.datagrams:
			in.handleDatagram(ev)
		case ev := <-in.timeouts:
			in.handleTimeout(ev)
		case <-in.stopRead:
			in.drainPending()
			return
		}
	}
}

// drainPending processes whatever is already queued before returning, so
// a Stop racing with in-flight reads doesn't silently drop counted bytes.
func (in *Ingress) drainPending() {
	for {
		select {
		case ev := <-in.datagrams:
			in.handleDatagram(ev)
		case ev := <-in.timeouts:
			in.handleTimeout(ev)
		default:
			return
		}
	}
}

// Stop unregisters the socket (spec §4.7 step a) and asks the loop to
// exit. Idempotent: a caller racing a shutdown path against a deferred
// cleanup may call it more than once.
func (in *Ingress) Stop() {
	in.stopOnce.Do(func() {
		in.conn.Close()
		close(in.stopRead)
	})
}

// Join blocks until Run has returned.
func (in *Ingress) Join() { <-in.done }

// ReadError returns the fatal read error that ended readLoop, if any.
func (in *Ingress) ReadError() error {
	select {
	case err := <-in.readerErr:
		return err
	default:
		return nil
	}
}

func (in *Ingress) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := in.conn.ReadFrom(buf)
		if err != nil {
			select {
			case in.readerErr <- errors.Wrap(err, "ingress: read"):
			default:
			}
			return
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		select {
		case in.datagrams <- datagramEvent{payload: payload, now: in.now()}:
		case <-in.done:
			return
		}
	}
}

// handleDatagram implements spec §4.5 steps 1-4, in order: the capacity
// gate runs before parsing so malformed and capacity-rejected datagrams
// stay distinctly counted.
func (in *Ingress) handleDatagram(ev datagramEvent) {
	nowSeconds := float64(ev.now.UnixNano()) / 1e9
	in.stats.AddBytesRead(nowSeconds, len(ev.payload))

	if in.table.Len()+1 == in.table.MaxCount() {
		in.stats.IncrDropped()
		return
	}

	in.stats.AddBytesProcessed(nowSeconds, len(ev.payload))

	sep := bytes.IndexByte(ev.payload, ';')
	if sep < 0 {
		return
	}
	key := string(ev.payload[:sep])
	value := ev.payload[sep:]

	if err := in.appendOrAdmit(key, value, ev.now); err != nil {
		return
	}
	in.stats.IncrMessagesProcessed(nowSeconds)
}

func (in *Ingress) appendOrAdmit(key string, value []byte, now time.Time) error {
	b, ok := in.table.Lookup(key)
	if !ok {
		created, err := in.table.Admit(key, now, in.maxBucketSize, in.idleTimeout, in.ttl)
		if err != nil {
			return err
		}
		b = created
	}

	flush, reason, err := b.Append(value)
	if err != nil {
		in.flush(key, b, reason)
		return err
	}
	if flush {
		in.flush(key, b, reason)
	}
	return nil
}

// handleTimeout reacts to an idle/TTL fire. The bucket is checked for
// identity against the table's current entry for its key: if it has
// already been replaced (a race between a size-triggered flush and a
// timer that was already in flight), the event is stale and ignored.
func (in *Ingress) handleTimeout(ev timeoutEvent) {
	current, ok := in.table.Lookup(ev.key)
	if !ok || current != ev.b {
		return
	}

	reason := bucket.ReasonMaxIdle
	if ev.kind == bucket.TimeoutTTL {
		reason = bucket.ReasonMaxAge
	}
	in.flush(ev.key, ev.b, reason)
}

// flush detaches b from the table and hands it to the writer, matching
// spec §4.2's flush() operation: stop timers, detach, enqueue, count.
func (in *Ingress) flush(key string, b *bucket.Bucket, reason bucket.Reason) {
	b.StopTimers()
	in.table.Detach(key)
	in.stats.IncrKill(reason)
	in.w.Push(b)
}

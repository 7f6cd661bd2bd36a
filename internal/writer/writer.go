// Package writer implements the aggregator's background consumer: a
// classic lock+condvar FIFO (spec §4.4) that streams closed buckets into
// an hour-rotated append-only CSV file. The streaming write itself
// reuses the teacher's (kcptun std/copy.go) preference for io.WriterTo
// over a generic buffered copy — here that's simply Bucket.WriteTo,
// which drains bytes.Buffer directly into the destination file.
package writer

import (
	"container/list"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/christianparpart/kollektor/internal/bucket"
)

// chunkHeader is written once to a newly created (or empty) chunk file,
// before any bucket record (spec §3, §6).
const chunkHeader = "first_seen;key;values"

// Clock lets tests control "now" without sleeping real hours.
type Clock func() int64

// Writer is the single background consumer described in spec §4.4. push
// is safe to call from any goroutine (the ingress loop, in practice);
// Run must only ever be driven by one goroutine.
type Writer struct {
	storagePath string
	now         Clock

	mu       sync.Mutex
	cond     *sync.Cond
	queue    *list.List
	stopping bool

	currentChunk int64
	file         *os.File

	onDiscard     func(*bucket.Bucket, error)
	onRotateError func(error)
	done          chan struct{}
}

// New constructs a writer rooted at storagePath. onDiscard, if non-nil, is
// called (from the writer goroutine) whenever a bucket is dropped without
// being fully written — an unhealthy bucket or a write failure (spec §7).
// onRotateError, if non-nil, is called when a chunk file fails to open;
// the head-of-queue bucket is left in place for the next wake either way.
func New(storagePath string, now Clock, onDiscard func(*bucket.Bucket, error), onRotateError func(error)) *Writer {
	w := &Writer{
		storagePath:   storagePath,
		now:           now,
		queue:         list.New(),
		currentChunk:  -1,
		onDiscard:     onDiscard,
		onRotateError: onRotateError,
		done:          make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Push enqueues a flushed bucket. Locks only across the enqueue, then
// signals (spec §5 "Handoff discipline").
func (w *Writer) Push(b *bucket.Bucket) {
	w.mu.Lock()
	w.queue.PushBack(b)
	w.mu.Unlock()
	w.cond.Signal()
}

// Stop requests an orderly shutdown: the consumer finishes any bucket
// mid-write but will not block waiting for new ones.
func (w *Writer) Stop() {
	w.mu.Lock()
	w.stopping = true
	w.mu.Unlock()
	w.cond.Broadcast()
}

// Run drains the queue until Stop is called and the queue empties. Meant
// to be launched with `go w.Run()`.
func (w *Writer) Run() {
	defer close(w.done)
	defer w.closeFile()

	for {
		w.mu.Lock()
		for w.queue.Len() == 0 && !w.stopping {
			w.cond.Wait()
		}
		if w.queue.Len() == 0 && w.stopping {
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()

		w.drainOnce()
	}
}

// drainOnce processes every bucket currently in the queue, mirroring
// spec §4.4's "on wake, while there exist buckets in the queue" loop.
func (w *Writer) drainOnce() {
	for {
		w.mu.Lock()
		front := w.queue.Front()
		if front == nil {
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()

		b := front.Value.(*bucket.Bucket)

		if err := w.rotate(); err != nil {
			if w.onRotateError != nil {
				w.onRotateError(err)
			}
			// Leave the bucket at the head; retry on the next wake.
			return
		}

		if !b.Healthy() {
			w.popDiscard(front, b, nil)
			continue
		}

		n, err := b.WriteTo(w.file)
		if err != nil || n == 0 && b.Len() > 0 {
			w.popDiscard(front, b, err)
			continue
		}

		w.popDone(front)
	}
}

func (w *Writer) popDone(e *list.Element) {
	w.mu.Lock()
	w.queue.Remove(e)
	w.mu.Unlock()
}

func (w *Writer) popDiscard(e *list.Element, b *bucket.Bucket, err error) {
	w.mu.Lock()
	w.queue.Remove(e)
	w.mu.Unlock()
	if w.onDiscard != nil {
		w.onDiscard(b, err)
	}
}

// rotate ensures the open file matches the current hour chunk (spec §4.4
// "Rotation"). On open failure the old file (if any) stays closed and the
// caller must retry on the next wake — it must not touch the queue.
func (w *Writer) rotate() error {
	chunkID := w.now() / 3600
	if w.file != nil && chunkID == w.currentChunk {
		return nil
	}

	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	path := filepath.Join(w.storagePath, fmt.Sprintf("%d.csv", chunkID))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0664)
	if err != nil {
		return errors.Wrapf(err, "writer: open chunk %s", path)
	}

	stat, statErr := f.Stat()
	needsHeader := statErr == nil && stat.Size() == 0

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return errors.Wrap(err, "writer: seek to end")
	}

	if needsHeader {
		if _, err := f.WriteString(chunkHeader); err != nil {
			f.Close()
			return errors.Wrap(err, "writer: write header")
		}
	}

	w.file = f
	w.currentChunk = chunkID
	return nil
}

// Join blocks until Run has returned.
func (w *Writer) Join() {
	<-w.done
}

func (w *Writer) closeFile() {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
}

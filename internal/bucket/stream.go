package bucket

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// ErrResourceUnavailable is returned by a Stream allocator that cannot back
// a new bucket (e.g. the process is out of the descriptors or memory a
// particular Stream implementation needs).
var ErrResourceUnavailable = errors.New("bucket: resource unavailable")

// Stream is the bucket's append-only backing buffer. The contract (spec
// §4.2) is narrow on purpose: bytes appended before enqueue are the bytes
// the writer emits, in order, exactly once, and the writer should be able
// to move them without re-copying into an intermediate string.
//
// kcptun's std.Copy (std/copy.go) prefers io.WriterTo/io.ReaderFrom over a
// generic buffered copy to avoid an extra allocation; Stream mirrors that
// by requiring WriteTo directly instead of leaving it to a type-assertion.
type Stream interface {
	io.Writer
	io.WriterTo
	Len() int
}

// bufferStream is the in-memory substitute for the original's per-bucket
// OS pipe (spec §4.2 rationale): one extra copy on flush, no pipe-pair fd
// cost. bytes.Buffer.WriteTo hands everything to a single Write and reports
// io.ErrShortWrite if that Write is partial; the writer's *os.File keeps
// writing internally until all bytes are out or an error occurs, which
// covers the retry-on-partial-transfer behavior (spec §4.4), so no extra
// bookkeeping is needed here.
type bufferStream struct {
	buf bytes.Buffer
}

func newBufferStream() (Stream, error) {
	return &bufferStream{}, nil
}

func (s *bufferStream) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *bufferStream) WriteTo(w io.Writer) (int64, error) { return s.buf.WriteTo(w) }
func (s *bufferStream) Len() int { return s.buf.Len() }

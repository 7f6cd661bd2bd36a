package stats

import (
	"fmt"
	"sync/atomic"

	"github.com/christianparpart/kollektor/internal/bucket"
)

// rateWindow mirrors the original's SNMP-style reporting cadence: an
// 8-second moving average, a small power of two (spec §4.1).
const rateWindow = 8

// Stats collects every counter spec §6/§8 requires SIGUSR1 and the
// testable-property checks to observe. The monotonic counters are
// atomics so the signal handler goroutine can sample them safely; the
// moving-average rate counters are touched only from the ingress
// goroutine and read racily by the dump path, exactly as spec §5
// ("Shared resources") permits.
type Stats struct {
	droppedMessages   atomic.Int64
	messagesProcessed atomic.Int64
	bytesRead         atomic.Int64
	bytesProcessed    atomic.Int64

	killsMaxIdle atomic.Int64
	killsMaxAge  atomic.Int64
	killsMaxSize atomic.Int64
	killsSysErr  atomic.Int64

	bytesReadRate      *PerformanceCounter[float64]
	bytesProcessedRate *PerformanceCounter[float64]
	messagesRate       *PerformanceCounter[float64]
}

// New constructs a zeroed Stats with the standard rate-counter window.
func New() *Stats {
	return &Stats{
		bytesReadRate:      NewPerformanceCounter[float64](rateWindow),
		bytesProcessedRate: NewPerformanceCounter[float64](rateWindow),
		messagesRate:       NewPerformanceCounter[float64](rateWindow),
	}
}

// IncrDropped records a capacity-rejected datagram (spec §8 invariant 5).
func (s *Stats) IncrDropped() { s.droppedMessages.Add(1) }

// DroppedMessages returns the running total of capacity-rejected datagrams.
func (s *Stats) DroppedMessages() int64 { return s.droppedMessages.Load() }

// AddBytesRead records every received datagram's length, successful or not.
func (s *Stats) AddBytesRead(now float64, n int) {
	s.bytesRead.Add(int64(n))
	s.bytesReadRate.Update(now, float64(n))
}

// AddBytesProcessed records a datagram's length once past the capacity gate.
func (s *Stats) AddBytesProcessed(now float64, n int) {
	s.bytesProcessed.Add(int64(n))
	s.bytesProcessedRate.Update(now, float64(n))
}

// IncrMessagesProcessed records one successful append (new or existing bucket).
func (s *Stats) IncrMessagesProcessed(now float64) {
	s.messagesProcessed.Add(1)
	s.messagesRate.Update(now, 1)
}

// IncrKill records a bucket flush by reason, matching the kills_* counters
// spec §6's SIGUSR1 summary enumerates.
func (s *Stats) IncrKill(reason bucket.Reason) {
	switch reason {
	case bucket.ReasonMaxIdle:
		s.killsMaxIdle.Add(1)
	case bucket.ReasonMaxAge:
		s.killsMaxAge.Add(1)
	case bucket.ReasonMaxSize:
		s.killsMaxSize.Add(1)
	case bucket.ReasonSysError:
		s.killsSysErr.Add(1)
	}
}

// Summary renders the single-line statistics dump spec §6 assigns to
// SIGUSR1: dropped, active, kills by idle/ttl/size/syserr, bytes-read/sec,
// bytes-processed/sec, messages/sec.
func (s *Stats) Summary(active int) string {
	return fmt.Sprintf(
		"dropped=%d active=%d kills{idle=%d ttl=%d size=%d syserr=%d} "+
			"bytes_read/s=%.1f bytes_processed/s=%.1f messages/s=%.1f",
		s.droppedMessages.Load(), active,
		s.killsMaxIdle.Load(), s.killsMaxAge.Load(), s.killsMaxSize.Load(), s.killsSysErr.Load(),
		s.bytesReadRate.Average(), s.bytesProcessedRate.Average(), s.messagesRate.Average(),
	)
}

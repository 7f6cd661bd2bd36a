package stats

import (
	"strings"
	"testing"

	"github.com/christianparpart/kollektor/internal/bucket"
)

func TestCountersAccumulate(t *testing.T) {
	s := New()

	s.IncrDropped()
	s.IncrDropped()
	if s.DroppedMessages() != 2 {
		t.Errorf("DroppedMessages() = %d, want 2", s.DroppedMessages())
	}

	s.AddBytesRead(0, 10)
	s.AddBytesProcessed(0, 8)
	s.IncrMessagesProcessed(0)

	s.IncrKill(bucket.ReasonMaxIdle)
	s.IncrKill(bucket.ReasonMaxAge)
	s.IncrKill(bucket.ReasonMaxSize)
	s.IncrKill(bucket.ReasonSysError)

	summary := s.Summary(3)
	for _, want := range []string{"dropped=2", "active=3", "idle=1", "ttl=1", "size=1", "syserr=1"} {
		if !strings.Contains(summary, want) {
			t.Errorf("Summary() = %q, missing %q", summary, want)
		}
	}
}

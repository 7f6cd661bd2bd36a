package bucket

import (
	"bytes"
	"testing"
	"time"
)

func TestNewWritesHeader(t *testing.T) {
	now := time.Unix(1000, 0)
	b, err := New("k", now, 50, time.Minute, time.Hour, func(string, *Bucket, TimeoutKind) {}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.StopTimers()

	if !b.Healthy() {
		t.Fatal("expected healthy bucket")
	}
	if b.Key() != "k" {
		t.Errorf("Key() = %q, want k", b.Key())
	}
	if !b.FirstSeen().Equal(now) {
		t.Errorf("FirstSeen() = %v, want %v", b.FirstSeen(), now)
	}

	var buf bytes.Buffer
	n, err := b.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if n == 0 {
		t.Fatal("expected header bytes written")
	}
	if got := buf.String(); got[0] != '\n' || !bytes.Contains(buf.Bytes(), []byte(";k")) {
		t.Errorf("header = %q, want leading newline and key", got)
	}
}

func TestAppendFlushesAtMaxSize(t *testing.T) {
	now := time.Unix(0, 0)
	b, err := New("k", now, 2, time.Hour, time.Hour, func(string, *Bucket, TimeoutKind) {}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.StopTimers()

	flush, _, err := b.Append([]byte(";a"))
	if err != nil || flush {
		t.Fatalf("first append: flush=%v err=%v, want flush=false", flush, err)
	}
	if b.ItemCount() != 1 {
		t.Errorf("ItemCount() = %d, want 1", b.ItemCount())
	}

	flush, reason, err := b.Append([]byte(";b"))
	if err != nil {
		t.Fatal(err)
	}
	if !flush || reason != ReasonMaxSize {
		t.Errorf("second append: flush=%v reason=%v, want flush=true reason=MaxSize", flush, reason)
	}
	if b.ItemCount() != 2 {
		t.Errorf("ItemCount() = %d, want 2", b.ItemCount())
	}
}

func TestAppendEmptyValueStillIncrementsCount(t *testing.T) {
	b, err := New("k", time.Unix(0, 0), 50, time.Hour, time.Hour, func(string, *Bucket, TimeoutKind) {}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.StopTimers()

	// Datagram whose ";" is the last byte: value is just the separator.
	if _, _, err := b.Append([]byte(";")); err != nil {
		t.Fatal(err)
	}
	if b.ItemCount() != 1 {
		t.Errorf("ItemCount() = %d, want 1", b.ItemCount())
	}
}

func TestIdleTimeoutFires(t *testing.T) {
	fired := make(chan TimeoutKind, 1)
	notify := func(key string, b *Bucket, kind TimeoutKind) { fired <- kind }

	b, err := New("k", time.Unix(0, 0), 50, 10*time.Millisecond, time.Hour, notify, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.StopTimers()

	select {
	case kind := <-fired:
		if kind != TimeoutIdle {
			t.Errorf("kind = %v, want TimeoutIdle", kind)
		}
	case <-time.After(time.Second):
		t.Fatal("idle timer never fired")
	}
}

func TestAppendRearmsIdleButNotTTL(t *testing.T) {
	now := time.Unix(0, 0)
	fired := make(chan TimeoutKind, 2)
	notify := func(_ string, _ *Bucket, kind TimeoutKind) { fired <- kind }
	b, err := New("k", now, 50, 100*time.Millisecond, 130*time.Millisecond, notify, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.StopTimers()

	time.Sleep(50 * time.Millisecond)
	if _, _, err := b.Append([]byte(";x")); err != nil {
		t.Fatal(err)
	}
	// The append pushes the idle deadline from 100ms to 150ms after
	// creation; the TTL stays at 130ms. At ~115ms neither may have fired,
	// even though the original idle deadline has already passed.
	time.Sleep(65 * time.Millisecond)
	if b.ItemCount() != 1 {
		t.Fatal("unexpected extra mutation from a racing timer")
	}
	select {
	case kind := <-fired:
		t.Fatalf("timer %v fired before the rearmed idle deadline", kind)
	default:
	}

	// The TTL was not rearmed, so it fires before the rearmed idle timer.
	select {
	case kind := <-fired:
		if kind != TimeoutTTL {
			t.Errorf("first fire = %v, want TimeoutTTL", kind)
		}
	case <-time.After(time.Second):
		t.Fatal("TTL timer never fired")
	}
}

func TestBucketAllocFailIsUnhealthy(t *testing.T) {
	failingAllocate := func() (Stream, error) { return nil, ErrResourceUnavailable }
	b, err := New("k", time.Unix(0, 0), 50, time.Hour, time.Hour, func(string, *Bucket, TimeoutKind) {}, failingAllocate)
	if err == nil {
		t.Fatal("expected error from failing allocator")
	}
	if b.Healthy() {
		t.Fatal("bucket allocated with a failing allocator must be unhealthy")
	}
}

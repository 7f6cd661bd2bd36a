package daemon

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/christianparpart/kollektor/internal/config"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.LocalAddr().(*net.UDPAddr).Port
}

func TestDaemonEndToEndSizeFlush(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)

	cfg := config.Default()
	cfg.Address = "127.0.0.1"
	cfg.Port = port
	cfg.StoragePath = dir
	cfg.MaxBucketSize = 3
	cfg.MaxBucketIdle = 60
	cfg.MaxBucketTTL = 600

	d, err := Setup(cfg)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	go d.Run()
	defer d.Shutdown()

	conn, err := net.Dial("udp", net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	for _, msg := range []string{"a;x", "a;y", "a;z"} {
		if _, err := conn.Write([]byte(msg)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.ActiveBuckets() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if d.ActiveBuckets() != 0 {
		t.Fatal("bucket a never flushed")
	}

	d.Shutdown()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one chunk file, got %d", len(entries))
	}

	contents, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}

	const wantPrefix = "first_seen;key;values\n"
	if len(contents) < len(wantPrefix) || string(contents[:len(wantPrefix)]) != wantPrefix {
		t.Errorf("chunk file missing header, got: %q", string(contents))
	}
	if want := ";a;x;y;z"; !containsSuffix(string(contents), want) {
		t.Errorf("chunk file = %q, want suffix %q", string(contents), want)
	}
}

func containsSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

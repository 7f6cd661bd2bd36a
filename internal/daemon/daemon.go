// Package daemon wires the governor, bucket table, writer, and ingress
// loop together into the single running server process (spec §4.7).
package daemon

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/christianparpart/kollektor/internal/config"
	"github.com/christianparpart/kollektor/internal/governor"
	"github.com/christianparpart/kollektor/internal/ingress"
	"github.com/christianparpart/kollektor/internal/stats"
	"github.com/christianparpart/kollektor/internal/writer"
)

// Daemon owns every long-lived collaborator of a running server.
type Daemon struct {
	cfg    config.Config
	Stats  *stats.Stats
	writer *writer.Writer
	ingr   *ingress.Ingress
}

// Setup applies the resource governor (spec §4.6, must run before the
// listen socket is created), binds the UDP socket, and constructs the
// writer and ingress collaborators. It does not start their goroutines.
func Setup(cfg config.Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	adjusted, err := governor.Apply(cfg.MaxBucketCount)
	if err != nil {
		return nil, errors.Wrap(err, "daemon: resource governor")
	}
	cfg.MaxBucketCount = adjusted

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(cfg.Address), Port: cfg.Port})
	if err != nil {
		return nil, errors.Wrapf(err, "daemon: listen udp %s:%d", cfg.Address, cfg.Port)
	}

	st := stats.New()

	w := writer.New(cfg.StoragePath, wallClockHour, nil, nil)

	in := ingress.New(
		conn,
		cfg.MaxBucketCount,
		cfg.MaxBucketSize,
		time.Duration(cfg.MaxBucketIdle)*time.Second,
		time.Duration(cfg.MaxBucketTTL)*time.Second,
		w,
		st,
		time.Now,
		nil,
	)

	return &Daemon{cfg: cfg, Stats: st, writer: w, ingr: in}, nil
}

// wallClockHour is the Clock the writer uses to decide chunk rotation.
func wallClockHour() int64 { return time.Now().Unix() }

// Run starts the writer and ingress loops and blocks until Shutdown is
// called from another goroutine (typically the signal handler).
func (d *Daemon) Run() {
	go d.writer.Run()
	d.ingr.Run()
}

// ActiveBuckets reports the number of currently open buckets, for the
// SIGUSR1 statistics summary.
func (d *Daemon) ActiveBuckets() int { return d.ingr.Table().Len() }

// Shutdown implements spec §4.7: unregister and close the socket, stop
// and join the writer, then let the bucket table (with it) be released.
// Open buckets at shutdown are not flushed — an accepted non-goal.
func (d *Daemon) Shutdown() {
	d.ingr.Stop()
	d.ingr.Join()

	d.writer.Stop()
	d.writer.Join()
}

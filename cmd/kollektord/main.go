package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/christianparpart/kollektor/internal/config"
	"github.com/christianparpart/kollektor/internal/daemon"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "kollektord"
	app.Usage = "UDP-fed event aggregator"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "address, a",
			Value: "0.0.0.0",
			Usage: "bind address",
		},
		cli.IntFlag{
			Name:  "port, p",
			Value: 2323,
			Usage: "UDP port",
		},
		cli.StringFlag{
			Name:  "storage-path, s",
			Value: ".",
			Usage: "output directory for hour-rotated chunk files",
		},
		cli.IntFlag{
			Name:  "max-bucket-count, c",
			Value: config.DefaultMaxBucketCount,
			Usage: "capacity of the bucket table, derived from a 1024 fd budget by default",
		},
		cli.IntFlag{
			Name:  "max-bucket-size, n",
			Value: 50,
			Usage: "items per bucket before a size-triggered flush",
		},
		cli.IntFlag{
			Name:  "max-bucket-idle, i",
			Value: 10,
			Usage: "seconds of inactivity before an idle-triggered flush",
		},
		cli.IntFlag{
			Name:  "max-bucket-ttl, t",
			Value: 60,
			Usage: "hard seconds-since-creation TTL before a flush, regardless of activity",
		},
		cli.StringFlag{
			Name:  "config",
			Value: "",
			Usage: "JSON config file overlaying the flags above",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := config.Default()
	cfg.Address = c.String("address")
	cfg.Port = c.Int("port")
	cfg.StoragePath = c.String("storage-path")
	cfg.MaxBucketCount = c.Int("max-bucket-count")
	cfg.MaxBucketSize = c.Int("max-bucket-size")
	cfg.MaxBucketIdle = c.Int("max-bucket-idle")
	cfg.MaxBucketTTL = c.Int("max-bucket-ttl")

	if path := c.String("config"); path != "" {
		if err := config.LoadJSONOverlay(&cfg, path); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
	}

	log.Println("version:", VERSION)
	log.Println("address:", cfg.Address)
	log.Println("port:", cfg.Port)
	log.Println("storage-path:", cfg.StoragePath)
	log.Println("max-bucket-count:", cfg.MaxBucketCount)
	log.Println("max-bucket-size:", cfg.MaxBucketSize)
	log.Println("max-bucket-idle:", cfg.MaxBucketIdle)
	log.Println("max-bucket-ttl:", cfg.MaxBucketTTL)

	d, err := daemon.Setup(cfg)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	done := make(chan struct{})
	go func() {
		d.Run()
		close(done)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1, syscall.SIGTERM, syscall.SIGINT)

	for {
		switch s := <-sig; s {
		case syscall.SIGUSR1:
			log.Println(d.Stats.Summary(d.ActiveBuckets()))
		case syscall.SIGTERM, syscall.SIGINT:
			d.Shutdown()
			<-done
			return nil
		default:
			return fmt.Errorf("unexpected signal: %v", s)
		}
	}
}

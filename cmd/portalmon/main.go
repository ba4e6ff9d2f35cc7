// command portalmon is the real-time detection core of a radiological
// portal monitor: it loads configuration, wires every component, and
// blocks until a shutdown signal arrives. The supervision HTTP API,
// notification, and reporting layers are not part of this binary, and
// it exposes no interface to other processes; in-process code reads
// the core's state through System.Snapshot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"radport.dev/config"
	"radport.dev/system"
)

var (
	configPath = flag.String("config", "/etc/radport/portal.yaml", "path to the YAML configuration store")
	devMode    = flag.Bool("dev", false, "parse ad hoc flag overrides instead of -config (development only)")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "portalmon: %v\n", err)
		os.Exit(2)
	}
}

func run() error {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s := system.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("portalmon: shutdown signal received")
		cancel()
	}()

	log.Println("portalmon: starting")
	s.Run(ctx)
	log.Println("portalmon: stopped")
	return nil
}

func loadConfig() (*config.Config, error) {
	if *devMode {
		// A fresh FlagSet, not flag.CommandLine: -config/-dev were
		// already parsed above, and LoadFlags defines its own
		// overlapping-free set of override flags from the remaining
		// positional arguments.
		fs := flag.NewFlagSet("portalmon-dev", flag.ContinueOnError)
		return config.LoadFlags(fs, flag.Args())
	}
	return config.LoadYAML(*configPath)
}

// chatd is the central chat server. It accepts framed TCP connections,
// relays chat between them, answers slash-commands, and evicts silent
// peers. It never dials out.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	parley "github.com/ironfang-ltd/go-parley"
)

func main() {
	name := flag.String("name", "ChatServer", "server display name")
	listen := flag.String("listen", "0.0.0.0:8000", "listen address")
	admin := flag.String("admin", "", "admin HTTP address (empty disables)")
	capacity := flag.Int("capacity", 100, "maximum simultaneous connections")
	configPath := flag.String("config", "", "optional YAML config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	opts := []parley.Option{
		parley.WithListenAddr(*listen),
		parley.WithCapacity(*capacity),
	}
	if *admin != "" {
		opts = append(opts, parley.WithAdminAddr(*admin))
	}

	level := slog.LevelInfo
	if *configPath != "" {
		cfg, err := parley.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if cfg.Name != "" {
			*name = cfg.Name
		}
		level = parley.ParseLevel(cfg.LogLevel)
		opts = append(opts, cfg.Options()...)
	}
	if *debug {
		level = slog.LevelDebug
	}
	parley.InitLogger(level)

	node, err := parley.NewNode(*name, opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	node.Start()
	slog.Info("chat server running", "name", node.Name(), "addr", node.Addr())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	slog.Info("shutting down")
	done := make(chan struct{})
	go func() {
		node.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		slog.Error("shutdown timed out")
	}
}

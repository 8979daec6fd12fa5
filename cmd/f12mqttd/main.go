// Command f12mqttd is the process entrypoint: it parses flags, builds an
// Engine in the requested mode, and runs it until SIGINT/SIGTERM, per
// spec.md §6.4.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/heytcass/f12mqtt/engine"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath   = flag.String("config", "", "path to config.yaml")
		mode         = flag.String("mode", "live", "live, replay, or archive")
		recordingDir = flag.String("recording-dir", "", "recorded session directory (replay mode)")
		httpAddr     = flag.String("http-addr", ":8080", "HTTP+WebSocket listen address")
		speed        = flag.Float64("speed", 1, "initial playback speed multiplier (replay/archive mode)")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	e, err := engine.New(ctx, engine.Options{
		ConfigPath:   *configPath,
		Mode:         engine.Mode(*mode),
		RecordingDir: *recordingDir,
		HTTPAddr:     *httpAddr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "f12mqttd: startup failed: %v\n", err)
		return 1
	}

	if engine.Mode(*mode) != engine.ModeLive {
		if err := e.LoadReplay(ctx, *speed); err != nil {
			fmt.Fprintf(os.Stderr, "f12mqttd: failed to load replay source: %v\n", err)
			return 1
		}
		e.Controller().SetSpeed(*speed)
		e.Controller().Play()
	}

	if err := e.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "f12mqttd: %v\n", err)
		return 1
	}
	return 0
}

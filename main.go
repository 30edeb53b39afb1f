// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"passthru/cmd"
	"passthru/internal/audio"
	"passthru/internal/catalog"
	"passthru/internal/config"
	"passthru/internal/engine"
	"passthru/internal/log"
	"passthru/internal/permission"
	"passthru/internal/transport"
	"passthru/internal/transport/udp"
	"passthru/internal/tui"
	"passthru/pkg/build"

	"golang.org/x/sync/errgroup"
)

// main is the entry point for the passthrough application.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Read build information and parse the command line
//   - Configure logging and runtime settings
//   - Initialize PortAudio
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Start the routing engine and its control loop
//   - Start telemetry transports
//   - Run the terminal UI, or wait for a signal when headless
//
// 3. Shutdown Phase (Cold Path):
//   - Stop telemetry and close transports
//   - Tear down the audio graph and release PortAudio
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		log.Debugf("build: development build: %v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Help and version were already printed.
	if opts.Command == "" {
		return
	}

	closeLog := configureLogging(opts)
	defer closeLog()

	// One thread for the audio callback, one for control and UI.
	runtime.GOMAXPROCS(2)

	if err := audio.Initialize(); err != nil {
		log.Fatal(err)
	}
	defer audio.Terminate()

	pa := audio.NewPortAudio()
	cat := catalog.New(pa, catalog.WithPollInterval(opts.Config.Control.CatalogPollInterval))

	switch opts.Command {
	case cmd.CommandList:
		err = cmd.PrintEndpoints(os.Stdout, cat)
	case cmd.CommandRun:
		err = run(opts, pa, cat)
	}
	if err != nil {
		log.Errorf("%v", err)
		if !opts.Headless {
			fmt.Fprintln(os.Stderr, err)
		}
		closeLog()
		audio.Terminate()
		os.Exit(1)
	}
}

// configureLogging applies the configured level. The terminal UI owns the
// screen, so its logs go to a file instead.
func configureLogging(opts *cmd.Options) (closeFn func()) {
	cfg := opts.Config
	level, ok := log.ParseLevel(cfg.LogLevel)
	if !ok {
		level = log.LevelInfo
	}
	if cfg.Debug {
		level = log.LevelDebug
	}
	log.SetLevel(level)

	if opts.Command != cmd.CommandRun || opts.Headless {
		return func() {}
	}

	path := filepath.Join(os.TempDir(), "passthru.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		log.SetOutput(io.Discard)
		return func() {}
	}
	log.SetOutput(f)
	return func() { f.Close() }
}

func run(opts *cmd.Options, pa *audio.PortAudio, cat *catalog.Catalog) error {
	cfg := opts.Config

	input, err := cmd.FindEndpoint(cat.ListInputs(), cfg.Audio.InputDevice)
	if err != nil {
		return fmt.Errorf("input device: %w", err)
	}
	output, err := cmd.FindEndpoint(cat.ListOutputs(), cfg.Audio.OutputDevice)
	if err != nil {
		return fmt.Errorf("output device: %w", err)
	}

	perm := permission.NewStatic(permission.Undetermined)
	granted := make(chan permission.Status, 1)
	cancelRequest := perm.Request(func(s permission.Status) { granted <- s })
	defer cancelRequest()
	log.Infof("microphone permission: %s", <-granted)

	restartDelay := cfg.Control.RestartDelay
	if restartDelay == 0 {
		restartDelay = -1 // Explicit zero disables the pause
	}

	eng, err := engine.New(engine.Options{
		Catalog:      cat,
		Devices:      pa,
		Backend:      pa,
		Permission:   perm,
		Config:       cfg.Engine.Config,
		Input:        input,
		Output:       output,
		BufferFrames: cfg.Audio.FramesPerBuffer,
		Channels:     cfg.Audio.Channels,
		SampleRate:   cfg.Audio.SampleRate,
		RestartDelay: restartDelay,
	})
	if err != nil {
		return err
	}
	if err := eng.Start(); err != nil {
		return err
	}
	defer eng.Close()

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	publisher, err := startTelemetry(g, cfg.Transport, cfg.Control, eng)
	if err != nil {
		return err
	}

	if cfg.Engine.StartRunning {
		if err := eng.SetDesiredRunning(true); err != nil {
			log.Warnf("passthrough did not start: %v", err)
		}
	}

	if opts.Headless {
		cancel := eng.Observe(func(s engine.Status) {
			log.With(log.Fields{
				"input":   s.Input.String(),
				"output":  s.Output.String(),
				"latency": s.LatencyMs,
			}).Infof("engine %s", s.State)
		})
		defer cancel()
		g.Go(func() error {
			<-ctx.Done()
			return nil
		})
	} else {
		g.Go(func() error {
			defer stop()
			return tui.Run(ctx, eng, cat, eng.Observe)
		})
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	g.Go(func() error {
		<-ctx.Done()
		if publisher == nil {
			return nil
		}
		return publisher.Close()
	})

	return g.Wait()
}

// startTelemetry creates the configured transports and starts publishing
// frames. It returns nil when no transport is enabled.
func startTelemetry(g *errgroup.Group, tc config.TransportConfig, cc config.ControlConfig, eng *engine.Engine) (*transport.Publisher, error) {
	var ts []transport.Transport

	if tc.LogFrames {
		ts = append(ts, transport.NewLoggingTransport())
	}
	if tc.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(tc.WebSocketAddress)
		ts = append(ts, ws)
		g.Go(ws.ListenAndServe)
	}
	if tc.UDPEnabled {
		u, err := udp.NewTransport(tc.UDPTargetAddress)
		if err != nil {
			for _, t := range ts {
				t.Close()
			}
			return nil, err
		}
		ts = append(ts, u)
	}
	if len(ts) == 0 {
		return nil, nil
	}

	p, err := transport.NewPublisher(cc.TelemetryInterval, eng, ts...)
	if err != nil {
		return nil, err
	}
	p.Start()
	log.Infof("telemetry: %d transport(s) every %s", len(ts), cc.TelemetryInterval)
	return p, nil
}

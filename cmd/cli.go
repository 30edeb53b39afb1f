// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"passthru/internal/config"
	"passthru/pkg/build"

	"github.com/spf13/cobra"
)

// Commands understood by main.
const (
	CommandRun  = "run"
	CommandList = "list"
)

// Options is the result of parsing the command line.
type Options struct {
	Command  string // Empty when cobra already handled the invocation (help, version)
	Headless bool
	Config   *config.Config
}

// flagValues holds the raw flag values; only flags the user set are
// applied on top of the loaded configuration.
type flagValues struct {
	configPath string

	input         string
	output        string
	sampleRate    float64
	channels      int
	frames        int
	gain          float32
	gate          bool
	gateThreshold float32
	metering      bool
	start         bool

	websocket string
	udp       string
	verbose   bool
}

// ParseArgs parses args (without the program name) and loads the
// configuration the chosen command runs with.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{}
	var fv flagValues

	load := func(cmd *cobra.Command) error {
		cfg, err := config.LoadConfig(fv.configPath)
		if err != nil {
			return err
		}
		if err := fv.apply(cmd, cfg); err != nil {
			return err
		}
		options.Config = cfg
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandRun
			return load(cmd)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List audio endpoints and whether they are safe outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandList
			return load(cmd)
		},
	}
	rootCmd.AddCommand(listCmd)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&fv.configPath, "config", "C", "",
		"Path to a YAML config file. Default searches ./passthru.yaml, ./config.yaml and the user config dir.")

	// Audio Device Configuration
	flags.StringVarP(&fv.input, "input", "i", "",
		"Input endpoint name or ID. Use 'list' to see available endpoints.")
	flags.StringVarP(&fv.output, "output", "o", "",
		"Output endpoint name or ID. Built-in speakers are refused.")
	flags.Float64VarP(&fv.sampleRate, "sample-rate", "s", 0,
		"Sample rate, measured in Hertz (Hz). 0 uses the device default")
	flags.IntVarP(&fv.channels, "channels", "c", 0,
		"Number of channels (0 uses what both endpoints support)")
	flags.IntVarP(&fv.frames, "frames-per-buffer", "b", 0,
		"The number of frames per buffer, rounded up to a power of two (affects latency)")

	// Engine Configuration
	flags.Float32Var(&fv.gain, "gain", 0, "Output gain, 0.0 to 2.0")
	flags.BoolVar(&fv.gate, "gate", false, "Enable the noise gate")
	flags.Float32Var(&fv.gateThreshold, "gate-threshold", 0, "Noise gate RMS threshold, 0.0 to 0.1")
	flags.BoolVar(&fv.metering, "metering", true, "Enable the level meter")
	flags.BoolVarP(&fv.start, "start", "r", false, "Start passthrough immediately")

	// Telemetry Configuration
	flags.StringVar(&fv.websocket, "ws", "", "Serve telemetry frames over WebSocket on host:port")
	flags.StringVar(&fv.udp, "udp", "", "Send binary telemetry frames to host:port")

	// Debug Configuration
	flags.BoolVarP(&fv.verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.Flags().BoolVar(&options.Headless, "headless", false,
		"Run without the terminal UI until interrupted")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}

// apply copies every flag the user set into cfg and validates the result.
func (fv *flagValues) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	if changed("input") {
		cfg.Audio.InputDevice = fv.input
	}
	if changed("output") {
		cfg.Audio.OutputDevice = fv.output
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = fv.sampleRate
	}
	if changed("channels") {
		cfg.Audio.Channels = fv.channels
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = fv.frames
	}
	if changed("gain") {
		cfg.Engine.Gain = fv.gain
	}
	if changed("gate") {
		cfg.Engine.GateEnabled = fv.gate
	}
	if changed("gate-threshold") {
		cfg.Engine.GateThreshold = fv.gateThreshold
	}
	if changed("metering") {
		cfg.Engine.MeteringEnabled = fv.metering
	}
	if changed("start") {
		cfg.Engine.StartRunning = fv.start
	}
	if changed("ws") {
		cfg.Transport.WebSocketEnabled = fv.websocket != ""
		cfg.Transport.WebSocketAddress = fv.websocket
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = fv.udp != ""
		cfg.Transport.UDPTargetAddress = fv.udp
	}
	if changed("verbose") {
		cfg.Debug = fv.verbose
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

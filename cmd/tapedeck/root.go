package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/tapedeck/internal/config"
	"github.com/GriffinCanCode/tapedeck/internal/logging"
)

var (
	cfg       = config.Load()
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "tapedeck",
	Short:         "Record a playlist from system audio, one file per track.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		applyFlags(cmd, cfg)
		closer, err := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
		if err != nil {
			return err
		}
		logCloser = closer
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("playlist", cfg.Playlist, "extended M3U playlist to record")
	f.String("output", cfg.OutputDir, "directory for recorded tracks")
	f.String("container", cfg.Container, "raw recording container: wav or raw")
	f.String("device", cfg.CaptureDevice, "capture device name (default: first loopback device)")
	f.String("log-level", cfg.LogLevel, "debug, info, warn or error")
	f.String("log-file", cfg.LogFile, "also write logs to this rotating file")
	f.Bool("no-encode", !cfg.EncodeEnabled, "keep raw recordings, skip MP3 encoding")
	f.Bool("keep-raw", cfg.KeepRaw, "keep raw recordings after encoding")

	rootCmd.AddCommand(recordCmd, serveCmd, devicesCmd)
}

// applyFlags copies explicitly set flags over environment configuration.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("playlist", &c.Playlist)
	str("output", &c.OutputDir)
	str("container", &c.Container)
	str("device", &c.CaptureDevice)
	str("log-level", &c.LogLevel)
	str("log-file", &c.LogFile)
	str("http", &c.HTTPAddr)
	str("health", &c.HealthAddr)

	if flags.Changed("no-encode") {
		noEncode, _ := flags.GetBool("no-encode")
		c.EncodeEnabled = !noEncode
	}
	if flags.Changed("keep-raw") {
		c.KeepRaw, _ = flags.GetBool("keep-raw")
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

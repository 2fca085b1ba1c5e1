package main

import (
	"io"
	"log/slog"

	"github.com/narvanalabs/qrscan/pkg/config"
	"github.com/narvanalabs/qrscan/pkg/logger"
	"github.com/spf13/cobra"
)

// globalFlags override environment configuration for every subcommand.
type globalFlags struct {
	captureRoot  string
	deviceClass  string
	userAgent    string
	profilesFile string
	logLevel     string
	logFormat    string
	cachePerm    bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "qrscan",
		Short: "QR and barcode scanner service",
		Long: `qrscan drives a camera through its scan lifecycle: it negotiates a capture stream,
decodes QR codes and barcodes from the frames, and records accepted scans.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.captureRoot, "capture-root", "", "Directory whose subdirectories are cameras (overrides CAPTURE_ROOT)")
	pf.StringVar(&flags.deviceClass, "device-class", "", "Device class: phone, tablet or unspecified (overrides DEVICE_CLASS)")
	pf.StringVar(&flags.userAgent, "user-agent", "", "User agent used to classify the device (overrides USER_AGENT)")
	pf.StringVar(&flags.profilesFile, "profiles", "", "YAML file overriding the device profile table (overrides PROFILES_FILE)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides LOG_LEVEL)")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: json or text (overrides LOG_FORMAT)")
	pf.BoolVar(&flags.cachePerm, "cache-permission", false, "Skip the permission request after the first grant (overrides PERMISSION_CACHE)")

	cmd.AddCommand(
		newServeCmd(flags),
		newScanCmd(flags),
		newCamerasCmd(flags),
	)
	return cmd
}

// loadConfig reads the environment and applies flag overrides.
func (f *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.LoadWithDefaults()
	if f.captureRoot != "" {
		cfg.Capture.Root = f.captureRoot
	}
	if f.deviceClass != "" {
		cfg.Capture.DeviceClass = f.deviceClass
	}
	if f.userAgent != "" {
		cfg.Capture.UserAgent = f.userAgent
	}
	if f.profilesFile != "" {
		cfg.Capture.ProfilesFile = f.profilesFile
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.logFormat != "" {
		cfg.LogFormat = f.logFormat
	}
	if cmd.Flags().Changed("cache-permission") {
		cfg.Scanner.CachePermission = f.cachePerm
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return logger.NewWithWriter(w, logger.ParseLevel(cfg.LogLevel), cfg.LogFormat == "json").Logger
}

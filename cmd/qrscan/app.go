package main

import (
	"fmt"
	"log/slog"

	"github.com/narvanalabs/qrscan/internal/camera"
	"github.com/narvanalabs/qrscan/internal/capture/imagedir"
	"github.com/narvanalabs/qrscan/internal/clock"
	"github.com/narvanalabs/qrscan/internal/decoder"
	"github.com/narvanalabs/qrscan/internal/history"
	"github.com/narvanalabs/qrscan/internal/logs"
	"github.com/narvanalabs/qrscan/internal/scanner"
	"github.com/narvanalabs/qrscan/pkg/config"
)

// app holds the wired scanner services shared by the subcommands.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	capture    *imagedir.Backend
	events     *logs.EventLog
	history    *history.ScanHistory
	watcher    *camera.Watcher
	controller *scanner.Controller
	class      camera.DeviceClass
	profile    camera.DeviceProfile
}

func newApp(cfg *config.Config, mounts scanner.MountLocator, log *slog.Logger) (*app, error) {
	class, profile, err := resolveProfile(cfg)
	if err != nil {
		return nil, err
	}

	clk := clock.Real()
	capture := imagedir.New(cfg.Capture.Root, clk, log)
	events := logs.NewEventLog(cfg.Scanner.EventLogCapacity, clk, log)
	scans := history.New(cfg.Scanner.HistoryCapacity, clk, log)

	controller := scanner.New(
		camera.NewNegotiator(capture, log),
		decoder.New(capture, clk, log),
		mounts,
		events,
		scans,
		scanner.Options{
			MountID:           cfg.Scanner.MountID,
			Profile:           profile,
			DuplicateWindow:   cfg.Scanner.DuplicateWindow,
			SuppressionWindow: cfg.Scanner.SuppressionWindow,
			CachePermission:   cfg.Scanner.CachePermission,
			Clock:             clk,
			Logger:            log,
		},
	)

	return &app{
		cfg:        cfg,
		logger:     log,
		capture:    capture,
		events:     events,
		history:    scans,
		watcher:    camera.NewWatcher(capture, cfg.Capture.PollInterval, clk, events, log),
		controller: controller,
		class:      class,
		profile:    profile,
	}, nil
}

// resolveProfile picks the device class from the explicit setting or the
// user agent, then looks it up in the (possibly overridden) profile table.
func resolveProfile(cfg *config.Config) (camera.DeviceClass, camera.DeviceProfile, error) {
	class := camera.ClassifyUserAgent(cfg.Capture.UserAgent)
	if cfg.Capture.DeviceClass != "" {
		parsed, err := camera.ParseDeviceClass(cfg.Capture.DeviceClass)
		if err != nil {
			return "", camera.DeviceProfile{}, err
		}
		class = parsed
	}

	table, err := camera.LoadProfiles(cfg.Capture.ProfilesFile)
	if err != nil {
		return "", camera.DeviceProfile{}, fmt.Errorf("loading device profiles: %w", err)
	}
	return class, table.Lookup(class), nil
}

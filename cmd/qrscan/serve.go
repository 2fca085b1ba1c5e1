package main

import (
	"context"
	"fmt"
	"os"

	"github.com/narvanalabs/qrscan/internal/api"
	"github.com/narvanalabs/qrscan/internal/mount"
	"github.com/narvanalabs/qrscan/internal/shutdown"
	"github.com/spf13/cobra"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scanner web UI and API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Host = host
			}
			if port != 0 {
				cfg.Port = port
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			log := newLogger(cfg, os.Stdout)

			mounts := mount.NewRegistry()
			a, err := newApp(cfg, mounts, log)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a.watcher.Start(ctx)

			server := api.NewServer(cfg, api.Deps{
				Scanner: a.controller,
				Events:  a.events,
				History: a.history,
				Cameras: a.watcher,
				Mounts:  mounts,
				Capture: a.capture,
			}, log)

			// newest first: the HTTP surface closes, then the camera is
			// released, then polling stops
			coordinator := shutdown.NewCoordinator(shutdown.WithTimeout(cfg.ShutdownTimeout), shutdown.WithLogger(log))
			coordinator.Register(shutdown.NewStopperComponent("device-watcher", a.watcher))
			coordinator.Register(shutdown.NewComponent("scanner", a.controller))
			coordinator.Register(shutdown.NewComponent("http", server))

			log.Info("starting qrscan",
				"addr", cfg.Addr(),
				"capture_root", cfg.Capture.Root,
				"device_class", a.class,
				"version", api.Version,
			)

			serveCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start(context.Background())
				cancel()
			}()

			coordinator.WaitForSignal(serveCtx)
			coordinator.Wait()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			default:
			}
			if coordinator.ExitCode() != 0 {
				return fmt.Errorf("shutdown did not finish within %s", cfg.ShutdownTimeout)
			}
			log.Info("qrscan stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides QRSCAN_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides QRSCAN_PORT)")
	return cmd
}

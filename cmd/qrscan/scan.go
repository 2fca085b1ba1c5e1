package main

import (
	"context"
	"fmt"
	"time"

	"github.com/narvanalabs/qrscan/internal/history"
	"github.com/narvanalabs/qrscan/internal/mount"
	"github.com/spf13/cobra"
)

func newScanCmd(flags *globalFlags) *cobra.Command {
	var deviceID string
	var zoomed bool
	var count int
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan headlessly and print accepted payloads",
		Long: `scan starts the scanner without a web surface and prints every accepted payload on its
own line. Duplicates inside the duplicate window are not printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			log := newLogger(cfg, cmd.ErrOrStderr())

			a, err := newApp(cfg, mount.Static{cfg.Scanner.MountID}, log)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			sub := a.history.Subscribe()
			defer a.history.Unsubscribe(sub)

			if zoomed {
				if err := a.controller.SetScanMode(ctx, true); err != nil {
					return err
				}
			}
			if err := a.controller.StartWithCamera(ctx, deviceID); err != nil {
				return fmt.Errorf("%s: %w", a.controller.Status().StatusMessage, err)
			}
			defer a.controller.Stop(context.Background())

			out := cmd.OutOrStdout()
			printed := 0
			for count <= 0 || printed < count {
				ev, err := sub.Next(ctx)
				if err != nil {
					// cancellation ends the scan normally
					return nil
				}
				if ev.Kind != history.EventAdded || ev.Entry == nil {
					continue
				}
				fmt.Fprintln(out, ev.Entry.Content)
				printed++
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&deviceID, "device", "", "Camera id to use instead of the profile's preferred camera")
	cmd.Flags().BoolVar(&zoomed, "zoomed", false, "Use the distance scan mode")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Exit after this many accepted scans (0 scans until interrupted)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long (0 waits forever)")
	return cmd
}

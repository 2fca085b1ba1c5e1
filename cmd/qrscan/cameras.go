package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/narvanalabs/qrscan/internal/camera"
	"github.com/narvanalabs/qrscan/internal/mount"
	"github.com/spf13/cobra"
)

func newCamerasCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cameras",
		Short: "List available cameras",
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

			cameras, err := a.controller.Cameras(cmd.Context())
			if err != nil {
				return err
			}

			preferred, _ := camera.SelectPreferred(cameras, a.profile)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLABEL\tPREFERRED")
			for _, c := range cameras {
				mark := ""
				if c.ID == preferred.ID {
					mark = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.DisplayName(), mark)
			}
			return w.Flush()
		},
	}
}

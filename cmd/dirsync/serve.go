package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/dirsync/internal/orchestrator"
	"github.com/openmined/dirsync/internal/peer"
	"github.com/openmined/dirsync/internal/version"
	"github.com/spf13/cobra"
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer device handshakes and keep tracked directories in sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			slog.Info(version.AppName, "version", version.Version, "revision", version.Revision, "build", version.BuildDate)

			if addr == "" {
				addr = fmt.Sprintf(":%d", c.cfg.HandshakePort)
			}

			s, err := c.openSession(cmd.Context(), cmd.OutOrStdout(),
				orchestrator.WithResyncInterval(c.cfg.ResyncInterval),
				orchestrator.WithDiscoverer(c.discoverer()),
			)
			if err != nil {
				return err
			}
			defer s.Close()

			go func() {
				for m := range s.msgs {
					printMessage(s.out, m)
				}
			}()
			defer s.orch.UnsubscribeMessages(s.msgs)

			// identity is picked per boot
			self := peer.Device{ID: peer.NewDeviceID(), Name: c.cfg.DeviceName}
			server := peer.NewServer(self, addr)

			defer slog.Info("Bye!")
			if err := server.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("handshake server", "error", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "address for the handshake server (default :<handshake_port>)")
	return cmd
}

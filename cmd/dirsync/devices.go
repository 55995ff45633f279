package main

import (
	"context"
	"fmt"

	"github.com/openmined/dirsync/internal/orchestrator"
	"github.com/openmined/dirsync/internal/peer"
	"github.com/spf13/cobra"
)

func newDevicesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Find and pair dirsync devices on the local network",
	}
	cmd.AddCommand(
		newDevicesDiscoverCmd(c),
		newDevicesPairCmd(c),
		newDevicesListCmd(c),
	)
	return cmd
}

func newDevicesDiscoverCmd(c *cli) *cobra.Command {
	var pairAll bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Sweep the local /24 for devices answering the handshake",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []orchestrator.Option{orchestrator.WithDiscoverer(c.discoverer())}
			return c.withSession(cmd, opts, func(s *session) error {
				if err := s.orch.GetOnlineDevices(); err != nil {
					return err
				}
				s.orch.Wait()

				found := s.orch.OnlineDevices().Get()
				printDevices(cmd.OutOrStdout(), found)
				if !pairAll {
					return nil
				}
				for _, d := range found {
					if err := s.orch.TrackNewDevice(d); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&pairAll, "pair", false, "pair every device found")
	return cmd
}

func newDevicesPairCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "pair <ip>",
		Short: "Handshake with a device and pair it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, nil, func(s *session) error {
				client := peer.NewClient(c.cfg.HandshakePort, c.cfg.HandshakeTimeout)
				ctx, cancel := context.WithTimeout(cmd.Context(), c.cfg.HandshakeTimeout)
				defer cancel()

				device, err := client.Handshake(ctx, args[0])
				if err != nil {
					return fmt.Errorf("no device at %s: %w", args[0], err)
				}
				return s.orch.TrackNewDevice(*device)
			})
		},
	}
}

func newDevicesListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List paired devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, nil, func(s *session) error {
				printDevices(cmd.OutOrStdout(), s.orch.PairedDevices().Get())
				return nil
			})
		},
	}
}

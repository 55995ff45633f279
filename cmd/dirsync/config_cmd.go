package main

import (
	"fmt"

	"github.com/openmined/dirsync/internal/config"
	"github.com/openmined/dirsync/internal/utils"
	"github.com/spf13/cobra"
)

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or write the effective configuration",
	}
	cmd.AddCommand(newConfigShowCmd(c), newConfigInitCmd(c))
	return cmd
}

func newConfigShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := c.cfg.Path
			if path == "" {
				path = gray.Render("(defaults)")
			}
			fmt.Fprintf(out, "%-20s %s\n", "config", path)
			fmt.Fprintf(out, "%-20s %s\n", config.KeyDataDir, c.cfg.DataDir)
			fmt.Fprintf(out, "%-20s %s\n", config.KeyStorePath, c.cfg.StorePath)
			fmt.Fprintf(out, "%-20s %s\n", config.KeyLogLevel, c.cfg.LogLevel)
			fmt.Fprintf(out, "%-20s %s\n", config.KeyDeviceName, c.cfg.DeviceName)
			fmt.Fprintf(out, "%-20s %d\n", config.KeyHandshakePort, c.cfg.HandshakePort)
			fmt.Fprintf(out, "%-20s %s\n", config.KeyProbeTimeout, c.cfg.ProbeTimeout)
			fmt.Fprintf(out, "%-20s %d\n", config.KeyProbeConcurrency, c.cfg.ProbeConcurrency)
			fmt.Fprintf(out, "%-20s %s\n", config.KeyHandshakeTimeout, c.cfg.HandshakeTimeout)
			fmt.Fprintf(out, "%-20s %s\n", config.KeyResyncInterval, c.cfg.ResyncInterval)
			fmt.Fprintf(out, "%-20s %d\n", config.KeySearchConcurrency, c.cfg.SearchConcurrency)
			return nil
		},
	}
}

func newConfigInitCmd(c *cli) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			path := config.DefaultConfigPath
			if f := cmd.Flag("config"); f != nil && f.Changed {
				path = f.Value.String()
			}
			path, err := utils.ResolvePath(path)
			if err != nil {
				return err
			}
			if utils.FileExists(path) && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			if err := c.cfg.Save(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), green.Render("✓"), "wrote", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

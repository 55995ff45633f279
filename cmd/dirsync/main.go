package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/openmined/dirsync/internal/config"
	"github.com/openmined/dirsync/internal/logging"
	"github.com/openmined/dirsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli carries state shared by every subcommand of one invocation.
type cli struct {
	v        *viper.Viper
	cfg      *config.Config
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           version.AppName,
		Short:         "Track directories, browse them and find peers on the local network",
		Version:       version.Detailed(),
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, c.v)
			if err != nil {
				return err
			}
			c.cfg = cfg

			level, _ := config.ParseLevel(cfg.LogLevel)
			closeLog, err := logging.Setup(logging.Options{
				Level:   level,
				Console: cmd.ErrOrStderr(),
				File:    cfg.LogFile,
			})
			if err != nil {
				return err
			}
			c.closeLog = closeLog
			slog.Debug("config loaded", "config", cfg)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.closeLog != nil {
				return c.closeLog()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "dirsync config file")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "directory for the store and logs")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newTrackCmd(c),
		newUntrackCmd(c),
		newTrackedCmd(c),
		newLsCmd(c),
		newSearchCmd(c),
		newResyncCmd(c),
		newCopyCmd(c, false),
		newCopyCmd(c, true),
		newRmCmd(c),
		newRenameCmd(c),
		newCreateCmd(c),
		newOpenCmd(c),
		newDevicesCmd(c),
		newServeCmd(c),
		newBrowseCmd(c),
		newConfigCmd(c),
		newVersionCmd(),
	)
	return rootCmd
}

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red.Render("Error:"), err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	if f := cmd.Flag("config"); f != nil && f.Changed {
		v.SetConfigFile(f.Value.String())
	} else {
		v.AddConfigPath(config.DefaultDataDir)
		v.SetConfigName(config.ConfigFileName)
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	for key, flag := range map[string]string{
		config.KeyDataDir:  "data-dir",
		config.KeyLogLevel: "log-level",
	} {
		if f := cmd.Flag(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	return config.Load(v)
}

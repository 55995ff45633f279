package main

import (
	"fmt"
	"runtime"

	"github.com/goccy/go-json"
	"github.com/openmined/dirsync/internal/store"
	"github.com/openmined/dirsync/internal/version"
	"github.com/spf13/cobra"
)

type versionInfo struct {
	App         string `json:"app"`
	Version     string `json:"version"`
	Revision    string `json:"revision"`
	BuildDate   string `json:"build_date"`
	GoVersion   string `json:"go_version"`
	Platform    string `json:"platform"`
	StoreSchema int    `json:"store_schema"`
}

func currentVersionInfo() versionInfo {
	return versionInfo{
		App:         version.AppName,
		Version:     version.Version,
		Revision:    version.Revision,
		BuildDate:   version.BuildDate,
		GoVersion:   runtime.Version(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		StoreSchema: store.SchemaVersion,
	}
}

func newVersionCmd() *cobra.Command {
	var short, asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print dirsync version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(currentVersionInfo())
			case short:
				_, err := fmt.Fprintln(out, version.Short())
				return err
			default:
				_, err := fmt.Fprintf(out, "%s\nstore schema v%d\n", version.DetailedWithApp(), store.SchemaVersion)
				return err
			}
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "print only the version and revision")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print version information as JSON")
	cmd.MarkFlagsMutuallyExclusive("short", "json")
	return cmd
}

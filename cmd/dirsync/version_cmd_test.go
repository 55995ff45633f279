package main

import (
	"bytes"
	"runtime"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/openmined/dirsync/internal/store"
	"github.com/openmined/dirsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runVersion(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := &cobra.Command{Use: "dirsync"}
	cmd.AddCommand(newVersionCmd())

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"version"}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"detailed", nil, version.DetailedWithApp() + "\nstore schema v1"},
		{"short", []string{"--short"}, version.Short()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runVersion(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.TrimSpace(out))
		})
	}
}

func TestVersionCommandJSON(t *testing.T) {
	out, err := runVersion(t, "--json")
	require.NoError(t, err)

	var got versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, version.AppName, got.App)
	assert.Equal(t, version.Version, got.Version)
	assert.Equal(t, version.Revision, got.Revision)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, got.Platform)
	assert.Equal(t, store.SchemaVersion, got.StoreSchema)
}

func TestVersionCommandRejectsBothModes(t *testing.T) {
	_, err := runVersion(t, "--short", "--json")
	require.Error(t, err)

	_, err = runVersion(t, "extra")
	require.Error(t, err)
}

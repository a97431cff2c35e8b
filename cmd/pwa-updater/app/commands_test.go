package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/pwa-update-manager/internal/app/storage"
	"github.com/stacklok/pwa-update-manager/internal/config"
	"github.com/stacklok/pwa-update-manager/internal/record"
	"github.com/stacklok/pwa-update-manager/internal/versions"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "deliver", "apps", "migrate", "version"}, names)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestVersionCmd_JSON(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--format", "json"})
	require.NoError(t, cmd.Execute())

	var info versions.VersionInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, versions.GetVersionInfo(), info)
}

func TestDeliverCmd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    func(t *testing.T) []string
		wantErr string
	}{
		{
			name:    "missing config",
			args:    func(*testing.T) []string { return []string{"deliver"} },
			wantErr: "--config is required",
		},
		{
			name: "invalid config",
			args: func(t *testing.T) []string {
				t.Helper()
				return []string{"deliver", "--config", writeConfig(t, "update: {}\n")}
			},
			wantErr: "update.targetRuntimeVersion is required",
		},
		{
			name: "no delivery command",
			args: func(t *testing.T) []string {
				t.Helper()
				dataDir := t.TempDir()
				return []string{"deliver", "--config", writeConfig(t, `
dataDir: `+dataDir+`
update:
  targetRuntimeVersion: "153"
fetcher:
  endpoint: http://127.0.0.1:9
`)}
			},
			wantErr: "delivery.command is required",
		},
		{
			name: "nothing due",
			args: func(t *testing.T) []string {
				t.Helper()
				dataDir := t.TempDir()
				return []string{"deliver", "--unmetered", "--config", writeConfig(t, `
dataDir: `+dataDir+`
update:
  targetRuntimeVersion: "153"
fetcher:
  endpoint: http://127.0.0.1:9
delivery:
  command: ["true"]
`)}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := NewRootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args(t))

			err := cmd.Execute()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

// seedRecords writes one checked app and returns the config path
func seedRecords(t *testing.T) string {
	t.Helper()
	dataDir := t.TempDir()
	path := writeConfig(t, `
dataDir: `+dataDir+`
update:
  targetRuntimeVersion: "153"
`)
	cfg, err := config.LoadConfig(config.WithConfigPath(path))
	require.NoError(t, err)

	factory, err := storage.NewStorageFactory(cfg)
	require.NoError(t, err)
	defer factory.Cleanup()
	repo, err := factory.CreateRepository(context.Background())
	require.NoError(t, err)

	checked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, _, err = repo.Update(context.Background(), "https://pwa.example/app/", func(r *record.Record) bool {
		r.PackageName = "org.chromium.webapk.a1"
		r.LastCheckTime = checked
		r.UpdateScheduled = true
		return true
	})
	require.NoError(t, err)
	return path
}

func TestAppsCmd(t *testing.T) {
	t.Parallel()

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		cmd := NewRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"apps", "--config", seedRecords(t)})
		require.NoError(t, cmd.Execute())

		var recs []record.Record
		require.NoError(t, json.Unmarshal(out.Bytes(), &recs))
		require.Len(t, recs, 1)
		assert.Equal(t, "https://pwa.example/app/", recs[0].AppID)
		assert.True(t, recs[0].UpdateScheduled)
	})

	t.Run("table", func(t *testing.T) {
		t.Parallel()

		cmd := NewRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"apps", "--format", "table", "--config", seedRecords(t)})
		require.NoError(t, cmd.Execute())

		assert.Contains(t, out.String(), "https://pwa.example/app/")
		assert.Contains(t, out.String(), "org.chromium.webapk.a1")
		assert.Contains(t, out.String(), "2026-03-01T12:00:00Z")
		assert.Contains(t, out.String(), "never")
	})

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()

		cmd := NewRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"apps", "--format", "yaml", "--config", seedRecords(t)})
		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown output format")
	})
}

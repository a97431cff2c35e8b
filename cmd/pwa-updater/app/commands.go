// Package app provides the command line of the web app update manager.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/pwa-update-manager/internal/config"
	"github.com/stacklok/pwa-update-manager/internal/versions"
)

// LogLevel is the level of the process logger; --debug lowers it to debug
var LogLevel = new(slog.LevelVar)

// NewRootCmd creates the root command with all subcommands.
// Flags are bound into a fresh viper instance so commands can be built more than once.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:               "pwa-updater",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Installed web app update manager",
		Long: `pwa-updater keeps installed web apps in sync with their web manifests. It checks
apps when they are activated, asks the user before identity changes, and hands pending
update requests to the packaging service in a background delivery window.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if v.GetBool("debug") {
				LogLevel.Set(slog.LevelDebug)
			}
		},
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	for _, name := range []string{"config", "debug"} {
		if err := v.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			slog.Error("Error binding flag", "flag", name, "error", err)
		}
	}

	rootCmd.AddCommand(newServeCmd(v))
	rootCmd.AddCommand(newDeliverCmd(v))
	rootCmd.AddCommand(newAppsCmd(v))
	rootCmd.AddCommand(newMigrateCmd(v))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("failed to read format flag: %w", err)
			}

			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info as JSON: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return err
			}

			slog.Info("pwa-updater version",
				"version", info.Version,
				"commit", info.Commit,
				"built", info.BuildDate,
				"go", info.GoVersion,
				"platform", info.Platform)
			return nil
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}

// loadConfig loads the configuration file named by the --config flag
func loadConfig(v *viper.Viper) (*config.Config, error) {
	path := v.GetString("config")
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.LoadConfig(config.WithConfigPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", path,
		"data_dir", cfg.GetDataDir(),
		"storage", cfg.GetStorageType(),
		"target_runtime_version", cfg.Update.TargetRuntimeVersion)
	return cfg, nil
}

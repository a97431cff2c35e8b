package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/pwa-update-manager/internal/config"
	"github.com/stacklok/pwa-update-manager/internal/record"
)

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Record database migration tool",
		Long: `Manage the schema version of the sqlite record store. Use with 'up' or 'down'.
The serve and deliver commands apply pending migrations on startup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	cmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	cmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate (0 = all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending record database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, v, true)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert record database migrations",
		Long: `Revert record database migrations.
WARNING: reverting the first migration drops every stored app record.

Examples:
  # Revert one step
  pwa-updater migrate down --config config.yaml --num-steps 1 --yes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, v, false)
		},
	})
	return cmd
}

func runMigrate(cmd *cobra.Command, v *viper.Viper, up bool) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	if cfg.GetStorageType() != config.StorageTypeSQLite {
		return fmt.Errorf("migrations apply to the %s record store only, storage.type is '%s'",
			config.StorageTypeSQLite, cfg.GetStorageType())
	}

	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}
	if numSteps > math.MaxInt {
		return fmt.Errorf("number of steps exceeds maximum allowed value")
	}
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}

	dbPath := cfg.GetSQLitePath()
	if !yes {
		prompt := fmt.Sprintf("About to migrate %s up", dbPath)
		if !up {
			prompt = fmt.Sprintf("WARNING: migrating %s down may drop stored app records", dbPath)
		}
		if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt+". Continue?") {
			slog.Info("Migration cancelled by user")
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	m, err := record.NewSQLiteMigrator(dbPath)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			slog.Error("Error closing migrator", "error", err)
		}
	}()

	steps := int(numSteps) // #nosec G115 -- overflow checked above
	switch {
	case up && steps == 0:
		err = m.Up()
	case up:
		err = m.Steps(steps)
	case steps == 0:
		slog.Warn("Migrating down all steps, every stored app record will be removed")
		err = m.Down()
	default:
		err = m.Steps(-steps)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("No migrations to apply")
		err = nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		slog.Info("Record database schema has been removed", "path", dbPath)
	case err != nil:
		slog.Warn("Unable to get migration version", "error", err)
	case dirty:
		slog.Warn("Record database is in a dirty state", "version", version)
	default:
		slog.Info("Migration completed", "path", dbPath, "version", version)
	}
	return nil
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	_, _ = fmt.Fprintf(out, "%s (yes/no): ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "yes" || answer == "y"
}

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/stacklok/pwa-update-manager/internal/app/storage"
	"github.com/stacklok/pwa-update-manager/internal/record"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func newAppsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List the update records of managed apps",
		Long: `List the persisted update record of every app seen by the service: last check,
outcome of the last update request, and whether a forced or scheduled update is pending.
The output is a table on a terminal and JSON otherwise.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("format")
			if format == "" {
				format = defaultFormat(cmd.OutOrStdout())
			}
			return runApps(cmd.Context(), v, cmd.OutOrStdout(), format)
		},
	}
	cmd.Flags().String("format", "", "Output format (table or json)")
	return cmd
}

func defaultFormat(out io.Writer) string {
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return formatTable
	}
	return formatJSON
}

func runApps(ctx context.Context, v *viper.Viper, out io.Writer, format string) error {
	if format != formatTable && format != formatJSON {
		return fmt.Errorf("unknown output format '%s'", format)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	factory, err := storage.NewStorageFactory(cfg)
	if err != nil {
		return err
	}
	defer factory.Cleanup()

	repo, err := factory.CreateRepository(ctx)
	if err != nil {
		return err
	}
	recs, err := repo.List(ctx)
	if err != nil {
		return err
	}

	if format == formatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	return writeAppsTable(out, recs)
}

func writeAppsTable(out io.Writer, recs []*record.Record) error {
	table := tablewriter.NewWriter(out)
	table.Header("App ID", "Package", "Last check", "Last request", "Runtime", "Forced", "Scheduled")
	for _, rec := range recs {
		row := []string{
			rec.AppID,
			rec.PackageName,
			formatTime(rec.LastCheckTime),
			lastRequest(rec),
			rec.LastRequestedRuntimeVersion,
			strconv.FormatBool(rec.ForceUpdate),
			strconv.FormatBool(rec.UpdateScheduled),
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to add table row: %w", err)
		}
	}
	return table.Render()
}

func lastRequest(rec *record.Record) string {
	switch {
	case rec.LastRequestCompletionTime.IsZero():
		return "never"
	case rec.LastRequestSucceeded:
		return "succeeded " + formatTime(rec.LastRequestCompletionTime)
	default:
		return "failed " + formatTime(rec.LastRequestCompletionTime)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

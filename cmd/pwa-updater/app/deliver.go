package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	pwaapp "github.com/stacklok/pwa-update-manager/internal/app"
	"github.com/stacklok/pwa-update-manager/internal/schedule"
)

func newDeliverCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deliver",
		Short: "Run the delivery job once if it is due",
		Long: `Run the scheduled delivery job once, outside the service process. Every app with a
scheduled update has its pending request handed to the configured delivery command, and the
outcome is recorded. Nothing happens when no job is due.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			unmetered, _ := cmd.Flags().GetBool("unmetered")
			charging, _ := cmd.Flags().GetBool("charging")
			return runDeliver(cmd.Context(), v, schedule.DeviceState{Unmetered: unmetered, Charging: charging})
		},
	}

	cmd.Flags().Bool("unmetered", false, "The device is on an unmetered network")
	cmd.Flags().Bool("charging", false, "The device is charging")
	return cmd
}

func runDeliver(ctx context.Context, v *viper.Viper, device schedule.DeviceState) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	ran, err := pwaapp.RunDelivery(ctx, pwaapp.WithConfig(cfg), pwaapp.WithDeviceState(device))
	if err != nil {
		return fmt.Errorf("delivery run failed: %w", err)
	}
	slog.Info("Delivery run finished", "job_ran", ran)
	return nil
}

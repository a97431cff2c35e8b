package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stacklok/pwa-update-manager/internal/record"
)

// RecordLister lists the persisted app records
type RecordLister interface {
	List(ctx context.Context) ([]*record.Record, error)
}

// BatchTask delivers every scheduled pending request in one run
type BatchTask struct {
	records   RecordLister
	deliverer Deliverer
	handler   CompletionHandler
}

// NewBatchTask creates the delivery task
func NewBatchTask(records RecordLister, deliverer Deliverer, handler CompletionHandler) *BatchTask {
	return &BatchTask{
		records:   records,
		deliverer: deliverer,
		handler:   handler,
	}
}

// Run delivers each scheduled request in turn. A delivery that errors counts as a failed
// update; only listing errors and cancellation abort the run.
func (t *BatchTask) Run(ctx context.Context) error {
	recs, err := t.records.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list app records: %w", err)
	}

	delivered := 0
	for _, rec := range recs {
		if !rec.UpdateScheduled || rec.PendingRequestPath == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, err := t.deliverer.Deliver(ctx, rec.PendingRequestPath)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("Delivery failed", "app_id", rec.AppID, "path", rec.PendingRequestPath, "error", err)
			outcome = Outcome{Result: ResultFailure}
		}
		outcome.Path = rec.PendingRequestPath

		if err := t.handler.OnDeliveryComplete(ctx, rec.AppID, outcome); err != nil {
			slog.Error("Failed to record delivery outcome", "app_id", rec.AppID, "error", err)
			continue
		}
		delivered++
	}

	slog.Info("Delivery batch finished", "delivered", delivered)
	return nil
}

package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tillbook/tillbook/internal/variance"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskVarianceAlert notifies operations about a cash variance beyond
	// the configured threshold.
	TaskVarianceAlert = "cash:variance_alert"
)

// NewVarianceAlertTask constructs an Asynq task from an alert.
func NewVarianceAlertTask(a variance.Alert) (*asynq.Task, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVarianceAlert, data), nil
}

// VarianceAlertHandler logs threshold-exceeding variances for the ops
// channel. Delivery to an external alert sink hangs off this handler.
type VarianceAlertHandler struct {
	Logger  *slog.Logger
	printer *message.Printer
}

func NewVarianceAlertHandler(logger *slog.Logger) *VarianceAlertHandler {
	return &VarianceAlertHandler{Logger: logger, printer: message.NewPrinter(language.English)}
}

// Handle processes TaskVarianceAlert tasks.
func (h *VarianceAlertHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var alert variance.Alert
	if err := json.Unmarshal(t.Payload(), &alert); err != nil {
		return asynq.SkipRetry
	}
	amount := alert.Amount
	if d, err := decimal.NewFromString(alert.Amount); err == nil {
		amount = h.printer.Sprintf("%d", d.IntPart())
	}
	h.Logger.Warn("cash variance over threshold",
		slog.Int64("tenant_id", alert.TenantID),
		slog.String("account_code", alert.AccountCode),
		slog.String("amount_minor_units", amount),
		slog.String("reason", alert.Reason),
		slog.String("session_id", alert.SessionID),
	)
	return nil
}

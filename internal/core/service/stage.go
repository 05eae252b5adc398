package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/port"
)

var tracer = otel.Tracer("github.com/rl1809/stock-ledger/internal/core/service")

// Stage names one step of a purchase.
type Stage string

const (
	StageValidatingInput Stage = "validating_input"
	StageCheckingStock   Stage = "checking_stock"
	StageDecrementing    Stage = "decrementing"
	StageRecording       Stage = "recording"
	StageNotifying       Stage = "notifying"
	StageDone            Stage = "done"
)

// StageError reports the stage a purchase failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func runStage(ctx context.Context, stage Stage, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, string(stage))
	defer span.End()

	if err := fn(ctx); err != nil {
		recordSpanError(span, err)
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// notifyChange signals a new quantity. Failures and panics never reach the caller.
func notifyChange(ctx context.Context, notifier port.ChangeNotifier, logger *zap.Logger, productID int64, quantity int) {
	if notifier == nil {
		return
	}

	err := runStage(ctx, StageNotifying, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("notifier panicked: %v", r)
			}
		}()
		return notifier.NotifyInventoryChanged(ctx, productID, quantity)
	})
	if err != nil {
		logger.Warn("inventory change notification failed",
			zap.Int64("product_id", productID),
			zap.Int("new_quantity", quantity),
			zap.Error(err),
		)
	}
}

package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/castlemart/castlemart-backend/internal/cancellation"
	"github.com/castlemart/castlemart-backend/internal/orders"
	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
	"github.com/castlemart/castlemart-backend/pkg/logger"
)

const (
	defaultPendingTTL      = 24 * time.Hour
	defaultExpiryBatchSize = 50
)

type pendingOrderReader interface {
	FindPendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderCanceler interface {
	Cancel(ctx context.Context, params cancellation.CancelParams) (*cancellation.CancelResult, error)
}

// OrderExpiryJobParams configure the pending order reaper.
type OrderExpiryJobParams struct {
	Logger     *logger.Logger
	Orders     pendingOrderReader
	Canceler   orderCanceler
	PendingTTL time.Duration
	BatchSize  int
}

// NewOrderExpiryJob builds the cron job that cancels pending orders older
// than the configured TTL.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("pending orders reader required")
	}
	if params.Canceler == nil {
		return nil, fmt.Errorf("cancellation service required")
	}
	ttl := params.PendingTTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultExpiryBatchSize
	}
	return &orderExpiryJob{
		logg:       params.Logger,
		orders:     params.Orders,
		canceler:   params.Canceler,
		pendingTTL: ttl,
		batchSize:  batchSize,
		now:        time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg       *logger.Logger
	orders     pendingOrderReader
	canceler   orderCanceler
	pendingTTL time.Duration
	batchSize  int
	now        func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

// Run expires one batch per cycle. Each order cancels in its own transaction
// so one poison order cannot wedge the whole sweep.
func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.pendingTTL)
	stale, err := j.orders.FindPendingOrdersBefore(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query stale pending orders: %w", err)
	}

	var errs []error
	expired := 0
	for _, order := range stale {
		_, err := j.canceler.Cancel(ctx, cancellation.CancelParams{
			OrderID:   order.ID,
			Requester: orders.Requester{Role: enums.ActorRoleSystem},
			Expired:   true,
		})
		if err != nil {
			if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeStateConflict {
				// Paid or canceled between the scan and the cancel. Not ours.
				continue
			}
			errs = append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		expired++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned": len(stale),
		"expired": expired,
		"cutoff":  cutoff,
	})
	j.logg.Info(logCtx, "pending order expiry loop complete")
	return multierr.Combine(errs...)
}

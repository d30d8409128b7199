// Package reconciler resolves conversions whose notifications never arrived by
// polling result storage directly.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/convertflow/internal/conversions"
	"github.com/angelmondragon/convertflow/internal/processes"
	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/enums"
	"github.com/angelmondragon/convertflow/pkg/logger"
	"github.com/angelmondragon/convertflow/pkg/metrics"
	"github.com/angelmondragon/convertflow/pkg/storage/gcs"
)

type staleLister interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]models.ConversionRecord, error)
}

type resolver interface {
	OpenProcesses(record *models.ConversionRecord) []processes.Entry
	Resolve(ctx context.Context, record *models.ConversionRecord, events []conversions.Event) (*models.ConversionRecord, error)
}

type resultStorage interface {
	List(ctx context.Context, bucket, prefix string) ([]gcs.Object, error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// Params wires a Reconciler.
type Params struct {
	Logger       *logger.Logger
	Records      staleLister
	Machine      resolver
	Storage      resultStorage
	OutputBucket string
	StaleAfter   time.Duration
	Limit        int
	Metrics      *metrics.ConversionMetrics
	Now          func() time.Time
}

// Reconciler is the backstop for records stuck IN_PROGRESS.
type Reconciler struct {
	logg         *logger.Logger
	records      staleLister
	machine      resolver
	storage      resultStorage
	outputBucket string
	staleAfter   time.Duration
	limit        int
	metrics      *metrics.ConversionMetrics
	now          func() time.Time
}

func New(params Params) (*Reconciler, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Records == nil {
		return nil, fmt.Errorf("record store required")
	}
	if params.Machine == nil {
		return nil, fmt.Errorf("state machine required")
	}
	if params.Storage == nil {
		return nil, fmt.Errorf("storage required")
	}
	if params.OutputBucket == "" {
		return nil, fmt.Errorf("output bucket required")
	}
	if params.StaleAfter <= 0 {
		return nil, fmt.Errorf("stale threshold must be positive")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 25
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		logg:         params.Logger,
		records:      params.Records,
		machine:      params.Machine,
		storage:      params.Storage,
		outputBucket: params.OutputBucket,
		staleAfter:   params.StaleAfter,
		limit:        limit,
		metrics:      params.Metrics,
		now:          now,
	}, nil
}

// Reconcile resolves every open sub-process of stale records. A record that
// fails to persist is logged and left for the next run.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	cutoff := r.now().UTC().Add(-r.staleAfter)
	records, err := r.records.ListStale(ctx, cutoff, r.limit)
	if err != nil {
		return fmt.Errorf("list stale conversions: %w", err)
	}

	resolved, failed := 0, 0
	for i := range records {
		if ctx.Err() != nil {
			break
		}
		record := &records[i]
		recCtx := r.logg.WithContentHash(ctx, record.ContentHash)
		events := r.Synthesize(recCtx, record)
		if len(events) == 0 {
			continue
		}
		out, err := r.machine.Resolve(recCtx, record, events)
		if err != nil {
			failed++
			r.logg.Error(recCtx, "reconcile stale conversion", err)
			continue
		}
		resolved++
		r.metrics.IncConversion(metrics.ConversionReconciled)
		r.logg.Info(r.logg.WithField(recCtx, "status", out.OverallStatus.String()), "stale conversion reconciled")
	}

	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"stale":      len(records),
		"reconciled": resolved,
		"failed":     failed,
	}), "stale conversions reconciled")
	return nil
}

// Synthesize builds one event per open sub-process from what result storage
// holds. Polling failures count as absence.
func (r *Reconciler) Synthesize(ctx context.Context, record *models.ConversionRecord) []conversions.Event {
	open := r.machine.OpenProcesses(record)
	events := make([]conversions.Event, 0, len(open))
	for _, entry := range open {
		present, err := r.resultPresent(ctx, record, entry)
		if err != nil {
			r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
				"process": string(entry.Identifier),
				"error":   err.Error(),
			}), "result poll failed, resolving as error")
		}
		status := enums.NotificationStatusError
		if present {
			status = enums.NotificationStatusSucceeded
		}
		events = append(events, conversions.Event{
			Process:     entry.Identifier,
			Status:      status,
			Synthesized: true,
		})
	}
	return events
}

func (r *Reconciler) resultPresent(ctx context.Context, record *models.ConversionRecord, entry processes.Entry) (bool, error) {
	key := entry.ResultKey(record.ContentHash)
	if entry.IsPrimary() {
		objects, err := r.storage.List(ctx, r.outputBucket, key)
		if err != nil {
			return false, err
		}
		return len(objects) > 0, nil
	}
	return r.storage.Exists(ctx, r.outputBucket, key)
}

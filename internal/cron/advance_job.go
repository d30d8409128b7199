package cron

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/enums"
	"github.com/angelmondragon/convertflow/pkg/logger"
)

const defaultAdvanceWorkers = 4

type advanceableLister interface {
	ListAdvanceable(ctx context.Context, limit int) ([]models.ConversionRecord, error)
}

type recordAdvancer interface {
	Advance(ctx context.Context, record *models.ConversionRecord) (*models.ConversionRecord, error)
}

type AdvanceJobParams struct {
	Logger  *logger.Logger
	Records advanceableLister
	Machine recordAdvancer
	Limit   int
	Workers int
}

// NewAdvanceJob applies stored notifications to in-progress conversions.
func NewAdvanceJob(params AdvanceJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Records == nil {
		return nil, fmt.Errorf("conversion repository required")
	}
	if params.Machine == nil {
		return nil, fmt.Errorf("state machine required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 25
	}
	workers := params.Workers
	if workers <= 0 {
		workers = defaultAdvanceWorkers
	}
	return &advanceJob{
		logg:    params.Logger,
		records: params.Records,
		machine: params.Machine,
		limit:   limit,
		workers: workers,
	}, nil
}

type advanceJob struct {
	logg    *logger.Logger
	records advanceableLister
	machine recordAdvancer
	limit   int
	workers int
}

func (j *advanceJob) Name() string { return "advance-conversions" }

// Run advances each record on its own worker. A record that fails is logged
// and retried on the next run; it never stops the others.
func (j *advanceJob) Run(ctx context.Context) error {
	records, err := j.records.ListAdvanceable(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("list advanceable conversions: %w", err)
	}

	var (
		mu       sync.Mutex
		advanced int
		failed   int
		outcomes = map[enums.ConversionStatus]int{}
	)
	var g errgroup.Group
	g.SetLimit(j.workers)
	for i := range records {
		record := &records[i]
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := j.machine.Advance(ctx, record)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				j.logg.Error(j.logg.WithContentHash(ctx, record.ContentHash), "advance conversion", err)
				return nil
			}
			advanced++
			outcomes[out.OverallStatus]++
			return nil
		})
	}
	_ = g.Wait()

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates":  len(records),
		"advanced":    advanced,
		"failed":      failed,
		"finished":    outcomes[enums.ConversionStatusFinished],
		"errored":     outcomes[enums.ConversionStatusError],
		"in_progress": outcomes[enums.ConversionStatusInProgress],
	}), "conversions advanced")
	return nil
}

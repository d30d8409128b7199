package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/convertflow/internal/submission"
	"github.com/angelmondragon/convertflow/pkg/logger"
)

type conversionCreator interface {
	CreateConversions(ctx context.Context) (int, error)
}

type conversionSubmitter interface {
	SubmitPending(ctx context.Context) ([]submission.Result, error)
}

// NewCreateConversionsJob creates records for newly probed uploads.
func NewCreateConversionsJob(logg *logger.Logger, creator conversionCreator) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if creator == nil {
		return nil, fmt.Errorf("creator required")
	}
	return &createConversionsJob{logg: logg, creator: creator}, nil
}

type createConversionsJob struct {
	logg    *logger.Logger
	creator conversionCreator
}

func (j *createConversionsJob) Name() string { return "create-conversions" }

func (j *createConversionsJob) Run(ctx context.Context) error {
	if _, err := j.creator.CreateConversions(ctx); err != nil {
		return fmt.Errorf("create conversions: %w", err)
	}
	return nil
}

// NewSubmitPendingJob submits accepted records for processing.
func NewSubmitPendingJob(logg *logger.Logger, submitter conversionSubmitter) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if submitter == nil {
		return nil, fmt.Errorf("submitter required")
	}
	return &submitPendingJob{logg: logg, submitter: submitter}, nil
}

type submitPendingJob struct {
	logg      *logger.Logger
	submitter conversionSubmitter
}

func (j *submitPendingJob) Name() string { return "submit-pending" }

func (j *submitPendingJob) Run(ctx context.Context) error {
	results, err := j.submitter.SubmitPending(ctx)
	if err != nil {
		return fmt.Errorf("submit pending conversions (%d handled): %w", len(results), err)
	}
	return nil
}

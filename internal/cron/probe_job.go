package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/convertflow/pkg/logger"
)

type mediaProber interface {
	ProbePending(ctx context.Context) (int, error)
}

// NewProbeJob extracts stream metadata for uploads that lack it.
func NewProbeJob(logg *logger.Logger, prober mediaProber) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if prober == nil {
		return nil, fmt.Errorf("prober required")
	}
	return &probeJob{logg: logg, prober: prober}, nil
}

type probeJob struct {
	logg   *logger.Logger
	prober mediaProber
}

func (j *probeJob) Name() string { return "probe-media" }

func (j *probeJob) Run(ctx context.Context) error {
	probed, err := j.prober.ProbePending(ctx)
	if err != nil {
		return fmt.Errorf("probe media: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "probed", probed), "media probe complete")
	return nil
}

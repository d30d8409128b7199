package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/convertflow/pkg/logger"
)

type notificationIngestor interface {
	PullAndStore(ctx context.Context) (int, error)
}

// NewIngestJob drains the notification subscription into the message store.
func NewIngestJob(logg *logger.Logger, ingestor notificationIngestor) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ingestor == nil {
		return nil, fmt.Errorf("ingestor required")
	}
	return &ingestJob{logg: logg, ingestor: ingestor}, nil
}

type ingestJob struct {
	logg     *logger.Logger
	ingestor notificationIngestor
}

func (j *ingestJob) Name() string { return "ingest-notifications" }

func (j *ingestJob) Run(ctx context.Context) error {
	stored, err := j.ingestor.PullAndStore(ctx)
	if err != nil {
		return fmt.Errorf("ingest notifications: %w", err)
	}
	j.logg.Debug(j.logg.WithField(ctx, "stored", stored), "notification ingest complete")
	return nil
}

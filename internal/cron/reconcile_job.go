package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/convertflow/pkg/logger"
)

type staleReconciler interface {
	Reconcile(ctx context.Context) error
}

// NewReconcileJob resolves conversions whose notifications were lost.
func NewReconcileJob(logg *logger.Logger, reconciler staleReconciler) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &reconcileJob{logg: logg, reconciler: reconciler}, nil
}

type reconcileJob struct {
	logg       *logger.Logger
	reconciler staleReconciler
}

func (j *reconcileJob) Name() string { return "reconcile-stale" }

func (j *reconcileJob) Run(ctx context.Context) error {
	if err := j.reconciler.Reconcile(ctx); err != nil {
		return fmt.Errorf("reconcile stale conversions: %w", err)
	}
	j.logg.Debug(ctx, "stale reconciliation pass complete")
	return nil
}

package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/logger"
	"github.com/google/uuid"
)

type fileRepository interface {
	ListUnprobed(ctx context.Context, limit int) ([]models.StoredFile, error)
	SaveStreamCounts(ctx context.Context, id uuid.UUID, video, audio int, at time.Time) error
}

type filePather interface {
	Path(file *models.StoredFile) string
}

// ProberParams wires a Prober.
type ProberParams struct {
	Logger    *logger.Logger
	Repo      fileRepository
	Files     filePather
	Inspector Inspector
	BatchSize int
	Now       func() time.Time
}

// Prober records stream counts for uploads that have not been inspected.
type Prober struct {
	logg      *logger.Logger
	repo      fileRepository
	files     filePather
	inspector Inspector
	batchSize int
	now       func() time.Time
}

// NewProber constructs a Prober.
func NewProber(params ProberParams) (*Prober, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("file repository required")
	}
	if params.Files == nil {
		return nil, fmt.Errorf("file store required")
	}
	if params.Inspector == nil {
		return nil, fmt.Errorf("inspector required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = 25
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Prober{
		logg:      params.Logger,
		repo:      params.Repo,
		files:     params.Files,
		inspector: params.Inspector,
		batchSize: batch,
		now:       now,
	}, nil
}

// ProbePending inspects one batch of unprobed uploads and returns how many were
// recorded. A file that fails to probe is logged and retried on the next run.
func (p *Prober) ProbePending(ctx context.Context) (int, error) {
	rows, err := p.repo.ListUnprobed(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list unprobed files: %w", err)
	}

	probed := 0
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return probed, err
		}
		file := &rows[i]
		fileCtx := p.logg.WithFields(ctx, map[string]any{
			"file_id": file.ID.String(),
			"locator": file.Locator,
		})

		result, err := p.inspector.Inspect(ctx, p.files.Path(file))
		if err != nil {
			p.logg.Error(fileCtx, "probe media failed", err)
			continue
		}
		video, audio := result.VideoStreamCount(), result.AudioStreamCount()
		if err := p.repo.SaveStreamCounts(ctx, file.ID, video, audio, p.now().UTC()); err != nil {
			return probed, fmt.Errorf("save stream counts: %w", err)
		}
		if video == 0 && audio == 0 {
			p.logg.Warn(fileCtx, "upload has no audio or video streams; it will not be converted")
		}
		probed++
	}
	return probed, nil
}

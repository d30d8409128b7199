// Package submission creates conversion records for probed uploads and hands
// accepted records to the external processing entry point.
package submission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/convertflow/internal/files"
	"github.com/angelmondragon/convertflow/internal/processes"
	"github.com/angelmondragon/convertflow/pkg/config"
	"github.com/angelmondragon/convertflow/pkg/db"
	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/convertflow/pkg/errors"
	"github.com/angelmondragon/convertflow/pkg/logger"
	"github.com/angelmondragon/convertflow/pkg/metrics"
)

// Metadata keys attached to the submitted input object.
const (
	MetaSettings = "settings"
	MetaPresets  = "presets"
	MetaSiteID   = "siteid"
	MetaFilename = "filename"
)

// Outcome of a single submission attempt.
type Outcome string

const (
	OutcomeSubmitted    Outcome = "submitted"
	OutcomeFailed       Outcome = "failed"
	OutcomeFileNotFound Outcome = "file_not_found"
)

// Result reports what happened to one accepted record.
type Result struct {
	ContentHash string
	Outcome     Outcome
}

type recordStore interface {
	Create(ctx context.Context, record *models.ConversionRecord, presets []models.PresetRecord) error
	ListByStatus(ctx context.Context, status enums.ConversionStatus, limit int) ([]models.ConversionRecord, error)
	PresetsFor(ctx context.Context, contentHash string) ([]models.PresetRecord, error)
	SaveStatuses(ctx context.Context, record *models.ConversionRecord) error
}

type candidateSource interface {
	ListUnconverted(ctx context.Context, since time.Time, limit int) ([]models.StoredFile, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.StoredFile, error)
}

type fileOpener interface {
	Open(ctx context.Context, file *models.StoredFile) (*os.File, error)
}

type inputStorage interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, contentType string, metadata map[string]string) error
}

// Params wires an Engine.
type Params struct {
	Logger           *logger.Logger
	Registry         *processes.Registry
	Records          recordStore
	Candidates       candidateSource
	Files            fileOpener
	Storage          inputStorage
	InputBucket      string
	SiteID           string
	EnabledProcesses []string
	Presets          []config.PresetSpec
	CreateCutoff     time.Duration
	Limit            int
	Metrics          *metrics.ConversionMetrics
	Now              func() time.Time
}

// Engine creates and submits conversions.
type Engine struct {
	logg        *logger.Logger
	registry    *processes.Registry
	records     recordStore
	candidates  candidateSource
	files       fileOpener
	storage     inputStorage
	inputBucket string
	siteID      string
	flags       processes.Flags
	presets     []config.PresetSpec
	cutoff      time.Duration
	limit       int
	metrics     *metrics.ConversionMetrics
	now         func() time.Time
}

// NewEngine validates params and constructs an Engine.
func NewEngine(params Params) (*Engine, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Records == nil {
		return nil, fmt.Errorf("record store required")
	}
	if params.Candidates == nil {
		return nil, fmt.Errorf("candidate source required")
	}
	if params.Files == nil {
		return nil, fmt.Errorf("file opener required")
	}
	if params.Storage == nil {
		return nil, fmt.Errorf("storage required")
	}
	if strings.TrimSpace(params.InputBucket) == "" {
		return nil, fmt.Errorf("input bucket required")
	}
	if strings.TrimSpace(params.SiteID) == "" {
		return nil, fmt.Errorf("site id required")
	}
	registry := params.Registry
	if registry == nil {
		registry = processes.Default()
	}
	flags, err := registry.FlagsFromIdentifiers(params.EnabledProcesses)
	if err != nil {
		return nil, fmt.Errorf("enabled processes: %w", err)
	}
	if !flags.Enabled(registry.Index(registry.Primary().Identifier)) {
		return nil, fmt.Errorf("primary process %s must be enabled", registry.Primary().Identifier)
	}
	if params.CreateCutoff <= 0 {
		return nil, fmt.Errorf("create cutoff must be positive")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 25
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		logg:        params.Logger,
		registry:    registry,
		records:     params.Records,
		candidates:  params.Candidates,
		files:       params.Files,
		storage:     params.Storage,
		inputBucket: params.InputBucket,
		siteID:      params.SiteID,
		flags:       flags,
		presets:     params.Presets,
		cutoff:      params.CreateCutoff,
		limit:       limit,
		metrics:     params.Metrics,
		now:         now,
	}, nil
}

// CreateConversions builds ACCEPTED records for probed uploads that have none.
// A record inserted concurrently by another worker is skipped silently.
func (e *Engine) CreateConversions(ctx context.Context) (int, error) {
	now := e.now().UTC()
	candidates, err := e.candidates.ListUnconverted(ctx, now.Add(-e.cutoff), e.limit)
	if err != nil {
		return 0, fmt.Errorf("list conversion candidates: %w", err)
	}

	var invalid error
	created, rejected := 0, 0
	for i := range candidates {
		if ctx.Err() != nil {
			break
		}
		file := &candidates[i]
		record, presets, err := e.BuildRecord(file, now)
		if err != nil {
			// Reported after the batch so the remaining candidates still get records.
			e.logg.Error(e.logg.WithContentHash(ctx, file.ContentHash), "conversion candidate rejected", err)
			invalid = multierr.Append(invalid, err)
			rejected++
			continue
		}
		if err := e.records.Create(ctx, record, presets); err != nil {
			if db.IsUniqueViolation(err) {
				e.logg.Debug(e.logg.WithContentHash(ctx, file.ContentHash), "conversion already created")
				continue
			}
			return created, fmt.Errorf("create conversion %s: %w", file.ContentHash, err)
		}
		created++
		e.metrics.IncConversion(metrics.ConversionCreated)
	}

	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"created":    created,
		"rejected":   rejected,
	}), "conversions created")
	return created, invalid
}

// BuildRecord derives the initial record and preset rows for a probed source.
func (e *Engine) BuildRecord(file *models.StoredFile, now time.Time) (*models.ConversionRecord, []models.PresetRecord, error) {
	hasVideo, hasAudio := file.HasVideo(), file.HasAudio()
	if !hasVideo && !hasAudio {
		return nil, nil, pkgerrors.New(pkgerrors.CodeInvariant, "source has neither audio nor video streams").
			WithDetails(map[string]any{"content_hash": file.ContentHash, "file_id": file.ID.String()})
	}

	record := &models.ConversionRecord{
		ContentHash:   file.ContentHash,
		PathHash:      file.PathHash,
		FileID:        file.ID,
		InputKey:      file.ContentHash,
		OverallStatus: enums.ConversionStatusAccepted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for idx, entry := range e.registry.Entries() {
		status := enums.ConversionStatusNotFound
		if e.flags.Enabled(idx) && !(entry.NeedsVideo() && !hasVideo) {
			status = enums.ConversionStatusAccepted
		}
		*record.StatusColumn(entry.StatusColumn) = status
	}

	var presets []models.PresetRecord
	for _, p := range e.presets {
		if p.Kind == config.PresetKindVideo && !hasVideo {
			continue
		}
		if p.Kind == config.PresetKindAudio && hasVideo && !hasAudio {
			continue
		}
		presets = append(presets, models.PresetRecord{
			ContentHash: file.ContentHash,
			PresetID:    p.ID,
			Container:   p.Container,
			Kind:        string(p.Kind),
		})
	}
	return record, presets, nil
}

// SubmitPending uploads every ACCEPTED record's source with its settings.
// Submission failures are terminal for the record and are not retried.
func (e *Engine) SubmitPending(ctx context.Context) ([]Result, error) {
	records, err := e.records.ListByStatus(ctx, enums.ConversionStatusAccepted, e.limit)
	if err != nil {
		return nil, fmt.Errorf("list accepted conversions: %w", err)
	}

	results := make([]Result, 0, len(records))
	counts := map[Outcome]int{}
	for i := range records {
		if ctx.Err() != nil {
			break
		}
		record := &records[i]
		outcome, err := e.submit(ctx, record)
		if err != nil {
			return results, err
		}
		counts[outcome]++
		results = append(results, Result{ContentHash: record.ContentHash, Outcome: outcome})
	}

	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"submitted":      counts[OutcomeSubmitted],
		"failed":         counts[OutcomeFailed],
		"file_not_found": counts[OutcomeFileNotFound],
	}), "pending conversions submitted")
	return results, nil
}

func (e *Engine) submit(ctx context.Context, record *models.ConversionRecord) (Outcome, error) {
	ctx = e.logg.WithContentHash(ctx, record.ContentHash)

	file, err := e.candidates.FindByID(ctx, record.FileID)
	if err != nil && !errors.Is(err, files.ErrNotFound) {
		return "", fmt.Errorf("load source for %s: %w", record.ContentHash, err)
	}
	var body *os.File
	if err == nil {
		body, err = e.files.Open(ctx, file)
		if err != nil && !errors.Is(err, files.ErrNotFound) {
			return "", fmt.Errorf("open source for %s: %w", record.ContentHash, err)
		}
	}
	if err != nil {
		e.logg.Warn(ctx, "source file missing, conversion not submitted")
		return OutcomeFileNotFound, e.finish(ctx, record, enums.ConversionStatusFileNotFound, metrics.ConversionFileNotFound)
	}
	defer body.Close()

	presets, err := e.records.PresetsFor(ctx, record.ContentHash)
	if err != nil {
		return "", fmt.Errorf("load presets for %s: %w", record.ContentHash, err)
	}
	metadata := map[string]string{
		MetaSettings: e.SettingsFor(record).Encode(),
		MetaPresets:  EncodePresets(presets),
		MetaSiteID:   e.siteID,
		MetaFilename: path.Base(file.Locator),
	}

	if err := e.storage.Put(ctx, e.inputBucket, record.InputKey, body, file.MimeType, metadata); err != nil {
		e.logg.Error(ctx, "submission rejected", err)
		for _, entry := range e.registry.Entries() {
			if col := record.StatusColumn(entry.StatusColumn); *col != enums.ConversionStatusNotFound {
				*col = enums.ConversionStatusError
			}
		}
		return OutcomeFailed, e.finish(ctx, record, enums.ConversionStatusError, metrics.ConversionFailed)
	}

	now := e.now().UTC()
	record.OverallStatus = enums.ConversionStatusInProgress
	record.SubmittedAt = &now
	record.UpdatedAt = now
	for _, entry := range e.registry.Entries() {
		if col := record.StatusColumn(entry.StatusColumn); *col == enums.ConversionStatusAccepted {
			*col = enums.ConversionStatusInProgress
		}
	}
	if err := e.records.SaveStatuses(ctx, record); err != nil {
		return "", fmt.Errorf("mark %s submitted: %w", record.ContentHash, err)
	}
	e.metrics.IncConversion(metrics.ConversionSubmitted)
	e.logg.Info(e.logg.WithField(ctx, "settings", metadata[MetaSettings]), "conversion submitted")
	return OutcomeSubmitted, nil
}

func (e *Engine) finish(ctx context.Context, record *models.ConversionRecord, status enums.ConversionStatus, event string) error {
	now := e.now().UTC()
	record.OverallStatus = status
	record.UpdatedAt = now
	record.CompletedAt = &now
	if err := e.records.SaveStatuses(ctx, record); err != nil {
		return fmt.Errorf("mark %s %s: %w", record.ContentHash, status, err)
	}
	e.metrics.IncConversion(event)
	return nil
}

// SettingsFor returns the flags of the sub-processes enabled on record.
func (e *Engine) SettingsFor(record *models.ConversionRecord) processes.Flags {
	flags := e.registry.NewFlags()
	for idx, entry := range e.registry.Entries() {
		if *record.StatusColumn(entry.StatusColumn) != enums.ConversionStatusNotFound {
			flags = flags.With(idx, true)
		}
	}
	return flags
}

// EncodePresets renders presets as comma separated presetID=container pairs.
func EncodePresets(presets []models.PresetRecord) string {
	pairs := make([]string, 0, len(presets))
	for _, p := range presets {
		pairs = append(pairs, p.PresetID+"="+p.Container)
	}
	return strings.Join(pairs, ",")
}

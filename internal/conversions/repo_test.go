package conversions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/convertflow/internal/processes"
	"github.com/angelmondragon/convertflow/pkg/db"
	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/enums"
)

func hashes(rows []models.ConversionRecord) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ContentHash)
	}
	return out
}

func TestCreateRejectsDuplicatePath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec := &models.ConversionRecord{
		ContentHash:   "h1",
		PathHash:      "p1",
		FileID:        uuid.New(),
		InputKey:      "h1",
		OverallStatus: enums.ConversionStatusAccepted,
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	}
	presets := []models.PresetRecord{{ContentHash: "h1", PresetID: "hls-720p", Container: "hls", Kind: "video"}}
	require.NoError(t, h.records.Create(ctx, rec, presets))

	dup := *rec
	dup.ContentHash = "h2"
	err := h.records.Create(ctx, &dup, []models.PresetRecord{{ContentHash: "h2", PresetID: "hls-720p", Container: "hls", Kind: "video"}})
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, "uq_conversion_records_path_hash"))

	got, err := h.records.PresetsFor(ctx, "h1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hls-720p", got[0].PresetID)

	none, err := h.records.PresetsFor(ctx, "h2")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = h.records.FindByContentHash(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveStatusesPersistsEveryColumn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.seed(t, "h1", baseTime, map[string]enums.ConversionStatus{"transcode_status": enums.ConversionStatusInProgress})

	done := baseTime.Add(time.Hour)
	rec.TranscodeStatus = enums.ConversionStatusFinished
	rec.KeyPhrasesStatus = enums.ConversionStatusError
	rec.OverallStatus = enums.ConversionStatusError
	rec.UpdatedAt = done
	rec.CompletedAt = &done
	require.NoError(t, h.records.SaveStatuses(ctx, rec))

	got := h.reload(t, "h1")
	assert.Equal(t, enums.ConversionStatusFinished, got.TranscodeStatus)
	assert.Equal(t, enums.ConversionStatusError, got.KeyPhrasesStatus)
	assert.Equal(t, enums.ConversionStatusError, got.OverallStatus)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))
}

func TestListAdvanceableMatchesOpenProcessesOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	open := enums.ConversionStatusInProgress

	h.seed(t, "ready", baseTime, map[string]enums.ConversionStatus{"transcode_status": open})
	h.notify(t, "ready", processes.Transcoder, enums.NotificationStatusSucceeded, baseTime)

	h.seed(t, "progress-only", baseTime.Add(time.Second), map[string]enums.ConversionStatus{"transcode_status": open})
	h.notify(t, "progress-only", processes.Transcoder, enums.NotificationStatusOther, baseTime)

	h.seed(t, "closed-process", baseTime.Add(2*time.Second), map[string]enums.ConversionStatus{
		"transcode_status":     enums.ConversionStatusFinished,
		"transcription_status": open,
	})
	h.notify(t, "closed-process", processes.Transcoder, enums.NotificationStatusSucceeded, baseTime)

	h.seed(t, "enrichment", baseTime.Add(3*time.Second), map[string]enums.ConversionStatus{
		"transcode_status":     enums.ConversionStatusFinished,
		"transcription_status": open,
	})
	h.notify(t, "enrichment", processes.Transcription, enums.NotificationStatusError, baseTime)

	rows, err := h.records.ListAdvanceable(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ready", "enrichment"}, hashes(rows))

	limited, err := h.records.ListAdvanceable(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"ready"}, hashes(limited))
}

func TestListStaleSelectsOnlySilentOldRecords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := baseTime
	cutoff := now.Add(-7 * 24 * time.Hour)
	open := map[string]enums.ConversionStatus{"transcode_status": enums.ConversionStatusInProgress}

	h.seed(t, "eight-days", now.Add(-8*24*time.Hour), open)
	h.seed(t, "six-days", now.Add(-6*24*time.Hour), open)

	h.seed(t, "has-message", now.Add(-9*24*time.Hour), open)
	h.notify(t, "has-message", processes.Transcoder, enums.NotificationStatusSucceeded, now)

	finished := h.seed(t, "finished", now.Add(-10*24*time.Hour), map[string]enums.ConversionStatus{
		"transcode_status": enums.ConversionStatusFinished,
	})
	finished.OverallStatus = enums.ConversionStatusFinished
	require.NoError(t, h.records.SaveStatuses(ctx, finished))

	rows, err := h.records.ListStale(ctx, cutoff, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"eight-days"}, hashes(rows))
}

func TestListByStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "a", baseTime, nil)
	h.seed(t, "b", baseTime.Add(time.Minute), nil)

	rows, err := h.records.ListByStatus(ctx, enums.ConversionStatusInProgress, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, hashes(rows))

	rows, err = h.records.ListByStatus(ctx, enums.ConversionStatusAccepted, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

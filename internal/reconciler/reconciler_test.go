package reconciler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/convertflow/internal/conversions"
	"github.com/angelmondragon/convertflow/internal/files"
	"github.com/angelmondragon/convertflow/internal/notifications"
	"github.com/angelmondragon/convertflow/internal/processes"
	"github.com/angelmondragon/convertflow/internal/testsupport"
	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/enums"
	"github.com/angelmondragon/convertflow/pkg/logger"
	"github.com/angelmondragon/convertflow/pkg/storage/gcs"
)

var now = time.Date(2026, 7, 20, 8, 0, 0, 0, time.UTC)

type memStorage struct {
	objects map[string]map[string]string
	listErr error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string]map[string]string{"in": {}, "out": {}}}
}

func (s *memStorage) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	body, ok := s.objects[bucket][key]
	if !ok {
		return nil, gcs.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader([]byte(body))), nil
}

func (s *memStorage) List(_ context.Context, bucket, prefix string) ([]gcs.Object, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []gcs.Object
	for key := range s.objects[bucket] {
		if strings.HasPrefix(key, prefix) {
			out = append(out, gcs.Object{Key: key})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *memStorage) Exists(_ context.Context, bucket, key string) (bool, error) {
	_, ok := s.objects[bucket][key]
	return ok, nil
}

func (s *memStorage) Delete(_ context.Context, bucket, key string) error {
	delete(s.objects[bucket], key)
	return nil
}

func (s *memStorage) DeleteBatch(ctx context.Context, bucket string, keys []string) error {
	for _, key := range keys {
		_ = s.Delete(ctx, bucket, key)
	}
	return nil
}

type env struct {
	reconciler *Reconciler
	records    *conversions.Repository
	messages   *notifications.Repository
	storage    *memStorage
}

func newEnv(t *testing.T) *env {
	t.Helper()
	client := testsupport.NewDB(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	registry := processes.Default()
	records := conversions.NewRepository(client.DB(), registry)
	messages := notifications.NewRepository(client.DB())
	storage := newMemStorage()

	store, err := files.NewStore(files.StoreParams{Repo: files.NewRepository(client.DB()), Root: t.TempDir(), Logger: logg})
	require.NoError(t, err)
	importer, err := conversions.NewResultImporter(conversions.ImporterParams{
		Logger: logg, Storage: storage, Bucket: "out", Files: store, ServeBaseURL: "/files",
	})
	require.NoError(t, err)
	cleaner, err := conversions.NewStorageCleaner(logg, storage, "in", "out")
	require.NoError(t, err)
	machine, err := conversions.NewMachine(conversions.MachineParams{
		Logger:   logg,
		Registry: registry,
		Records:  records,
		Messages: messages,
		Importer: importer,
		Cleaner:  cleaner,
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)

	rec, err := New(Params{
		Logger:       logg,
		Records:      records,
		Machine:      machine,
		Storage:      storage,
		OutputBucket: "out",
		StaleAfter:   7 * 24 * time.Hour,
		Limit:        10,
		Now:          func() time.Time { return now },
	})
	require.NoError(t, err)
	return &env{reconciler: rec, records: records, messages: messages, storage: storage}
}

func (e *env) seed(t *testing.T, hash string, age time.Duration, overall enums.ConversionStatus, statuses map[string]enums.ConversionStatus) {
	t.Helper()
	created := now.Add(-age)
	rec := &models.ConversionRecord{
		ContentHash:   hash,
		PathHash:      "path-" + hash,
		FileID:        uuid.New(),
		InputKey:      hash,
		OverallStatus: overall,
		CreatedAt:     created,
		UpdatedAt:     created,
		SubmittedAt:   &created,
	}
	for column, status := range statuses {
		*rec.StatusColumn(column) = status
	}
	require.NoError(t, e.records.Create(context.Background(), rec, nil))
	e.storage.objects["in"][hash] = "source"
}

func (e *env) get(t *testing.T, hash string) *models.ConversionRecord {
	t.Helper()
	rec, err := e.records.FindByContentHash(context.Background(), hash)
	require.NoError(t, err)
	return rec
}

const day = 24 * time.Hour

var transcoding = map[string]enums.ConversionStatus{"transcode_status": enums.ConversionStatusInProgress}

func TestReconcileOnlyTouchesStaleInProgressRecords(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "eight", 8*day, enums.ConversionStatusInProgress, transcoding)
	e.seed(t, "six", 6*day, enums.ConversionStatusInProgress, transcoding)
	e.seed(t, "done", 9*day, enums.ConversionStatusFinished, map[string]enums.ConversionStatus{
		"transcode_status": enums.ConversionStatusFinished,
	})
	for _, hash := range []string{"eight", "six", "done"} {
		e.storage.objects["out"][hash+"/transcoded/index.m3u8"] = "#EXTM3U\nseg.ts\n"
	}

	require.NoError(t, e.reconciler.Reconcile(context.Background()))

	eight := e.get(t, "eight")
	assert.Equal(t, enums.ConversionStatusFinished, eight.OverallStatus)
	assert.Equal(t, enums.ConversionStatusFinished, eight.TranscodeStatus)
	assert.NotContains(t, e.storage.objects["in"], "eight")
	assert.NotContains(t, e.storage.objects["out"], "eight/transcoded/index.m3u8")

	assert.Equal(t, enums.ConversionStatusInProgress, e.get(t, "six").OverallStatus)
	assert.Contains(t, e.storage.objects["in"], "six")
	assert.Equal(t, enums.ConversionStatusFinished, e.get(t, "done").OverallStatus)
	assert.Contains(t, e.storage.objects["in"], "done")
}

func TestReconcileSkipsRecordsWithPendingNotifications(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "h1", 8*day, enums.ConversionStatusInProgress, transcoding)
	_, err := e.messages.InsertBatch(context.Background(), nil, []models.NotificationMessage{{
		MessageHash: "m1", SiteID: "site-a", ObjectKey: "h1", Process: string(processes.Transcoder),
		Status: enums.NotificationStatusError, RawStatus: "ERROR", Payload: "{}", ReceivedAt: now,
	}})
	require.NoError(t, err)

	require.NoError(t, e.reconciler.Reconcile(context.Background()))
	assert.Equal(t, enums.ConversionStatusInProgress, e.get(t, "h1").OverallStatus)
}

func TestReconcileMissingPrimaryOutputCascades(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "h1", 8*day, enums.ConversionStatusInProgress, map[string]enums.ConversionStatus{
		"transcode_status":     enums.ConversionStatusInProgress,
		"transcription_status": enums.ConversionStatusInProgress,
	})
	e.storage.objects["out"]["h1/transcript.json"] = `{"text":"hi"}`

	require.NoError(t, e.reconciler.Reconcile(context.Background()))

	rec := e.get(t, "h1")
	assert.Equal(t, enums.ConversionStatusError, rec.OverallStatus)
	assert.Equal(t, enums.ConversionStatusError, rec.TranscodeStatus)
	assert.Equal(t, enums.ConversionStatusError, rec.TranscriptionStatus)
	require.NotNil(t, rec.CompletedAt)
	assert.Contains(t, e.storage.objects["in"], "h1")
}

func TestReconcileResolvesEnrichmentsIndependently(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "h1", 8*day, enums.ConversionStatusInProgress, map[string]enums.ConversionStatus{
		"transcode_status":     enums.ConversionStatusInProgress,
		"transcription_status": enums.ConversionStatusInProgress,
		"key_phrases_status":   enums.ConversionStatusInProgress,
	})
	e.storage.objects["out"]["h1/transcoded/video.mp4"] = "bytes"
	e.storage.objects["out"]["h1/transcript.json"] = `{"text":"hi"}`

	require.NoError(t, e.reconciler.Reconcile(context.Background()))

	rec := e.get(t, "h1")
	assert.Equal(t, enums.ConversionStatusFinished, rec.TranscodeStatus)
	assert.Equal(t, enums.ConversionStatusFinished, rec.TranscriptionStatus)
	assert.Equal(t, enums.ConversionStatusError, rec.KeyPhrasesStatus)
	assert.Equal(t, enums.ConversionStatusError, rec.OverallStatus)
}

func TestSynthesizeTreatsPollFailureAsAbsence(t *testing.T) {
	e := newEnv(t)
	e.storage.listErr = errors.New("storage unavailable")
	rec := &models.ConversionRecord{
		ContentHash:         "h1",
		OverallStatus:       enums.ConversionStatusInProgress,
		TranscodeStatus:     enums.ConversionStatusInProgress,
		TranscriptionStatus: enums.ConversionStatusFinished,
	}

	events := e.reconciler.Synthesize(context.Background(), rec)
	require.Len(t, events, 1)
	assert.Equal(t, processes.Transcoder, events[0].Process)
	assert.Equal(t, enums.NotificationStatusError, events[0].Status)
	assert.True(t, events[0].Synthesized)
}

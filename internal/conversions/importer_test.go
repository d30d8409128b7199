package conversions

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/convertflow/internal/files"
	"github.com/angelmondragon/convertflow/internal/processes"
	"github.com/angelmondragon/convertflow/internal/testsupport"
	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/storage/gcs"
)

type fakeStorage struct {
	objects map[string]map[string][]byte
	deleted map[string][]string
	failDel map[string]bool
	listErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		objects: map[string]map[string][]byte{},
		deleted: map[string][]string{},
		failDel: map[string]bool{},
	}
}

func (s *fakeStorage) put(bucket, key, body string) {
	if s.objects[bucket] == nil {
		s.objects[bucket] = map[string][]byte{}
	}
	s.objects[bucket][key] = []byte(body)
}

func (s *fakeStorage) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	data, ok := s.objects[bucket][key]
	if !ok {
		return nil, gcs.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStorage) List(_ context.Context, bucket, prefix string) ([]gcs.Object, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []gcs.Object
	for key, data := range s.objects[bucket] {
		if strings.HasPrefix(key, prefix) {
			out = append(out, gcs.Object{Key: key, Size: uint64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *fakeStorage) Delete(_ context.Context, bucket, key string) error {
	if s.failDel[key] {
		return errors.New("permission denied")
	}
	delete(s.objects[bucket], key)
	s.deleted[bucket] = append(s.deleted[bucket], key)
	return nil
}

func (s *fakeStorage) DeleteBatch(ctx context.Context, bucket string, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := s.Delete(ctx, bucket, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newTestImporter(t *testing.T, storage *fakeStorage) (*ResultImporter, *files.Store) {
	t.Helper()
	client := testsupport.NewDB(t)
	store, err := files.NewStore(files.StoreParams{
		Repo:   files.NewRepository(client.DB()),
		Root:   t.TempDir(),
		Logger: testLogger(),
	})
	require.NoError(t, err)
	imp, err := NewResultImporter(ImporterParams{
		Logger:       testLogger(),
		Storage:      storage,
		Bucket:       "out",
		Files:        store,
		ServeBaseURL: "https://media.example.com/files/",
	})
	require.NoError(t, err)
	return imp, store
}

func TestRewritePlaylistResolvesRelativeReferences(t *testing.T) {
	in := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-VERSION:7",
		`#EXT-X-MAP:URI="init.mp4"`,
		`#EXT-X-KEY:METHOD=AES-128,URI="https://keys.example.com/k1"`,
		"#EXTINF:6.0,",
		"segment_000.m4s",
		"#EXTINF:6.0,",
		"../shared/segment_001.m4s?v=2",
		"",
		"https://cdn.example.com/abs.ts",
		"#EXT-X-ENDLIST",
	}, "\r\n")

	out, err := RewritePlaylist(strings.NewReader(in), "https://media.example.com/files/conversions/h1/transcoded/hls")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(out), "\n"), "\n")
	assert.Equal(t, []string{
		"#EXTM3U",
		"#EXT-X-VERSION:7",
		`#EXT-X-MAP:URI="https://media.example.com/files/conversions/h1/transcoded/hls/init.mp4"`,
		`#EXT-X-KEY:METHOD=AES-128,URI="https://keys.example.com/k1"`,
		"#EXTINF:6.0,",
		"https://media.example.com/files/conversions/h1/transcoded/hls/segment_000.m4s",
		"#EXTINF:6.0,",
		"https://media.example.com/files/conversions/h1/transcoded/shared/segment_001.m4s?v=2",
		"",
		"https://cdn.example.com/abs.ts",
		"#EXT-X-ENDLIST",
	}, lines)
}

func TestImportPrimaryCopiesEveryArtifact(t *testing.T) {
	storage := newFakeStorage()
	storage.put("out", "h1/transcoded/hls/index.m3u8", "#EXTM3U\nseg0.ts\n")
	storage.put("out", "h1/transcoded/hls/seg0.ts", "video-bytes")
	storage.put("out", "h1/labels.json", `{"labels":[]}`)
	imp, store := newTestImporter(t, storage)
	ctx := context.Background()
	rec := &models.ConversionRecord{ContentHash: "h1"}
	primary, _ := processes.Default().Lookup(processes.Transcoder)

	require.NoError(t, imp.Import(ctx, rec, primary))

	playlist, err := store.GetByLocator(ctx, "conversions/h1/transcoded/hls/index.m3u8")
	require.NoError(t, err)
	data, err := os.ReadFile(store.Path(playlist))
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\nhttps://media.example.com/files/conversions/h1/transcoded/hls/seg0.ts\n", string(data))

	_, err = store.GetByLocator(ctx, "conversions/h1/transcoded/hls/seg0.ts")
	require.NoError(t, err)
	_, err = store.GetByLocator(ctx, "conversions/h1/labels.json")
	assert.ErrorIs(t, err, files.ErrNotFound)

	// A redelivered notification finds everything already imported.
	assert.ErrorIs(t, imp.Import(ctx, rec, primary), files.ErrAlreadyExists)
}

func TestImportPrimaryWithoutArtifactsFails(t *testing.T) {
	imp, _ := newTestImporter(t, newFakeStorage())
	primary, _ := processes.Default().Lookup(processes.Transcoder)

	err := imp.Import(context.Background(), &models.ConversionRecord{ContentHash: "h1"}, primary)
	assert.ErrorIs(t, err, ErrNoArtifacts)
}

func TestImportEnrichmentResult(t *testing.T) {
	storage := newFakeStorage()
	storage.put("out", "h1/transcript.json", `{"text":"hello"}`)
	imp, store := newTestImporter(t, storage)
	ctx := context.Background()
	rec := &models.ConversionRecord{ContentHash: "h1"}
	entry, _ := processes.Default().Lookup(processes.Transcription)

	require.NoError(t, imp.Import(ctx, rec, entry))
	file, err := store.GetByLocator(ctx, "conversions/h1/transcript.json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", file.MimeType)

	assert.ErrorIs(t, imp.Import(ctx, rec, entry), files.ErrAlreadyExists)

	missing, _ := processes.Default().Lookup(processes.SentimentAnalysis)
	assert.ErrorIs(t, imp.Import(ctx, rec, missing), gcs.ErrObjectNotFound)
}

package conversions

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/angelmondragon/convertflow/internal/files"
	"github.com/angelmondragon/convertflow/internal/processes"
	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/enums"
	"github.com/angelmondragon/convertflow/pkg/logger"
	"github.com/angelmondragon/convertflow/pkg/storage/gcs"
)

// ImportLocatorPrefix namespaces imported artifacts inside the file store.
const ImportLocatorPrefix = "conversions"

// ErrNoArtifacts is returned when the primary output prefix holds no objects.
var ErrNoArtifacts = errors.New("no conversion artifacts found")

type outputStorage interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	List(ctx context.Context, bucket, prefix string) ([]gcs.Object, error)
}

type artifactStore interface {
	CreateFromReader(ctx context.Context, locator string, r io.Reader, origin enums.FileOrigin) (*models.StoredFile, error)
}

// ImporterParams wires a ResultImporter.
type ImporterParams struct {
	Logger       *logger.Logger
	Storage      outputStorage
	Bucket       string
	Files        artifactStore
	ServeBaseURL string
}

// ResultImporter copies sub-process results from output storage into the file store.
type ResultImporter struct {
	logg         *logger.Logger
	storage      outputStorage
	bucket       string
	files        artifactStore
	serveBaseURL string
}

func NewResultImporter(params ImporterParams) (*ResultImporter, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Storage == nil {
		return nil, fmt.Errorf("storage required")
	}
	if strings.TrimSpace(params.Bucket) == "" {
		return nil, fmt.Errorf("output bucket required")
	}
	if params.Files == nil {
		return nil, fmt.Errorf("file store required")
	}
	return &ResultImporter{
		logg:         params.Logger,
		storage:      params.Storage,
		bucket:       params.Bucket,
		files:        params.Files,
		serveBaseURL: strings.TrimRight(params.ServeBaseURL, "/"),
	}, nil
}

// Import fetches the result for entry. A result that was already imported
// yields files.ErrAlreadyExists.
func (i *ResultImporter) Import(ctx context.Context, record *models.ConversionRecord, entry processes.Entry) error {
	if entry.IsPrimary() {
		return i.importPrefix(ctx, entry.ResultKey(record.ContentHash))
	}
	return i.importObject(ctx, entry.ResultKey(record.ContentHash))
}

func (i *ResultImporter) importObject(ctx context.Context, key string) error {
	body, err := i.storage.Get(ctx, i.bucket, key)
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	defer body.Close()

	if _, err := i.files.CreateFromReader(ctx, path.Join(ImportLocatorPrefix, key), body, enums.FileOriginConversion); err != nil {
		return err
	}
	return nil
}

func (i *ResultImporter) importPrefix(ctx context.Context, prefix string) error {
	objects, err := i.storage.List(ctx, i.bucket, prefix)
	if err != nil {
		return fmt.Errorf("list %s: %w", prefix, err)
	}
	if len(objects) == 0 {
		return fmt.Errorf("%w under %s", ErrNoArtifacts, prefix)
	}

	imported, existing := 0, 0
	for _, obj := range objects {
		err := i.importArtifact(ctx, obj.Key)
		switch {
		case err == nil:
			imported++
		case errors.Is(err, files.ErrAlreadyExists):
			existing++
		default:
			return err
		}
	}

	i.logg.Info(i.logg.WithFields(ctx, map[string]any{
		"prefix":   prefix,
		"imported": imported,
		"existing": existing,
	}), "conversion artifacts imported")

	if imported == 0 {
		return files.ErrAlreadyExists
	}
	return nil
}

func (i *ResultImporter) importArtifact(ctx context.Context, key string) error {
	locator := path.Join(ImportLocatorPrefix, key)
	body, err := i.storage.Get(ctx, i.bucket, key)
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	defer body.Close()

	var src io.Reader = body
	if strings.HasSuffix(strings.ToLower(key), ".m3u8") {
		rewritten, err := RewritePlaylist(body, i.serveBaseURL+"/"+path.Dir(locator))
		if err != nil {
			return fmt.Errorf("rewrite playlist %s: %w", key, err)
		}
		src = bytes.NewReader(rewritten)
	}
	_, err = i.files.CreateFromReader(ctx, locator, src, enums.FileOriginConversion)
	return err
}

var uriAttr = regexp.MustCompile(`URI="([^"]*)"`)

// RewritePlaylist resolves every relative media reference in an HLS playlist
// against base. Absolute URLs and root-relative paths are left untouched.
func RewritePlaylist(r io.Reader, base string) ([]byte, error) {
	baseURL, err := url.Parse(strings.TrimRight(base, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	var out bytes.Buffer
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
		case strings.HasPrefix(trimmed, "#"):
			line = uriAttr.ReplaceAllStringFunc(line, func(m string) string {
				uri := uriAttr.FindStringSubmatch(m)[1]
				return `URI="` + resolveURI(baseURL, uri) + `"`
			})
		default:
			line = resolveURI(baseURL, trimmed)
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func resolveURI(base *url.URL, uri string) string {
	if uri == "" || strings.HasPrefix(uri, "/") {
		return uri
	}
	ref, err := url.Parse(uri)
	if err != nil || ref.IsAbs() {
		return uri
	}
	return base.ResolveReference(ref).String()
}

// Package files stores source uploads and imported conversion artifacts on the
// local filesystem, with one metadata row per file.
package files

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/angelmondragon/convertflow/pkg/db"
	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/enums"
	"github.com/angelmondragon/convertflow/pkg/logger"
)

var (
	// ErrAlreadyExists is returned when a locator is already taken.
	ErrAlreadyExists = errors.New("file already exists")
	// ErrNotFound is returned when no file matches, or its bytes are gone.
	ErrNotFound = errors.New("file not found")
)

const pathHashConstraint = "uq_stored_files_path_hash"

// StoreParams wires the file store.
type StoreParams struct {
	Repo   *Repository
	Root   string
	Logger *logger.Logger
	Now    func() time.Time
}

// Store writes file bytes atomically under Root and tracks them in the database.
type Store struct {
	repo *Repository
	root string
	logg *logger.Logger
	now  func() time.Time
}

// NewStore constructs a Store.
func NewStore(params StoreParams) (*Store, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("file repository required")
	}
	if strings.TrimSpace(params.Root) == "" {
		return nil, fmt.Errorf("files root required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		repo: params.Repo,
		root: params.Root,
		logg: params.Logger,
		now:  now,
	}, nil
}

// CreateFromBytes stores data under locator.
func (s *Store) CreateFromBytes(ctx context.Context, locator string, data []byte, origin enums.FileOrigin) (*models.StoredFile, error) {
	return s.CreateFromReader(ctx, locator, bytes.NewReader(data), origin)
}

// CreateFromPath copies the file at src under locator.
func (s *Store) CreateFromPath(ctx context.Context, locator, src string, origin enums.FileOrigin) (*models.StoredFile, error) {
	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, src)
		}
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	return s.CreateFromReader(ctx, locator, f, origin)
}

// CreateFromReader streams r under locator and records it. A locator that is
// already stored yields ErrAlreadyExists.
func (s *Store) CreateFromReader(ctx context.Context, locator string, r io.Reader, origin enums.FileOrigin) (*models.StoredFile, error) {
	clean, err := cleanLocator(locator)
	if err != nil {
		return nil, err
	}
	if !origin.IsValid() {
		return nil, fmt.Errorf("invalid file origin %q", origin)
	}

	pathHash := HashString(clean)
	if _, err := s.repo.FindByPathHash(ctx, pathHash); err == nil {
		return nil, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup locator: %w", err)
	}

	target := s.pathFor(clean)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("create file directory: %w", err)
	}

	pending, err := renameio.NewPendingFile(target, renameio.WithPermissions(0o644))
	if err != nil {
		return nil, fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"locator": clean, "error": err.Error()}), "cleanup pending file")
		}
	}()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(pending, hasher), r)
	if err != nil {
		return nil, fmt.Errorf("write file data: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("atomically replace file: %w", err)
	}

	file := &models.StoredFile{
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
		PathHash:    pathHash,
		Locator:     clean,
		Origin:      origin,
		MimeType:    DetectMimeType(clean),
		SizeBytes:   size,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, file); err != nil {
		// A concurrent writer stored the same locator first.
		if db.IsUniqueViolation(err, pathHashConstraint) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("insert stored file: %w", err)
	}
	return file, nil
}

// GetByHash returns the source file with the given content hash.
func (s *Store) GetByHash(ctx context.Context, contentHash string) (*models.StoredFile, error) {
	return s.repo.FindByContentHash(ctx, contentHash)
}

// GetByLocator returns the file stored under locator.
func (s *Store) GetByLocator(ctx context.Context, locator string) (*models.StoredFile, error) {
	clean, err := cleanLocator(locator)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByPathHash(ctx, HashString(clean))
}

// Open returns a reader over the file bytes. Missing bytes yield ErrNotFound.
func (s *Store) Open(_ context.Context, file *models.StoredFile) (*os.File, error) {
	if file == nil {
		return nil, ErrNotFound
	}
	f, err := os.Open(s.Path(file))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, file.Locator)
		}
		return nil, err
	}
	return f, nil
}

// Path returns the absolute filesystem path of a stored file.
func (s *Store) Path(file *models.StoredFile) string {
	return s.pathFor(file.Locator)
}

func (s *Store) pathFor(locator string) string {
	return filepath.Join(s.root, filepath.FromSlash(locator))
}

// HashString returns the hex sha256 of value.
func HashString(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func cleanLocator(locator string) (string, error) {
	trimmed := strings.TrimSpace(filepath.ToSlash(locator))
	if trimmed == "" {
		return "", fmt.Errorf("locator required")
	}
	if strings.HasPrefix(trimmed, "/") {
		return "", fmt.Errorf("locator %q must be relative", locator)
	}
	clean := path.Clean(trimmed)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("locator %q escapes the files root", locator)
	}
	return clean, nil
}

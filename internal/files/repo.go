package files

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes stored file persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a stored file repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a stored file record.
func (r *Repository) Create(ctx context.Context, file *models.StoredFile) error {
	return r.db.WithContext(ctx).Create(file).Error
}

// FindByPathHash returns the file stored under a locator hash.
func (r *Repository) FindByPathHash(ctx context.Context, pathHash string) (*models.StoredFile, error) {
	var f models.StoredFile
	if err := r.db.WithContext(ctx).First(&f, "path_hash = ?", pathHash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// FindByContentHash returns the oldest file with the given content, preferring uploads.
func (r *Repository) FindByContentHash(ctx context.Context, contentHash string) (*models.StoredFile, error) {
	var f models.StoredFile
	err := r.db.WithContext(ctx).
		Where("content_hash = ?", contentHash).
		Order("CASE WHEN origin = '" + string(enums.FileOriginUpload) + "' THEN 0 ELSE 1 END").
		Order("created_at ASC").
		First(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// FindByID returns a stored file by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.StoredFile, error) {
	var f models.StoredFile
	if err := r.db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// ListUnprobed returns uploads whose media metadata has not been extracted yet.
func (r *Repository) ListUnprobed(ctx context.Context, limit int) ([]models.StoredFile, error) {
	var rows []models.StoredFile
	err := r.db.WithContext(ctx).
		Where("origin = ? AND metadata_extracted_at IS NULL", enums.FileOriginUpload).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// SaveStreamCounts records probe results for a file.
func (r *Repository) SaveStreamCounts(ctx context.Context, id uuid.UUID, video, audio int, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.StoredFile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"video_streams":         video,
			"audio_streams":         audio,
			"metadata_extracted_at": at,
		}).Error
}

// ListUnconverted returns probed uploads created after since that have at least one
// audio or video stream and no conversion record for their content. Each content
// hash appears once.
func (r *Repository) ListUnconverted(ctx context.Context, since time.Time, limit int) ([]models.StoredFile, error) {
	var rows []models.StoredFile
	err := r.db.WithContext(ctx).
		Where("stored_files.origin = ?", enums.FileOriginUpload).
		Where("stored_files.metadata_extracted_at IS NOT NULL").
		Where("COALESCE(stored_files.video_streams, 0) + COALESCE(stored_files.audio_streams, 0) > 0").
		Where("stored_files.created_at > ?", since).
		Where("NOT EXISTS (SELECT 1 FROM conversion_records cr WHERE cr.content_hash = stored_files.content_hash)").
		Order("stored_files.created_at ASC").
		Limit(limit * 2).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0]
	for _, row := range rows {
		if _, dup := seen[row.ContentHash]; dup {
			continue
		}
		seen[row.ContentHash] = struct{}{}
		out = append(out, row)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

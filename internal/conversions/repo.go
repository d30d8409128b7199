package conversions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/convertflow/internal/processes"
	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/enums"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no conversion record matches.
var ErrNotFound = errors.New("conversion record not found")

// Repository persists conversion records and their presets.
type Repository struct {
	db       *gorm.DB
	registry *processes.Registry
}

// NewRepository constructs a conversion repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB, registry *processes.Registry) *Repository {
	if registry == nil {
		registry = processes.Default()
	}
	return &Repository{db: db, registry: registry}
}

// Create inserts a record and its presets atomically.
func (r *Repository) Create(ctx context.Context, record *models.ConversionRecord, presets []models.PresetRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		if len(presets) == 0 {
			return nil
		}
		return tx.Create(&presets).Error
	})
}

// FindByContentHash returns the record for a content hash.
func (r *Repository) FindByContentHash(ctx context.Context, contentHash string) (*models.ConversionRecord, error) {
	var rec models.ConversionRecord
	if err := r.db.WithContext(ctx).First(&rec, "content_hash = ?", contentHash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// PresetsFor returns the presets requested for a conversion, ordered by id.
func (r *Repository) PresetsFor(ctx context.Context, contentHash string) ([]models.PresetRecord, error) {
	var rows []models.PresetRecord
	err := r.db.WithContext(ctx).
		Where("content_hash = ?", contentHash).
		Order("preset_id ASC").
		Find(&rows).Error
	return rows, err
}

// SaveStatuses writes the overall status, every sub-process status and the
// lifecycle timestamps of a single record.
func (r *Repository) SaveStatuses(ctx context.Context, record *models.ConversionRecord) error {
	updates := map[string]any{
		"overall_status": record.OverallStatus,
		"updated_at":     record.UpdatedAt,
		"submitted_at":   record.SubmittedAt,
		"completed_at":   record.CompletedAt,
	}
	for _, entry := range r.registry.Entries() {
		if col := record.StatusColumn(entry.StatusColumn); col != nil {
			updates[entry.StatusColumn] = *col
		}
	}
	return r.db.WithContext(ctx).
		Model(&models.ConversionRecord{}).
		Where("content_hash = ?", record.ContentHash).
		Updates(updates).Error
}

// ListByStatus returns up to limit records with the given overall status, oldest first.
func (r *Repository) ListByStatus(ctx context.Context, status enums.ConversionStatus, limit int) ([]models.ConversionRecord, error) {
	var rows []models.ConversionRecord
	err := r.db.WithContext(ctx).
		Where("overall_status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListAdvanceable returns in-progress records with at least one terminal
// notification for a sub-process that is still open. Least recently touched
// records come first, so records with a failing import rotate behind the rest.
func (r *Repository) ListAdvanceable(ctx context.Context, limit int) ([]models.ConversionRecord, error) {
	cond, args := r.pendingMessageCondition()
	var rows []models.ConversionRecord
	err := r.db.WithContext(ctx).
		Where("overall_status = ?", enums.ConversionStatusInProgress).
		Where("EXISTS ("+cond+")", args...).
		Order("updated_at ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListStale returns in-progress records created before cutoff that have no
// terminal notification for any open sub-process.
func (r *Repository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]models.ConversionRecord, error) {
	cond, args := r.pendingMessageCondition()
	var rows []models.ConversionRecord
	err := r.db.WithContext(ctx).
		Where("overall_status = ?", enums.ConversionStatusInProgress).
		Where("created_at < ?", cutoff).
		Where("NOT EXISTS ("+cond+")", args...).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// pendingMessageCondition builds the correlated subquery matching a terminal
// notification whose process column on the outer record is still open.
func (r *Repository) pendingMessageCondition() (string, []any) {
	open := enums.OpenConversionStatuses()
	var (
		parts []string
		args  []any
	)
	args = append(args, enums.TerminalNotificationStatuses())
	for _, entry := range r.registry.Entries() {
		parts = append(parts, "(nm.process = ? AND conversion_records."+entry.StatusColumn+" IN ?)")
		args = append(args, string(entry.Identifier), open)
	}
	sql := "SELECT 1 FROM notification_messages nm" +
		" WHERE nm.object_key = conversion_records.content_hash" +
		" AND nm.status IN ?" +
		" AND (" + strings.Join(parts, " OR ") + ")"
	return sql, args
}

package notifications

import (
	"context"

	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/enums"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// hashChunkSize bounds the IN list of a single existence query.
const hashChunkSize = 500

// Repository persists and reads notification messages.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a notification repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// ExistingHashes returns the subset of hashes already stored.
func (r *Repository) ExistingHashes(ctx context.Context, tx *gorm.DB, hashes []string) (map[string]struct{}, error) {
	found := make(map[string]struct{}, len(hashes))
	for start := 0; start < len(hashes); start += hashChunkSize {
		end := start + hashChunkSize
		if end > len(hashes) {
			end = len(hashes)
		}
		var rows []string
		if err := r.conn(ctx, tx).
			Model(&models.NotificationMessage{}).
			Where("message_hash IN ?", hashes[start:end]).
			Pluck("message_hash", &rows).Error; err != nil {
			return nil, err
		}
		for _, h := range rows {
			found[h] = struct{}{}
		}
	}
	return found, nil
}

// InsertBatch appends messages, skipping any hash already present. It returns
// the number of rows written.
func (r *Repository) InsertBatch(ctx context.Context, tx *gorm.DB, rows []models.NotificationMessage) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := r.conn(ctx, tx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "message_hash"}}, DoNothing: true}).
		CreateInBatches(rows, 100)
	return res.RowsAffected, res.Error
}

// ListTerminal returns success and error notifications for objectKey from the
// given processes, in application order.
func (r *Repository) ListTerminal(ctx context.Context, objectKey string, processes []string) ([]models.NotificationMessage, error) {
	if len(processes) == 0 {
		return nil, nil
	}
	var rows []models.NotificationMessage
	err := r.db.WithContext(ctx).
		Where("object_key = ?", objectKey).
		Where("process IN ?", processes).
		Where("status IN ?", enums.TerminalNotificationStatuses()).
		Order("received_at ASC").
		Order("vendor_timestamp ASC").
		Order("message_hash ASC").
		Find(&rows).Error
	return rows, err
}

package conversions

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/logger"
	"github.com/angelmondragon/convertflow/pkg/storage/gcs"
)

type cleanupStorage interface {
	List(ctx context.Context, bucket, prefix string) ([]gcs.Object, error)
	Delete(ctx context.Context, bucket, key string) error
	DeleteBatch(ctx context.Context, bucket string, keys []string) error
}

// StorageCleaner removes the source and derived objects of a finished conversion.
type StorageCleaner struct {
	logg         *logger.Logger
	storage      cleanupStorage
	inputBucket  string
	outputBucket string
}

func NewStorageCleaner(logg *logger.Logger, storage cleanupStorage, inputBucket, outputBucket string) (*StorageCleaner, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if storage == nil {
		return nil, fmt.Errorf("storage required")
	}
	if inputBucket == "" || outputBucket == "" {
		return nil, fmt.Errorf("input and output buckets required")
	}
	return &StorageCleaner{logg: logg, storage: storage, inputBucket: inputBucket, outputBucket: outputBucket}, nil
}

// Cleanup deletes the input object and every output object under the content
// hash. Each deletion is attempted; failures are combined and not retried.
func (c *StorageCleaner) Cleanup(ctx context.Context, record *models.ConversionRecord) error {
	var errs error
	inputKey := record.InputKey
	if inputKey == "" {
		inputKey = record.ContentHash
	}
	if err := c.storage.Delete(ctx, c.inputBucket, inputKey); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("delete input %s: %w", inputKey, err))
	}

	// Registry result suffixes all start with "/", so this prefix covers every output
	// and never matches another hash that merely shares leading characters.
	objects, err := c.storage.List(ctx, c.outputBucket, record.ContentHash+"/")
	if err != nil {
		return multierr.Append(errs, fmt.Errorf("list outputs: %w", err))
	}
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	if len(keys) > 0 {
		if err := c.storage.DeleteBatch(ctx, c.outputBucket, keys); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	c.logg.Debug(c.logg.WithFields(ctx, map[string]any{
		"input_key": inputKey,
		"outputs":   len(keys),
	}), "conversion objects cleaned up")
	return errs
}

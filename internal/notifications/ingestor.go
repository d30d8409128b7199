// Package notifications drains completion notifications from the queue into
// an append-only, deduplicated message store.
package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/enums"
	"github.com/angelmondragon/convertflow/pkg/logger"
	"github.com/angelmondragon/convertflow/pkg/metrics"
	"github.com/angelmondragon/convertflow/pkg/pubsub"
	"gorm.io/gorm"
)

const (
	defaultReceiveBatch = 10
	defaultMaxMessages  = 100
	defaultQueueWait    = 5 * time.Second
)

type queue interface {
	Receive(ctx context.Context, max int, wait time.Duration) ([]pubsub.Message, error)
	Delete(ctx context.Context, ackIDs ...string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type messageRepository interface {
	ExistingHashes(ctx context.Context, tx *gorm.DB, hashes []string) (map[string]struct{}, error)
	InsertBatch(ctx context.Context, tx *gorm.DB, rows []models.NotificationMessage) (int64, error)
}

// IngestorParams wires an Ingestor.
type IngestorParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Repo        messageRepository
	Queue       queue
	Metrics     *metrics.ConversionMetrics
	SiteID      string
	MaxMessages int
	BatchSize   int
	Wait        time.Duration
}

// Ingestor moves notifications from the queue into the message store.
type Ingestor struct {
	logg        *logger.Logger
	db          txRunner
	repo        messageRepository
	queue       queue
	metrics     *metrics.ConversionMetrics
	siteID      string
	maxMessages int
	batchSize   int
	wait        time.Duration
	now         func() time.Time
}

// NewIngestor validates params and constructs an Ingestor.
func NewIngestor(params IngestorParams) (*Ingestor, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("message repository required")
	}
	if params.Queue == nil {
		return nil, fmt.Errorf("queue required")
	}
	if strings.TrimSpace(params.SiteID) == "" {
		return nil, fmt.Errorf("site id required")
	}
	maxMessages := params.MaxMessages
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	batch := params.BatchSize
	if batch <= 0 || batch > defaultReceiveBatch {
		batch = defaultReceiveBatch
	}
	wait := params.Wait
	if wait <= 0 {
		wait = defaultQueueWait
	}
	return &Ingestor{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repo,
		queue:       params.Queue,
		metrics:     params.Metrics,
		siteID:      strings.TrimSpace(params.SiteID),
		maxMessages: maxMessages,
		batchSize:   batch,
		wait:        wait,
		now:         time.Now,
	}, nil
}

type ingestCounts struct {
	received   int
	invalid    int
	foreign    int
	duplicates int
	stored     int
}

// PullAndStore drains up to the configured number of messages, persists the
// unseen ones in a single transaction and only then deletes them from the queue.
// It returns the number of newly stored messages. If persistence fails nothing
// is deleted and every message is redelivered after its ack deadline.
func (i *Ingestor) PullAndStore(ctx context.Context) (int, error) {
	var (
		counts ingestCounts
		ackIDs []string
		staged = make(map[string]models.NotificationMessage)
		order  []string
	)

	for counts.received < i.maxMessages {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		want := i.batchSize
		if remaining := i.maxMessages - counts.received; remaining < want {
			want = remaining
		}
		msgs, err := i.queue.Receive(ctx, want, i.wait)
		if err != nil {
			return 0, fmt.Errorf("receive notifications: %w", err)
		}
		if len(msgs) == 0 {
			break
		}
		for _, msg := range msgs {
			counts.received++
			ackIDs = append(ackIDs, msg.AckID)

			row, ok := i.stage(ctx, msg, &counts)
			if !ok {
				continue
			}
			if _, seen := staged[row.MessageHash]; !seen {
				order = append(order, row.MessageHash)
			} else {
				counts.duplicates++
			}
			staged[row.MessageHash] = row
		}
	}

	if len(staged) > 0 {
		err := i.db.WithTx(ctx, func(tx *gorm.DB) error {
			existing, err := i.repo.ExistingHashes(ctx, tx, order)
			if err != nil {
				return fmt.Errorf("query existing hashes: %w", err)
			}
			rows := make([]models.NotificationMessage, 0, len(order))
			for _, hash := range order {
				if _, ok := existing[hash]; ok {
					counts.duplicates++
					continue
				}
				rows = append(rows, staged[hash])
			}
			inserted, err := i.repo.InsertBatch(ctx, tx, rows)
			if err != nil {
				return fmt.Errorf("insert notifications: %w", err)
			}
			counts.stored = int(inserted)
			counts.duplicates += len(rows) - int(inserted)
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("persist notifications: %w", err)
		}
	}

	if len(ackIDs) > 0 {
		if err := i.queue.Delete(ctx, ackIDs...); err != nil {
			// Stored rows are deduplicated on redelivery.
			i.logg.Error(i.logg.WithField(ctx, "ack_count", len(ackIDs)), "delete notifications from queue failed", err)
		}
	}

	i.metrics.AddMessages(metrics.MessageReceived, counts.received)
	i.metrics.AddMessages(metrics.MessageStored, counts.stored)
	i.metrics.AddMessages(metrics.MessageDuplicate, counts.duplicates)
	i.metrics.AddMessages(metrics.MessageForeign, counts.foreign)
	i.metrics.AddMessages(metrics.MessageInvalid, counts.invalid)

	i.logg.Info(i.logg.WithFields(ctx, map[string]any{
		"received":   counts.received,
		"stored":     counts.stored,
		"duplicates": counts.duplicates,
		"foreign":    counts.foreign,
		"invalid":    counts.invalid,
	}), "notification ingest complete")

	return counts.stored, nil
}

func (i *Ingestor) stage(ctx context.Context, msg pubsub.Message, counts *ingestCounts) (models.NotificationMessage, bool) {
	env, err := DecodeEnvelope(msg.Data)
	if err != nil {
		counts.invalid++
		i.logg.Warn(i.logg.WithFields(ctx, map[string]any{
			"message_id":      msg.ID,
			"error":           err.Error(),
			"payload_preview": previewBytes(msg.Data, 400),
		}), "dropping undecodable notification")
		return models.NotificationMessage{}, false
	}

	site := strings.TrimSpace(msg.Attributes[SiteAttribute])
	if site == "" {
		site = env.SiteID
	}
	if site != i.siteID {
		counts.foreign++
		return models.NotificationMessage{}, false
	}

	received := msg.PublishTime
	if received.IsZero() {
		received = i.now()
	}

	return models.NotificationMessage{
		MessageHash:     env.Hash(),
		SiteID:          site,
		ObjectKey:       env.ObjectKey,
		Process:         env.Process,
		Status:          enums.NormalizeNotificationStatus(env.Status),
		RawStatus:       env.Status,
		Payload:         string(msg.Data),
		VendorTimestamp: env.VendorTime(),
		ReceivedAt:      received.UTC(),
	}, true
}

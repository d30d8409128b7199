package conversions

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/convertflow/internal/processes"
	"github.com/angelmondragon/convertflow/pkg/db/models"
)

// AuditEvent is one overall status transition, exported for analytics.
type AuditEvent struct {
	ContentHash string    `bigquery:"content_hash"`
	FromStatus  string    `bigquery:"from_status"`
	ToStatus    string    `bigquery:"to_status"`
	Statuses    string    `bigquery:"statuses"`
	OccurredAt  time.Time `bigquery:"occurred_at"`
}

// InsertID identifies the transition, so a retried insert is deduplicated downstream.
func (e AuditEvent) InsertID() string {
	return e.ContentHash + ":" + e.ToStatus + ":" + strconv.FormatInt(e.OccurredAt.UnixNano(), 10)
}

// NewAuditEvent captures the transition from before to after.
func NewAuditEvent(registry *processes.Registry, before, after *models.ConversionRecord, at time.Time) AuditEvent {
	return AuditEvent{
		ContentHash: after.ContentHash,
		FromStatus:  before.OverallStatus.String(),
		ToStatus:    after.OverallStatus.String(),
		Statuses:    statusSummary(registry, after),
		OccurredAt:  at.UTC(),
	}
}

// AuditSink receives overall status transitions. Failures never block a transition.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

type rowInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQuerySink streams audit events into a BigQuery table.
type BigQuerySink struct {
	client rowInserter
	table  string
}

func NewBigQuerySink(client rowInserter, table string) *BigQuerySink {
	return &BigQuerySink{client: client, table: table}
}

func (s *BigQuerySink) Record(ctx context.Context, event AuditEvent) error {
	return s.client.InsertRows(ctx, s.table, []any{event})
}

// NoopAuditSink discards events.
type NoopAuditSink struct{}

func (NoopAuditSink) Record(context.Context, AuditEvent) error { return nil }

func statusSummary(registry *processes.Registry, record *models.ConversionRecord) string {
	parts := make([]string, 0, registry.Len())
	for _, entry := range registry.Entries() {
		if col := record.StatusColumn(entry.StatusColumn); col != nil {
			parts = append(parts, string(entry.Identifier)+"="+col.String())
		}
	}
	return strings.Join(parts, ",")
}

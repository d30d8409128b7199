// Package conversions owns the conversion record aggregate and the state
// machine that folds sub-process notifications into it.
package conversions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/convertflow/internal/files"
	"github.com/angelmondragon/convertflow/internal/processes"
	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/enums"
	"github.com/angelmondragon/convertflow/pkg/logger"
	"github.com/angelmondragon/convertflow/pkg/metrics"
)

// Event is one sub-process outcome to apply to a record.
type Event struct {
	Process processes.Identifier
	Status  enums.NotificationStatus
	// Synthesized events come from the stale reconciler rather than a vendor.
	// A synthesized success whose result cannot be imported resolves to ERROR.
	Synthesized bool
	MessageHash string
	// ReceivedAt bounds how long a failing import of this event is retried.
	ReceivedAt time.Time
}

const defaultImportRetryWindow = 24 * time.Hour

type recordStore interface {
	SaveStatuses(ctx context.Context, record *models.ConversionRecord) error
}

type messageSource interface {
	ListTerminal(ctx context.Context, objectKey string, processes []string) ([]models.NotificationMessage, error)
}

type resultImporter interface {
	Import(ctx context.Context, record *models.ConversionRecord, entry processes.Entry) error
}

type objectCleaner interface {
	Cleanup(ctx context.Context, record *models.ConversionRecord) error
}

// MachineParams wires a Machine.
type MachineParams struct {
	Logger   *logger.Logger
	Registry *processes.Registry
	Records  recordStore
	Messages messageSource
	Importer resultImporter
	Cleaner  objectCleaner
	Audit    AuditSink
	Metrics  *metrics.ConversionMetrics
	Now      func() time.Time

	// ImportRetryWindow is how long after a success notification arrives its
	// import is retried before the sub-process is failed. Defaults to 24h.
	ImportRetryWindow time.Duration
}

// Machine advances conversion records. It holds no per-record state, so one
// Machine may advance different records concurrently; a single record must
// only be advanced by one caller at a time.
type Machine struct {
	logg     *logger.Logger
	registry *processes.Registry
	records  recordStore
	messages messageSource
	importer resultImporter
	cleaner  objectCleaner
	audit    AuditSink
	metrics  *metrics.ConversionMetrics
	now      func() time.Time
	retryFor time.Duration
}

// NewMachine validates params and constructs a Machine.
func NewMachine(params MachineParams) (*Machine, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Records == nil {
		return nil, fmt.Errorf("record store required")
	}
	if params.Messages == nil {
		return nil, fmt.Errorf("message source required")
	}
	if params.Importer == nil {
		return nil, fmt.Errorf("result importer required")
	}
	if params.Cleaner == nil {
		return nil, fmt.Errorf("cleaner required")
	}
	registry := params.Registry
	if registry == nil {
		registry = processes.Default()
	}
	audit := params.Audit
	if audit == nil {
		audit = NoopAuditSink{}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	retryFor := params.ImportRetryWindow
	if retryFor <= 0 {
		retryFor = defaultImportRetryWindow
	}
	return &Machine{
		logg:     params.Logger,
		registry: registry,
		records:  params.Records,
		messages: params.Messages,
		importer: params.Importer,
		cleaner:  params.Cleaner,
		audit:    audit,
		metrics:  params.Metrics,
		now:      now,
		retryFor: retryFor,
	}, nil
}

// OpenProcesses returns the registry entries whose status on record is ACCEPTED
// or IN_PROGRESS, in registry order.
func (m *Machine) OpenProcesses(record *models.ConversionRecord) []processes.Entry {
	var open []processes.Entry
	for _, entry := range m.registry.Entries() {
		if col := record.StatusColumn(entry.StatusColumn); col != nil && col.IsOpen() {
			open = append(open, entry)
		}
	}
	return open
}

// Advance applies every stored terminal notification for the record's open
// sub-processes, persists the result and recomputes the overall status.
// Applying the same notifications again is a no-op. Records that are not
// IN_PROGRESS are returned unchanged.
func (m *Machine) Advance(ctx context.Context, record *models.ConversionRecord) (*models.ConversionRecord, error) {
	if record.OverallStatus != enums.ConversionStatusInProgress {
		return record, nil
	}
	open := m.OpenProcesses(record)
	if len(open) == 0 {
		return record, nil
	}

	ids := make([]string, 0, len(open))
	for _, entry := range open {
		ids = append(ids, string(entry.Identifier))
	}
	msgs, err := m.messages.ListTerminal(ctx, record.ContentHash, ids)
	if err != nil {
		return record, fmt.Errorf("list notifications for %s: %w", record.ContentHash, err)
	}
	if len(msgs) == 0 {
		return record, nil
	}

	events := make([]Event, 0, len(msgs))
	for _, msg := range msgs {
		events = append(events, Event{
			Process:     processes.Identifier(msg.Process),
			Status:      msg.Status,
			MessageHash: msg.MessageHash,
			ReceivedAt:  msg.ReceivedAt,
		})
	}
	return m.Resolve(ctx, record, events)
}

// Resolve applies events in order and commits the outcome.
func (m *Machine) Resolve(ctx context.Context, record *models.ConversionRecord, events []Event) (*models.ConversionRecord, error) {
	ctx = m.logg.WithContentHash(ctx, record.ContentHash)
	before := *record

	var retrying bool
	for _, ev := range events {
		stop, retry := m.apply(ctx, record, ev)
		retrying = retrying || retry
		if stop {
			break
		}
	}

	m.Recompute(record)
	now := m.now().UTC()
	if sameStatuses(&before, record, m.registry) {
		if !retrying {
			return record, nil
		}
		// Bump updated_at so the record moves behind others waiting to advance.
		record.UpdatedAt = now
		if err := m.records.SaveStatuses(ctx, record); err != nil {
			*record = before
			return record, fmt.Errorf("touch %s: %w", before.ContentHash, err)
		}
		return record, nil
	}

	record.UpdatedAt = now
	if record.OverallStatus != before.OverallStatus && record.OverallStatus.IsTerminal() {
		record.CompletedAt = &now
	}
	if err := m.records.SaveStatuses(ctx, record); err != nil {
		*record = before
		return record, fmt.Errorf("save statuses for %s: %w", before.ContentHash, err)
	}

	for _, entry := range m.registry.Entries() {
		prev := *before.StatusColumn(entry.StatusColumn)
		next := *record.StatusColumn(entry.StatusColumn)
		if prev != next {
			m.metrics.IncTransition(string(entry.Identifier), next.String())
		}
	}

	if record.OverallStatus != before.OverallStatus {
		m.onOverallTransition(ctx, &before, record)
	}
	return record, nil
}

// apply folds one event into record. stop reports whether the remaining events
// must be skipped; retry reports a failed import left open for the next run.
func (m *Machine) apply(ctx context.Context, record *models.ConversionRecord, ev Event) (stop, retry bool) {
	entry, ok := m.registry.Lookup(ev.Process)
	if !ok {
		m.logg.Warn(m.logg.WithProcess(ctx, string(ev.Process)), "ignoring notification for unknown process")
		return false, false
	}
	col := record.StatusColumn(entry.StatusColumn)
	if col == nil || !col.IsOpen() {
		return false, false
	}
	procCtx := m.logg.WithProcess(ctx, string(entry.Identifier))

	switch {
	case ev.Status == enums.NotificationStatusError && entry.IsPrimary():
		m.cascade(record)
		m.logg.Warn(procCtx, "primary process failed, cascading error")
		return true, false
	case ev.Status == enums.NotificationStatusError:
		*col = enums.ConversionStatusError
	case ev.Status.IsSuccess():
		err := m.importer.Import(ctx, record, entry)
		switch {
		case err == nil, errors.Is(err, files.ErrAlreadyExists):
			*col = enums.ConversionStatusFinished
		case ev.Synthesized:
			m.logg.Error(procCtx, "import of reconciled result failed", err)
			if entry.IsPrimary() {
				m.cascade(record)
				return true, false
			}
			*col = enums.ConversionStatusError
		case m.retryExpired(ev):
			m.logg.Error(m.logg.WithField(procCtx, "received_at", ev.ReceivedAt), "import result failed past retry window", err)
			if entry.IsPrimary() {
				m.cascade(record)
				return true, false
			}
			*col = enums.ConversionStatusError
		default:
			// Left open; the next run retries the import.
			m.logg.Error(procCtx, "import result failed", err)
			return false, true
		}
	}
	return false, false
}

func (m *Machine) retryExpired(ev Event) bool {
	return !ev.ReceivedAt.IsZero() && m.now().Sub(ev.ReceivedAt) >= m.retryFor
}

// cascade fails every enabled sub-process, including finished ones.
func (m *Machine) cascade(record *models.ConversionRecord) {
	for _, entry := range m.registry.Entries() {
		col := record.StatusColumn(entry.StatusColumn)
		if col != nil && *col != enums.ConversionStatusNotFound {
			*col = enums.ConversionStatusError
		}
	}
	record.OverallStatus = enums.ConversionStatusError
}

// Recompute derives the overall status of a submitted record from its
// sub-process statuses. Records that were never submitted are left alone.
func (m *Machine) Recompute(record *models.ConversionRecord) {
	if !record.OverallStatus.IsOpen() || record.OverallStatus == enums.ConversionStatusAccepted {
		return
	}
	var anyOpen, anyError bool
	for _, entry := range m.registry.Entries() {
		col := record.StatusColumn(entry.StatusColumn)
		if col == nil {
			continue
		}
		switch {
		case col.IsOpen():
			anyOpen = true
		case *col == enums.ConversionStatusError:
			anyError = true
		}
	}
	switch {
	case anyOpen:
		record.OverallStatus = enums.ConversionStatusInProgress
	case anyError:
		record.OverallStatus = enums.ConversionStatusError
	default:
		record.OverallStatus = enums.ConversionStatusFinished
	}
}

func (m *Machine) onOverallTransition(ctx context.Context, before, after *models.ConversionRecord) {
	logCtx := m.logg.WithFields(ctx, map[string]any{
		"from": before.OverallStatus.String(),
		"to":   after.OverallStatus.String(),
	})
	m.logg.Info(logCtx, "conversion status changed")

	switch after.OverallStatus {
	case enums.ConversionStatusFinished:
		m.metrics.IncConversion(metrics.ConversionFinished)
		if err := m.cleaner.Cleanup(ctx, after); err != nil {
			m.logg.Warn(m.logg.WithField(logCtx, "error", err.Error()), "cleanup of conversion objects incomplete")
		}
	case enums.ConversionStatusError:
		m.metrics.IncConversion(metrics.ConversionErrored)
	}

	if err := m.audit.Record(ctx, NewAuditEvent(m.registry, before, after, m.now())); err != nil {
		m.logg.Warn(m.logg.WithField(logCtx, "error", err.Error()), "audit event not recorded")
	}
}

func sameStatuses(a, b *models.ConversionRecord, registry *processes.Registry) bool {
	if a.OverallStatus != b.OverallStatus {
		return false
	}
	for _, entry := range registry.Entries() {
		if *a.StatusColumn(entry.StatusColumn) != *b.StatusColumn(entry.StatusColumn) {
			return false
		}
	}
	return true
}

package conversions

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/convertflow/internal/notifications"
	"github.com/angelmondragon/convertflow/internal/processes"
	"github.com/angelmondragon/convertflow/internal/testsupport"
	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/enums"
	"github.com/angelmondragon/convertflow/pkg/logger"
)

var baseTime = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

type harness struct {
	records  *Repository
	messages *notifications.Repository
	clock    *testsupport.Clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := testsupport.NewDB(t)
	return &harness{
		records:  NewRepository(client.DB(), processes.Default()),
		messages: notifications.NewRepository(client.DB()),
		clock:    testsupport.NewClock(baseTime),
	}
}

// seed inserts an in-progress record with the given open sub-processes.
func (h *harness) seed(t *testing.T, hash string, createdAt time.Time, statuses map[string]enums.ConversionStatus) *models.ConversionRecord {
	t.Helper()
	submitted := createdAt
	rec := &models.ConversionRecord{
		ContentHash:   hash,
		PathHash:      "path-" + hash,
		FileID:        uuid.New(),
		InputKey:      hash,
		OverallStatus: enums.ConversionStatusInProgress,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
		SubmittedAt:   &submitted,
	}
	for column, status := range statuses {
		col := rec.StatusColumn(column)
		require.NotNil(t, col, column)
		*col = status
	}
	require.NoError(t, h.records.Create(context.Background(), rec, nil))
	return rec
}

func (h *harness) notify(t *testing.T, hash string, process processes.Identifier, status enums.NotificationStatus, receivedAt time.Time) {
	t.Helper()
	row := models.NotificationMessage{
		MessageHash: hash + "-" + string(process) + "-" + string(status) + "-" + receivedAt.Format(time.RFC3339Nano),
		SiteID:      "site-a",
		ObjectKey:   hash,
		Process:     string(process),
		Status:      status,
		RawStatus:   string(status),
		Payload:     "{}",
		ReceivedAt:  receivedAt,
	}
	_, err := h.messages.InsertBatch(context.Background(), nil, []models.NotificationMessage{row})
	require.NoError(t, err)
}

func (h *harness) reload(t *testing.T, hash string) *models.ConversionRecord {
	t.Helper()
	rec, err := h.records.FindByContentHash(context.Background(), hash)
	require.NoError(t, err)
	return rec
}

type fakeImporter struct {
	errs  map[processes.Identifier]error
	calls []processes.Identifier
}

func (f *fakeImporter) Import(_ context.Context, _ *models.ConversionRecord, entry processes.Entry) error {
	f.calls = append(f.calls, entry.Identifier)
	return f.errs[entry.Identifier]
}

type fakeCleaner struct {
	cleaned []string
	err     error
}

func (f *fakeCleaner) Cleanup(_ context.Context, record *models.ConversionRecord) error {
	f.cleaned = append(f.cleaned, record.ContentHash)
	return f.err
}

type fakeAudit struct {
	events []AuditEvent
}

func (f *fakeAudit) Record(_ context.Context, ev AuditEvent) error {
	f.events = append(f.events, ev)
	return nil
}

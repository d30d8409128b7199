package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/convertflow/internal/testsupport"
	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/enums"
)

func TestListTerminalFiltersAndOrders(t *testing.T) {
	client := testsupport.NewDB(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := []models.NotificationMessage{
		{MessageHash: "c", SiteID: "s", ObjectKey: "h1", Process: "transcoder", Status: enums.NotificationStatusSucceeded, RawStatus: "SUCCEEDED", Payload: "{}", ReceivedAt: base.Add(2 * time.Minute)},
		{MessageHash: "a", SiteID: "s", ObjectKey: "h1", Process: "transcription", Status: enums.NotificationStatusError, RawStatus: "ERROR", Payload: "{}", ReceivedAt: base.Add(time.Minute)},
		{MessageHash: "b", SiteID: "s", ObjectKey: "h1", Process: "transcoder", Status: enums.NotificationStatusOther, RawStatus: "PROGRESSING", Payload: "{}", ReceivedAt: base},
		{MessageHash: "d", SiteID: "s", ObjectKey: "h2", Process: "transcoder", Status: enums.NotificationStatusSucceeded, RawStatus: "SUCCEEDED", Payload: "{}", ReceivedAt: base},
		{MessageHash: "e", SiteID: "s", ObjectKey: "h1", Process: "label-detection", Status: enums.NotificationStatusCompleted, RawStatus: "COMPLETED", Payload: "{}", ReceivedAt: base},
	}
	inserted, err := repo.InsertBatch(ctx, nil, rows)
	require.NoError(t, err)
	assert.EqualValues(t, 5, inserted)

	again, err := repo.InsertBatch(ctx, nil, rows[:2])
	require.NoError(t, err)
	assert.EqualValues(t, 0, again, "conflicting hashes are skipped")

	got, err := repo.ListTerminal(ctx, "h1", []string{"transcoder", "transcription"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].MessageHash)
	assert.Equal(t, "c", got[1].MessageHash)

	none, err := repo.ListTerminal(ctx, "h1", nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	existing, err := repo.ExistingHashes(ctx, nil, []string{"a", "z", "d"})
	require.NoError(t, err)
	assert.Len(t, existing, 2)
	assert.Contains(t, existing, "a")
	assert.Contains(t, existing, "d")
}

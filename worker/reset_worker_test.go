package worker

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"odcrm/models"
)

func seedIdentity(t *testing.T, db *gorm.DB, timezone string, sentToday int, lastReset *time.Time) models.SenderIdentity {
	t.Helper()
	identity := models.SenderIdentity{
		CustomerID:     1,
		EmailAddress:   "box@" + timezone + ".test",
		DisplayName:    "Box",
		Provider:       models.ProviderSMTP,
		Timezone:       timezone,
		DailySendLimit: 150,
		SentToday:      sentToday,
		LastResetAt:    lastReset,
		IsActive:       true,
	}
	require.NoError(t, db.Create(&identity).Error)
	return identity
}

func TestResetHonorsProviderLocalMidnight(t *testing.T) {
	db := newTestDB(t)

	// 2026-03-04 21:30 UTC: already March 5th in Sydney (UTC+11), still
	// 22:30 on the 4th in Berlin (CET, UTC+1).
	now := time.Date(2026, 3, 4, 21, 30, 0, 0, time.UTC)
	lastReset := time.Date(2026, 3, 4, 1, 0, 0, 0, time.UTC)

	sydney := seedIdentity(t, db, "Australia/Sydney", 40, &lastReset)
	berlin := seedIdentity(t, db, "Europe/Berlin", 25, &lastReset)

	rw := NewResetWorker(db, log.New(io.Discard, "", 0))
	rw.Now = func() time.Time { return now }
	rw.ResetDueCounters()

	var gotSydney models.SenderIdentity
	require.NoError(t, db.First(&gotSydney, sydney.ID).Error)
	assert.Equal(t, 0, gotSydney.SentToday, "Sydney crossed local midnight")

	var gotBerlin models.SenderIdentity
	require.NoError(t, db.First(&gotBerlin, berlin.ID).Error)
	assert.Equal(t, 25, gotBerlin.SentToday, "Berlin is still on the same local day")

	// Running again on the same instant is a no-op for both.
	rw.ResetDueCounters()
	gotBerlin = models.SenderIdentity{}
	require.NoError(t, db.First(&gotBerlin, berlin.ID).Error)
	assert.Equal(t, 25, gotBerlin.SentToday)
}

func TestResetSkipsInvalidTimezone(t *testing.T) {
	db := newTestDB(t)

	lastReset := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	broken := seedIdentity(t, db, "Not/AZone", 10, &lastReset)
	ok := seedIdentity(t, db, "UTC", 10, &lastReset)

	rw := NewResetWorker(db, log.New(io.Discard, "", 0))
	rw.Now = func() time.Time { return time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) }
	rw.ResetDueCounters()

	var gotBroken models.SenderIdentity
	require.NoError(t, db.First(&gotBroken, broken.ID).Error)
	assert.Equal(t, 10, gotBroken.SentToday, "invalid timezone is skipped, not reset")

	var gotOK models.SenderIdentity
	require.NoError(t, db.First(&gotOK, ok.ID).Error)
	assert.Equal(t, 0, gotOK.SentToday)
}

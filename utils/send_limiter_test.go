package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odcrm/models"
)

func TestReserveIdentitySlotEnforcesLimit(t *testing.T) {
	db := newTestDB(t)

	identity := models.SenderIdentity{
		CustomerID:     1,
		EmailAddress:   "box@acme.test",
		DisplayName:    "Box",
		Provider:       models.ProviderSMTP,
		DailySendLimit: 2,
		IsActive:       true,
	}
	require.NoError(t, db.Create(&identity).Error)

	require.NoError(t, ReserveIdentitySlot(db, identity.ID))
	require.NoError(t, ReserveIdentitySlot(db, identity.ID))
	assert.ErrorIs(t, ReserveIdentitySlot(db, identity.ID), ErrDailyLimitExceeded)

	var got models.SenderIdentity
	require.NoError(t, db.First(&got, identity.ID).Error)
	assert.Equal(t, 2, got.SentToday, "limit is never overshot")

	// Releasing frees exactly one slot.
	require.NoError(t, ReleaseIdentitySlot(db, identity.ID))
	require.NoError(t, ReserveIdentitySlot(db, identity.ID))
	assert.ErrorIs(t, ReserveIdentitySlot(db, identity.ID), ErrDailyLimitExceeded)
}

func TestReserveIdentitySlotInactive(t *testing.T) {
	db := newTestDB(t)

	identity := models.SenderIdentity{
		CustomerID:     1,
		EmailAddress:   "off@acme.test",
		DisplayName:    "Off",
		Provider:       models.ProviderSMTP,
		DailySendLimit: 10,
		IsActive:       false,
	}
	require.NoError(t, db.Create(&identity).Error)

	// The inactive flag must survive the INSERT; a column default would
	// silently flip it back to active.
	var got models.SenderIdentity
	require.NoError(t, db.First(&got, identity.ID).Error)
	require.False(t, got.IsActive)

	assert.ErrorIs(t, ReserveIdentitySlot(db, identity.ID), ErrDailyLimitExceeded)
}

func TestConsumeIdentitySlotBumpsLifetimeCounter(t *testing.T) {
	db := newTestDB(t)

	identity := models.SenderIdentity{
		CustomerID:     1,
		EmailAddress:   "box@acme.test",
		DisplayName:    "Box",
		Provider:       models.ProviderSMTP,
		DailySendLimit: 10,
		IsActive:       true,
	}
	require.NoError(t, db.Create(&identity).Error)

	require.NoError(t, ReserveIdentitySlot(db, identity.ID))
	require.NoError(t, ConsumeIdentitySlot(db, identity.ID))

	var got models.SenderIdentity
	require.NoError(t, db.First(&got, identity.ID).Error)
	assert.Equal(t, 1, got.SentToday)
	assert.Equal(t, 1, got.TotalSent)
}

func TestCustomerSlotDayKeyed(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, ReserveCustomerSlot(db, 7, "2026-03-04", 2))
	require.NoError(t, ReserveCustomerSlot(db, 7, "2026-03-04", 2))
	assert.ErrorIs(t, ReserveCustomerSlot(db, 7, "2026-03-04", 2), ErrCustomerCapReached)

	// A new day starts from a fresh row; no reset job involved.
	require.NoError(t, ReserveCustomerSlot(db, 7, "2026-03-05", 2))

	// Other customers have their own counters.
	require.NoError(t, ReserveCustomerSlot(db, 8, "2026-03-04", 2))

	var counter models.CustomerSendCounter
	require.NoError(t, db.Where("customer_id = ? AND day = ?", 7, "2026-03-04").
		First(&counter).Error)
	assert.Equal(t, 2, counter.Used)

	require.NoError(t, ReleaseCustomerSlot(db, 7, "2026-03-04"))
	require.NoError(t, db.First(&counter, counter.ID).Error)
	assert.Equal(t, 1, counter.Used)
	require.NoError(t, ReserveCustomerSlot(db, 7, "2026-03-04", 2))
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"odcrm/config"
	"odcrm/models"
	"odcrm/utils"
)

var testDBSeq int

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:dispatch_test_%d?mode=memory&cache=shared&_busy_timeout=5000", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

// fakeMailer records outbound messages and can be told to fail.
type fakeMailer struct {
	mu    sync.Mutex
	sent  []utils.OutboundEmail
	errFn func(email utils.OutboundEmail) error
}

func (m *fakeMailer) Send(_ context.Context, _ *models.SenderIdentity, email utils.OutboundEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errFn != nil {
		if err := m.errFn(email); err != nil {
			return err
		}
	}
	m.sent = append(m.sent, email)
	return nil
}

func (m *fakeMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func testDispatchConfig() config.DispatchConfig {
	return config.DispatchConfig{
		Interval:         time.Minute,
		SendTimeout:      5 * time.Second,
		Concurrency:      1,
		MaxSendAttempts:  3,
		RetryBackoff:     15 * time.Minute,
		CustomerDailyCap: 160,
		IdentityDailyCap: 150,
	}
}

func newTestWorker(db *gorm.DB, mailer utils.Mailer, now time.Time) *DispatchWorker {
	dw := NewDispatchWorker(db, mailer, log.New(io.Discard, "", 0), testDispatchConfig())
	dw.Now = func() time.Time { return now }
	dw.Rand = rand.New(rand.NewSource(1))
	return dw
}

type fixture struct {
	customer models.Customer
	identity models.SenderIdentity
	schedule models.Schedule
	campaign models.Campaign
}

// seedCampaign creates a running single-step campaign with an all-week
// 0-23h schedule and the given number of pending prospects.
func seedCampaign(t *testing.T, db *gorm.DB, identityLimit, prospects int) fixture {
	t.Helper()

	customer := models.Customer{Name: "Acme"}
	require.NoError(t, db.Create(&customer).Error)

	identity := models.SenderIdentity{
		CustomerID:     customer.ID,
		EmailAddress:   "sender@acme.test",
		DisplayName:    "Acme Sales",
		Provider:       models.ProviderSMTP,
		Timezone:       "UTC",
		DailySendLimit: identityLimit,
		IsActive:       true,
	}
	require.NoError(t, db.Create(&identity).Error)

	schedule := models.Schedule{
		CustomerID: customer.ID,
		Name:       "Always",
		Timezone:   "UTC",
		DaysOfWeek: []int{0, 1, 2, 3, 4, 5, 6},
		StartHour:  0,
		EndHour:    23,
	}
	require.NoError(t, db.Create(&schedule).Error)

	campaign := models.Campaign{
		CustomerID:       customer.ID,
		Name:             "Launch",
		Status:           models.CampaignStatusRunning,
		SenderIdentityID: &identity.ID,
		ScheduleID:       &schedule.ID,
	}
	require.NoError(t, db.Create(&campaign).Error)

	step := models.SequenceStep{
		CampaignID:      campaign.ID,
		StepNumber:      1,
		SubjectTemplate: "Hello {{firstName}}",
		BodyTemplate:    "<p>Hi {{firstName}}, greetings from {{senderName}}.</p>",
	}
	require.NoError(t, db.Create(&step).Error)

	for i := 0; i < prospects; i++ {
		prospect := models.Prospect{
			CampaignID: campaign.ID,
			ContactID:  uint(i + 1),
			CustomerID: customer.ID,
			Email:      fmt.Sprintf("prospect%d@example.com", i+1),
			FirstName:  fmt.Sprintf("P%d", i+1),
			LastStatus: models.ProspectStatusPending,
		}
		require.NoError(t, db.Create(&prospect).Error)
	}

	return fixture{customer: customer, identity: identity, schedule: schedule, campaign: campaign}
}

func countEvents(t *testing.T, db *gorm.DB, campaignID uint, eventType string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Event{}).
		Where("campaign_id = ? AND type = ?", campaignID, eventType).
		Count(&n).Error)
	return n
}

func TestTickSendsAllDueProspects(t *testing.T) {
	db := newTestDB(t)
	fx := seedCampaign(t, db, 5, 3)
	mailer := &fakeMailer{}
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) // Wednesday noon

	dw := newTestWorker(db, mailer, now)
	require.NoError(t, dw.RunTick(context.Background()))

	assert.Equal(t, 3, mailer.sentCount())
	assert.EqualValues(t, 3, countEvents(t, db, fx.campaign.ID, models.EventSent))

	var identity models.SenderIdentity
	require.NoError(t, db.First(&identity, fx.identity.ID).Error)
	assert.Equal(t, 3, identity.SentToday)
	assert.Equal(t, 3, identity.TotalSent)

	var prospects []models.Prospect
	require.NoError(t, db.Where("campaign_id = ?", fx.campaign.ID).Find(&prospects).Error)
	for _, p := range prospects {
		assert.Equal(t, models.StepSentStatus(1), p.LastStatus)
	}

	// A second tick at the same instant must not resend.
	require.NoError(t, dw.RunTick(context.Background()))
	assert.Equal(t, 3, mailer.sentCount())
}

func TestIdentityLimitDefersAndRecoversAfterReset(t *testing.T) {
	db := newTestDB(t)
	fx := seedCampaign(t, db, 2, 3)
	mailer := &fakeMailer{}
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	dw := newTestWorker(db, mailer, now)
	require.NoError(t, dw.RunTick(context.Background()))

	assert.Equal(t, 2, mailer.sentCount())
	assert.EqualValues(t, 2, countEvents(t, db, fx.campaign.ID, models.EventSent))

	// Earliest enrollees won the scarce slots; the third is still pending.
	var third models.Prospect
	require.NoError(t, db.Where("campaign_id = ? AND email = ?",
		fx.campaign.ID, "prospect3@example.com").First(&third).Error)
	assert.Equal(t, models.ProspectStatusPending, third.LastStatus)

	// Retrying before the counter resets stays deferred.
	require.NoError(t, dw.RunTick(context.Background()))
	assert.Equal(t, 2, mailer.sentCount())

	// Daily reset frees the identity; the deferred prospect goes out.
	require.NoError(t, db.Model(&models.SenderIdentity{}).
		Where("id = ?", fx.identity.ID).
		Update("sent_today", 0).Error)

	dw.Now = func() time.Time { return now.Add(24 * time.Hour) }
	require.NoError(t, dw.RunTick(context.Background()))

	assert.Equal(t, 3, mailer.sentCount())
	require.NoError(t, db.First(&third, third.ID).Error)
	assert.Equal(t, models.StepSentStatus(1), third.LastStatus)
}

func TestCustomerCapSharedAcrossCampaigns(t *testing.T) {
	db := newTestDB(t)
	fx := seedCampaign(t, db, 150, 4)
	mailer := &fakeMailer{}
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	dw := newTestWorker(db, mailer, now)
	dw.Cfg.CustomerDailyCap = 3
	require.NoError(t, dw.RunTick(context.Background()))

	assert.Equal(t, 3, mailer.sentCount())

	var counter models.CustomerSendCounter
	require.NoError(t, db.Where("customer_id = ? AND day = ?",
		fx.customer.ID, utils.DayKey(now)).First(&counter).Error)
	assert.Equal(t, 3, counter.Used)

	// Identity capacity was not wasted on the capped prospect.
	var identity models.SenderIdentity
	require.NoError(t, db.First(&identity, fx.identity.ID).Error)
	assert.Equal(t, 3, identity.SentToday)
}

func TestSuppressedProspectNeverSent(t *testing.T) {
	db := newTestDB(t)
	fx := seedCampaign(t, db, 5, 2)
	mailer := &fakeMailer{}
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	// Domain suppressed after enrollment, before any dispatch.
	require.NoError(t, db.Create(&models.SuppressionEntry{
		CustomerID: fx.customer.ID,
		Type:       models.SuppressionDomain,
		Value:      "example.com",
		Source:     "manual",
	}).Error)

	dw := newTestWorker(db, mailer, now)
	require.NoError(t, dw.RunTick(context.Background()))

	assert.Equal(t, 0, mailer.sentCount())
	assert.EqualValues(t, 0, countEvents(t, db, fx.campaign.ID, models.EventSent))

	var prospects []models.Prospect
	require.NoError(t, db.Where("campaign_id = ?", fx.campaign.ID).Find(&prospects).Error)
	for _, p := range prospects {
		assert.Equal(t, models.ProspectStatusSuppressed, p.LastStatus)
	}

	// No capacity was consumed for suppressed prospects.
	var identity models.SenderIdentity
	require.NoError(t, db.First(&identity, fx.identity.ID).Error)
	assert.Equal(t, 0, identity.SentToday)
}

func TestPausedCampaignSendsNothing(t *testing.T) {
	db := newTestDB(t)
	fx := seedCampaign(t, db, 5, 1)
	mailer := &fakeMailer{}
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	// Follow-up step with a 3-5 day delay.
	require.NoError(t, db.Create(&models.SequenceStep{
		CampaignID:      fx.campaign.ID,
		StepNumber:      2,
		SubjectTemplate: "Following up",
		BodyTemplate:    "<p>Any thoughts?</p>",
		DelayDaysMin:    3,
		DelayDaysMax:    5,
	}).Error)

	dw := newTestWorker(db, mailer, now)
	require.NoError(t, dw.RunTick(context.Background()))
	require.Equal(t, 1, mailer.sentCount()) // step 1 out

	require.NoError(t, db.Model(&models.Campaign{}).
		Where("id = ?", fx.campaign.ID).
		Update("status", models.CampaignStatusPaused).Error)

	// Well past the maximum delay, still paused: nothing goes out.
	dw.Now = func() time.Time { return now.Add(6 * 24 * time.Hour) }
	require.NoError(t, dw.RunTick(context.Background()))
	assert.Equal(t, 1, mailer.sentCount())
	assert.EqualValues(t, 1, countEvents(t, db, fx.campaign.ID, models.EventSent))

	// Resuming re-admits the prospect on the next tick.
	require.NoError(t, db.Model(&models.Campaign{}).
		Where("id = ?", fx.campaign.ID).
		Update("status", models.CampaignStatusRunning).Error)
	require.NoError(t, dw.RunTick(context.Background()))
	assert.Equal(t, 2, mailer.sentCount())
}

func TestScheduleWindowDefersToMonday(t *testing.T) {
	db := newTestDB(t)
	fx := seedCampaign(t, db, 5, 1)
	mailer := &fakeMailer{}

	// Weekdays 9-17 only.
	require.NoError(t, db.Model(&models.Schedule{}).
		Where("id = ?", *fx.campaign.ScheduleID).
		Updates(map[string]interface{}{
			"days_of_week": `[1,2,3,4,5]`,
			"start_hour":   9,
			"end_hour":     17,
		}).Error)

	saturday := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	dw := newTestWorker(db, mailer, saturday)
	require.NoError(t, dw.RunTick(context.Background()))
	assert.Equal(t, 0, mailer.sentCount())

	// Sunday, and Monday before the window: still deferred.
	dw.Now = func() time.Time { return saturday.Add(24 * time.Hour) }
	require.NoError(t, dw.RunTick(context.Background()))
	dw.Now = func() time.Time { return time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC) }
	require.NoError(t, dw.RunTick(context.Background()))
	assert.Equal(t, 0, mailer.sentCount())

	// Monday 09:30: the deferred prospect goes out.
	dw.Now = func() time.Time { return time.Date(2026, 3, 9, 9, 30, 0, 0, time.UTC) }
	require.NoError(t, dw.RunTick(context.Background()))
	assert.Equal(t, 1, mailer.sentCount())
	assert.EqualValues(t, 1, countEvents(t, db, fx.campaign.ID, models.EventSent))
}

func TestFollowUpJitterDrawnOnce(t *testing.T) {
	db := newTestDB(t)
	fx := seedCampaign(t, db, 5, 1)
	mailer := &fakeMailer{}
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&models.SequenceStep{
		CampaignID:      fx.campaign.ID,
		StepNumber:      2,
		SubjectTemplate: "Following up",
		BodyTemplate:    "<p>Any thoughts?</p>",
		DelayDaysMin:    3,
		DelayDaysMax:    5,
	}).Error)

	dw := newTestWorker(db, mailer, now)
	require.NoError(t, dw.RunTick(context.Background()))
	require.Equal(t, 1, mailer.sentCount())

	// Next tick creates the step-2 state with its jittered eligibility.
	dw.Now = func() time.Time { return now.Add(time.Hour) }
	require.NoError(t, dw.RunTick(context.Background()))

	var prospect models.Prospect
	require.NoError(t, db.Where("campaign_id = ?", fx.campaign.ID).First(&prospect).Error)
	var state models.ProspectStep
	require.NoError(t, db.Where("prospect_id = ? AND step_number = 2", prospect.ID).
		First(&state).Error)

	minEligible := now.Add(3 * 24 * time.Hour)
	maxEligible := now.Add(5 * 24 * time.Hour)
	assert.False(t, state.EligibleAt.Before(minEligible),
		"eligible_at %v before minimum delay %v", state.EligibleAt, minEligible)
	assert.False(t, state.EligibleAt.After(maxEligible),
		"eligible_at %v after maximum delay %v", state.EligibleAt, maxEligible)

	// Ticks between now and eligibility neither send nor redraw the jitter.
	dw.Now = func() time.Time { return now.Add(2 * 24 * time.Hour) }
	require.NoError(t, dw.RunTick(context.Background()))
	assert.Equal(t, 1, mailer.sentCount())

	var again models.ProspectStep
	require.NoError(t, db.First(&again, state.ID).Error)
	assert.True(t, state.EligibleAt.Equal(again.EligibleAt))

	// Past the maximum delay the follow-up definitely goes out.
	dw.Now = func() time.Time { return now.Add(5*24*time.Hour + time.Minute) }
	require.NoError(t, dw.RunTick(context.Background()))
	assert.Equal(t, 2, mailer.sentCount())
}

func TestTransmissionFailureRetriesThenFails(t *testing.T) {
	db := newTestDB(t)
	fx := seedCampaign(t, db, 5, 1)
	sendErr := errors.New("connection refused")
	mailer := &fakeMailer{errFn: func(utils.OutboundEmail) error { return sendErr }}
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	dw := newTestWorker(db, mailer, now)
	require.NoError(t, dw.RunTick(context.Background()))

	var prospect models.Prospect
	require.NoError(t, db.Where("campaign_id = ?", fx.campaign.ID).First(&prospect).Error)
	var state models.ProspectStep
	require.NoError(t, db.Where("prospect_id = ? AND step_number = 1", prospect.ID).
		First(&state).Error)

	assert.Equal(t, 1, state.Attempts)
	assert.Nil(t, state.FailedAt)
	assert.True(t, state.EligibleAt.Equal(now.Add(dw.Cfg.RetryBackoff)))
	require.NotNil(t, state.LastError)
	assert.Contains(t, *state.LastError, "connection refused")

	// Both reservations were returned.
	var identity models.SenderIdentity
	require.NoError(t, db.First(&identity, fx.identity.ID).Error)
	assert.Equal(t, 0, identity.SentToday)
	var counter models.CustomerSendCounter
	require.NoError(t, db.Where("customer_id = ?", fx.customer.ID).First(&counter).Error)
	assert.Equal(t, 0, counter.Used)

	// Burn through the remaining attempts with linear backoff.
	for attempt := 2; attempt <= dw.Cfg.MaxSendAttempts; attempt++ {
		require.NoError(t, db.First(&state, state.ID).Error)
		dw.Now = func() time.Time { return state.EligibleAt }
		require.NoError(t, dw.RunTick(context.Background()))
	}

	require.NoError(t, db.First(&state, state.ID).Error)
	assert.Equal(t, dw.Cfg.MaxSendAttempts, state.Attempts)
	require.NotNil(t, state.FailedAt)

	// Failed steps are never retried again.
	dw.Now = func() time.Time { return now.Add(30 * 24 * time.Hour) }
	require.NoError(t, dw.RunTick(context.Background()))
	assert.EqualValues(t, 0, countEvents(t, db, fx.campaign.ID, models.EventSent))
}

func TestEarliestDueWinsScarceCapacity(t *testing.T) {
	db := newTestDB(t)
	fx := seedCampaign(t, db, 1, 2)
	mailer := &fakeMailer{}
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	var prospects []models.Prospect
	require.NoError(t, db.Where("campaign_id = ?", fx.campaign.ID).
		Order("id").Find(&prospects).Error)
	require.Len(t, prospects, 2)

	// The later enrollee became eligible first.
	require.NoError(t, db.Create(&models.ProspectStep{
		ProspectID: prospects[1].ID,
		CampaignID: fx.campaign.ID,
		StepNumber: 1,
		EligibleAt: now.Add(-2 * time.Hour),
	}).Error)
	require.NoError(t, db.Create(&models.ProspectStep{
		ProspectID: prospects[0].ID,
		CampaignID: fx.campaign.ID,
		StepNumber: 1,
		EligibleAt: now.Add(-1 * time.Hour),
	}).Error)

	dw := newTestWorker(db, mailer, now)
	require.NoError(t, dw.RunTick(context.Background()))

	require.Equal(t, 1, mailer.sentCount())
	mailer.mu.Lock()
	to := mailer.sent[0].To
	mailer.mu.Unlock()
	assert.Equal(t, prospects[1].Email, to)
}

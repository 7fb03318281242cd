package controller

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"odcrm/middleware"
	"odcrm/models"
)

var testDBSeq int

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:controller_test_%d?mode=memory&cache=shared&_busy_timeout=5000", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

func newTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()
	app := fiber.New()
	cc := NewCampaignController(db, log.New(io.Discard, "", 0))

	api := app.Group("/api", middleware.CustomerScoped(db))
	api.Post("/campaigns/:id/start", cc.StartCampaign)
	api.Post("/campaigns/:id/pause", cc.PauseCampaign)
	api.Post("/campaigns/:id/complete", cc.CompleteCampaign)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path string, customerID uint) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.CustomerHeader, fmt.Sprintf("%d", customerID))
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func seedLifecycleFixture(t *testing.T, db *gorm.DB, withIdentity, withStep bool) models.Campaign {
	t.Helper()

	customer := models.Customer{Name: "Acme"}
	require.NoError(t, db.Create(&customer).Error)

	campaign := models.Campaign{
		CustomerID: customer.ID,
		Name:       "Launch",
		Status:     models.CampaignStatusDraft,
	}
	if withIdentity {
		identity := models.SenderIdentity{
			CustomerID:     customer.ID,
			EmailAddress:   "sender@acme.test",
			DisplayName:    "Acme Sales",
			Provider:       models.ProviderSMTP,
			DailySendLimit: 150,
			IsActive:       true,
		}
		require.NoError(t, db.Create(&identity).Error)
		campaign.SenderIdentityID = &identity.ID
	}
	require.NoError(t, db.Create(&campaign).Error)

	if withStep {
		require.NoError(t, db.Create(&models.SequenceStep{
			CampaignID:      campaign.ID,
			StepNumber:      1,
			SubjectTemplate: "Hello",
			BodyTemplate:    "<p>Hi</p>",
		}).Error)
	}
	return campaign
}

func campaignStatus(t *testing.T, db *gorm.DB, id uint) string {
	t.Helper()
	var campaign models.Campaign
	require.NoError(t, db.First(&campaign, id).Error)
	return campaign.Status
}

func TestStartCampaignHappyPath(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db)
	campaign := seedLifecycleFixture(t, db, true, true)

	resp := doRequest(t, app, "POST", fmt.Sprintf("/api/campaigns/%d/start", campaign.ID), campaign.CustomerID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.CampaignStatusRunning, campaignStatus(t, db, campaign.ID))

	var got models.Campaign
	require.NoError(t, db.First(&got, campaign.ID).Error)
	assert.NotNil(t, got.StartedAt)
}

func TestStartCampaignRequiresIdentity(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db)
	campaign := seedLifecycleFixture(t, db, false, true)

	resp := doRequest(t, app, "POST", fmt.Sprintf("/api/campaigns/%d/start", campaign.ID), campaign.CustomerID)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, models.CampaignStatusDraft, campaignStatus(t, db, campaign.ID))
}

func TestStartCampaignRequiresUsableStep(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db)
	campaign := seedLifecycleFixture(t, db, true, false)

	resp := doRequest(t, app, "POST", fmt.Sprintf("/api/campaigns/%d/start", campaign.ID), campaign.CustomerID)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPauseAndResume(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db)
	campaign := seedLifecycleFixture(t, db, true, true)

	url := func(action string) string {
		return fmt.Sprintf("/api/campaigns/%d/%s", campaign.ID, action)
	}

	// Pausing a draft is rejected.
	resp := doRequest(t, app, "POST", url("pause"), campaign.CustomerID)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, app, "POST", url("start"), campaign.CustomerID)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, app, "POST", url("pause"), campaign.CustomerID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.CampaignStatusPaused, campaignStatus(t, db, campaign.ID))

	resp = doRequest(t, app, "POST", url("start"), campaign.CustomerID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.CampaignStatusRunning, campaignStatus(t, db, campaign.ID))
}

func TestCompleteIsTerminal(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db)
	campaign := seedLifecycleFixture(t, db, true, true)

	url := func(action string) string {
		return fmt.Sprintf("/api/campaigns/%d/%s", campaign.ID, action)
	}

	resp := doRequest(t, app, "POST", url("start"), campaign.CustomerID)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, app, "POST", url("complete"), campaign.CustomerID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.CampaignStatusCompleted, campaignStatus(t, db, campaign.ID))

	// Completed campaigns cannot restart.
	resp = doRequest(t, app, "POST", url("start"), campaign.CustomerID)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLifecycleScopedToCustomer(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db)
	campaign := seedLifecycleFixture(t, db, true, true)

	other := models.Customer{Name: "Rival"}
	require.NoError(t, db.Create(&other).Error)

	resp := doRequest(t, app, "POST", fmt.Sprintf("/api/campaigns/%d/start", campaign.ID), other.ID)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, models.CampaignStatusDraft, campaignStatus(t, db, campaign.ID))
}

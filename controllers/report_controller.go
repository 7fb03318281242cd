package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"odcrm/middleware"
	"odcrm/models"
)

type ReportController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewReportController(db *gorm.DB, logger *log.Logger) *ReportController {
	return &ReportController{DB: db, Logger: logger}
}

// EmailReportRow is one sent email with its engagement outcome.
type EmailReportRow struct {
	EventID      uint      `json:"event_id"`
	CampaignID   uint      `json:"campaign_id"`
	CampaignName string    `json:"campaign_name"`
	ProspectID   uint      `json:"prospect_id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	LastStatus   string    `json:"last_status"`
	SentAt       time.Time `json:"sent_at"`
}

// GetEmailReport lists sent emails across campaigns, newest first, with
// optional campaign and date-range filters.
func (rc *ReportController) GetEmailReport(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	query := rc.DB.Model(&models.Event{}).
		Select(`events.id AS event_id, events.campaign_id, campaigns.name AS campaign_name,
			events.prospect_id, prospects.email, prospects.first_name, prospects.last_name,
			prospects.last_status, events.occurred_at AS sent_at`).
		Joins("JOIN campaigns ON campaigns.id = events.campaign_id").
		Joins("JOIN prospects ON prospects.id = events.prospect_id").
		Where("events.customer_id = ? AND events.type = ?", customer.ID, models.EventSent)

	if campaignID := c.Query("campaignId"); campaignID != "" {
		query = query.Where("events.campaign_id = ?", campaignID)
	}
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			query = query.Where("events.occurred_at >= ?", t)
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			query = query.Where("events.occurred_at < ?", t.AddDate(0, 0, 1))
		}
	}

	limit := c.QueryInt("limit", 100)
	if limit < 1 || limit > 500 {
		limit = 100
	}

	var rows []EmailReportRow
	if err := query.Order("events.occurred_at DESC").
		Limit(limit).Offset(c.QueryInt("offset", 0)).
		Scan(&rows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build email report",
		})
	}

	return c.JSON(fiber.Map{"emails": rows})
}

// IdentityPerformanceRow aggregates outcomes per sender identity.
type IdentityPerformanceRow struct {
	IdentityID   uint    `json:"identity_id"`
	EmailAddress string  `json:"email_address"`
	DisplayName  string  `json:"display_name"`
	SentToday    int     `json:"sent_today"`
	DailyLimit   int     `json:"daily_limit"`
	TotalSent    int     `json:"total_sent"`
	SentCount    int64   `json:"sent_count"`
	ReplyCount   int64   `json:"reply_count"`
	BounceCount  int64   `json:"bounce_count"`
	ReplyRate    float64 `json:"reply_rate"`
}

// GetTeamPerformance aggregates send and engagement counts per sender
// identity, attributing each event to the identity recorded on the sent
// event's campaign.
func (rc *ReportController) GetTeamPerformance(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var identities []models.SenderIdentity
	if err := rc.DB.Where("customer_id = ?", customer.ID).
		Find(&identities).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch identities",
		})
	}

	rows := make([]IdentityPerformanceRow, 0, len(identities))
	for _, identity := range identities {
		row := IdentityPerformanceRow{
			IdentityID:   identity.ID,
			EmailAddress: identity.EmailAddress,
			DisplayName:  identity.DisplayName,
			SentToday:    identity.SentToday,
			DailyLimit:   identity.DailySendLimit,
			TotalSent:    identity.TotalSent,
		}

		counts := []struct {
			eventType string
			dest      *int64
		}{
			{models.EventSent, &row.SentCount},
			{models.EventReplied, &row.ReplyCount},
			{models.EventBounced, &row.BounceCount},
		}
		for _, ct := range counts {
			if err := rc.DB.Model(&models.Event{}).
				Joins("JOIN campaigns ON campaigns.id = events.campaign_id").
				Where("events.customer_id = ? AND events.type = ? AND campaigns.sender_identity_id = ?",
					customer.ID, ct.eventType, identity.ID).
				Count(ct.dest).Error; err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to build performance report",
				})
			}
		}
		if row.SentCount > 0 {
			row.ReplyRate = float64(row.ReplyCount) / float64(row.SentCount)
		}
		rows = append(rows, row)
	}

	return c.JSON(fiber.Map{"identities": rows})
}

// ReplyRow is one detected reply for the inbox view.
type ReplyRow struct {
	ProspectID   uint      `json:"prospect_id"`
	CampaignID   uint      `json:"campaign_id"`
	CampaignName string    `json:"campaign_name"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Snippet      string    `json:"snippet"`
	RepliedAt    time.Time `json:"replied_at"`
}

// GetReplies lists prospects with detected replies, newest first.
func (rc *ReportController) GetReplies(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	query := rc.DB.Model(&models.Prospect{}).
		Select(`prospects.id AS prospect_id, prospects.campaign_id, campaigns.name AS campaign_name,
			prospects.email, prospects.first_name, prospects.last_name,
			prospects.last_reply_snippet AS snippet, prospects.reply_detected_at AS replied_at`).
		Joins("JOIN campaigns ON campaigns.id = prospects.campaign_id").
		Where("prospects.customer_id = ? AND prospects.reply_detected_at IS NOT NULL", customer.ID)

	if campaignID := c.Query("campaignId"); campaignID != "" {
		query = query.Where("prospects.campaign_id = ?", campaignID)
	}

	var rows []ReplyRow
	if err := query.Order("prospects.reply_detected_at DESC").
		Limit(200).Scan(&rows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch replies",
		})
	}

	return c.JSON(fiber.Map{"replies": rows})
}

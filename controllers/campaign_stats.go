package controller

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	"odcrm/middleware"
	"odcrm/models"
	"odcrm/utils"
)

// CampaignStats is the aggregate view shown on campaign dashboards.
type CampaignStats struct {
	CampaignID     uint    `json:"campaign_id"`
	Status         string  `json:"status"`
	TotalProspects int     `json:"total_prospects"`
	SentCount      int     `json:"sent_count"`
	OpenCount      int     `json:"open_count"`
	ReplyCount     int     `json:"reply_count"`
	BounceCount    int     `json:"bounce_count"`
	Unsubscribed   int     `json:"unsubscribed"`
	OpenRate       float64 `json:"open_rate"`
	ReplyRate      float64 `json:"reply_rate"`
	BounceRate     float64 `json:"bounce_rate"`
	PendingCount   int64   `json:"pending_count"`
	FailedCount    int64   `json:"failed_count"`
}

// GetCampaignStats returns sent/open/reply/bounce aggregates plus rates.
// Counters are denormalized on the campaign row; pending and failed are
// computed live from prospect state.
func (cc *CampaignController) GetCampaignStats(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	stats, err := buildCampaignStats(cc.DB, &campaign)
	if err != nil {
		utils.ReportError(err, "campaign_stats", map[string]interface{}{"campaign_id": campaign.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute campaign stats",
		})
	}

	return c.JSON(stats)
}

func buildCampaignStats(db *gorm.DB, campaign *models.Campaign) (*CampaignStats, error) {
	var pending, failed int64
	if err := db.Model(&models.Prospect{}).
		Where("campaign_id = ? AND (last_status = ? OR last_status LIKE 'step%_sent')",
			campaign.ID, models.ProspectStatusPending).
		Count(&pending).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.ProspectStep{}).
		Where("campaign_id = ? AND failed_at IS NOT NULL", campaign.ID).
		Count(&failed).Error; err != nil {
		return nil, err
	}

	stats := &CampaignStats{
		CampaignID:     campaign.ID,
		Status:         campaign.Status,
		TotalProspects: campaign.TotalProspects,
		SentCount:      campaign.SentCount,
		OpenCount:      campaign.OpenCount,
		ReplyCount:     campaign.ReplyCount,
		BounceCount:    campaign.BounceCount,
		Unsubscribed:   campaign.UnsubscribeCount,
		PendingCount:   pending,
		FailedCount:    failed,
	}
	if campaign.SentCount > 0 {
		sent := float64(campaign.SentCount)
		stats.OpenRate = float64(campaign.OpenCount) / sent
		stats.ReplyRate = float64(campaign.ReplyCount) / sent
		stats.BounceRate = float64(campaign.BounceCount) / sent
	}
	return stats, nil
}

// CampaignProgressWS streams campaign stats over a websocket every few
// seconds until the client disconnects or the campaign reaches a terminal
// status (one final frame is sent after completion).
func CampaignProgressWS(db *gorm.DB, logger *log.Logger) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		defer conn.Close()

		campaignID := conn.Params("id")
		customerID := conn.Query("customerId")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Reader goroutine: the only way to notice a client disconnect.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(3 * time.Second)
		defer ticker.Stop()

		for {
			var campaign models.Campaign
			if err := db.Where("id = ? AND customer_id = ?", campaignID, customerID).
				First(&campaign).Error; err != nil {
				conn.WriteJSON(fiber.Map{"error": "Campaign not found"})
				return
			}

			stats, err := buildCampaignStats(db, &campaign)
			if err != nil {
				logger.Printf("progress ws: stats query failed: %v", err)
				return
			}
			if err := conn.WriteJSON(stats); err != nil {
				return
			}
			if campaign.IsTerminalStatus() {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	})
}

package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"odcrm/middleware"
	"odcrm/models"
	"odcrm/utils"
)

// StartCampaign transitions draft -> running (or paused -> running when
// resuming). Guards: a sender identity must be attached and at least one
// sequence step with non-empty subject and body must exist. Pending
// prospects become eligible for step 1 immediately; the dispatch worker
// picks them up on its next tick.
func (cc *CampaignController) StartCampaign(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var campaign models.Campaign
	if err := cc.DB.Preload("Steps").
		Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	switch campaign.Status {
	case models.CampaignStatusDraft, models.CampaignStatusPaused:
	case models.CampaignStatusRunning:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Campaign is already running",
		})
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Completed campaigns cannot be restarted",
		})
	}

	if campaign.SenderIdentityID == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Campaign has no sender identity",
		})
	}
	if !hasUsableStep(campaign.Steps) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Campaign needs at least one sequence step with subject and body",
		})
	}

	updates := map[string]interface{}{
		"status": models.CampaignStatusRunning,
	}
	if campaign.StartedAt == nil {
		updates["started_at"] = time.Now()
	}
	if err := cc.DB.Model(&campaign).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start campaign",
		})
	}

	utils.LogEvent("campaign_started", map[string]interface{}{
		"campaign_id": campaign.ID,
		"customer_id": customer.ID,
	})

	return c.JSON(fiber.Map{
		"message": "Campaign started successfully",
	})
}

// PauseCampaign transitions running -> paused. In-flight dispatch cycles
// finish; the next tick admits no new sends for this campaign.
func (cc *CampaignController) PauseCampaign(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	if campaign.Status != models.CampaignStatusRunning {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Campaign is not running",
		})
	}

	if err := cc.DB.Model(&campaign).Update("status", models.CampaignStatusPaused).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to pause campaign",
		})
	}

	utils.LogEvent("campaign_paused", map[string]interface{}{
		"campaign_id": campaign.ID,
	})

	return c.JSON(fiber.Map{
		"message": "Campaign paused successfully",
	})
}

// CompleteCampaign transitions running -> completed. Prospect state is
// frozen for reporting; no further dispatch happens.
func (cc *CampaignController) CompleteCampaign(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	if campaign.Status != models.CampaignStatusRunning && campaign.Status != models.CampaignStatusPaused {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only running or paused campaigns can be completed",
		})
	}

	if err := cc.DB.Model(&campaign).Updates(map[string]interface{}{
		"status":       models.CampaignStatusCompleted,
		"completed_at": time.Now(),
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to complete campaign",
		})
	}

	utils.LogEvent("campaign_completed", map[string]interface{}{
		"campaign_id": campaign.ID,
	})

	return c.JSON(fiber.Map{
		"message": "Campaign completed successfully",
	})
}

func hasUsableStep(steps []models.SequenceStep) bool {
	for _, step := range steps {
		if step.SubjectTemplate != "" && step.BodyTemplate != "" {
			return true
		}
	}
	return false
}

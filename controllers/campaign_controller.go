package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"odcrm/config"
	"odcrm/middleware"
	"odcrm/models"
	"odcrm/utils"
)

type CampaignController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewCampaignController(db *gorm.DB, logger *log.Logger) *CampaignController {
	return &CampaignController{DB: db, Logger: logger}
}

type CreateCampaignRequest struct {
	Name                 string `json:"name" validate:"required"`
	Description          string `json:"description"`
	SenderIdentityID     *uint  `json:"sender_identity_id"`
	ScheduleID           *uint  `json:"schedule_id"`
	SendWindowHoursStart int    `json:"send_window_hours_start" validate:"min=0,max=23"`
	SendWindowHoursEnd   int    `json:"send_window_hours_end" validate:"min=0,max=23"`
	FollowUpDelayDaysMin *int   `json:"follow_up_delay_days_min" validate:"omitempty,min=0"`
	FollowUpDelayDaysMax *int   `json:"follow_up_delay_days_max" validate:"omitempty,min=0"`
	ReplyHaltsSequence   *bool  `json:"reply_halts_sequence"`
}

func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var input CreateCampaignRequest
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if input.SendWindowHoursStart != 0 || input.SendWindowHoursEnd != 0 {
		if input.SendWindowHoursStart >= input.SendWindowHoursEnd {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "send window start hour must be before end hour",
			})
		}
	}

	campaign := models.Campaign{
		CustomerID:           customer.ID,
		Name:                 input.Name,
		Description:          input.Description,
		Status:               models.CampaignStatusDraft,
		SenderIdentityID:     input.SenderIdentityID,
		ScheduleID:           input.ScheduleID,
		SendWindowHoursStart: input.SendWindowHoursStart,
		SendWindowHoursEnd:   input.SendWindowHoursEnd,
		ReplyHaltsSequence:   config.AppConfig.Dispatch.ReplyHaltsDefault,
	}
	if input.FollowUpDelayDaysMin != nil {
		campaign.FollowUpDelayDaysMin = *input.FollowUpDelayDaysMin
	}
	if input.FollowUpDelayDaysMax != nil {
		campaign.FollowUpDelayDaysMax = *input.FollowUpDelayDaysMax
	}
	if campaign.FollowUpDelayDaysMax < campaign.FollowUpDelayDaysMin {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "follow-up delay max must be >= min",
		})
	}
	if input.ReplyHaltsSequence != nil {
		campaign.ReplyHaltsSequence = *input.ReplyHaltsSequence
	}

	if input.ScheduleID != nil {
		var schedule models.Schedule
		if err := cc.DB.Where("id = ? AND customer_id = ?", *input.ScheduleID, customer.ID).
			First(&schedule).Error; err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Schedule not found",
			})
		}
	}
	if input.SenderIdentityID != nil {
		var identity models.SenderIdentity
		if err := cc.DB.Where("id = ? AND customer_id = ?", *input.SenderIdentityID, customer.ID).
			First(&identity).Error; err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Sender identity not found",
			})
		}
	}

	if err := cc.DB.Create(&campaign).Error; err != nil {
		cc.Logger.Printf("Failed to create campaign: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create campaign",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(campaign)
}

func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var campaigns []models.Campaign
	if err := cc.DB.Where("customer_id = ?", customer.ID).
		Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaigns",
		})
	}

	return c.JSON(campaigns)
}

func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var campaign models.Campaign
	if err := cc.DB.Preload("Steps").
		Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	return c.JSON(campaign)
}

type UpdateCampaignRequest struct {
	Name                 *string `json:"name"`
	Description          *string `json:"description"`
	SenderIdentityID     *uint   `json:"sender_identity_id"`
	ScheduleID           *uint   `json:"schedule_id"`
	SendWindowHoursStart *int    `json:"send_window_hours_start" validate:"omitempty,min=0,max=23"`
	SendWindowHoursEnd   *int    `json:"send_window_hours_end" validate:"omitempty,min=0,max=23"`
	FollowUpDelayDaysMin *int    `json:"follow_up_delay_days_min" validate:"omitempty,min=0"`
	FollowUpDelayDaysMax *int    `json:"follow_up_delay_days_max" validate:"omitempty,min=0"`
	ReplyHaltsSequence   *bool   `json:"reply_halts_sequence"`
}

func (cc *CampaignController) UpdateCampaign(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	var input UpdateCampaignRequest
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.SenderIdentityID != nil {
		var identity models.SenderIdentity
		if err := cc.DB.Where("id = ? AND customer_id = ?", *input.SenderIdentityID, customer.ID).
			First(&identity).Error; err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Sender identity not found",
			})
		}
		updates["sender_identity_id"] = *input.SenderIdentityID
	}
	if input.ScheduleID != nil {
		var schedule models.Schedule
		if err := cc.DB.Where("id = ? AND customer_id = ?", *input.ScheduleID, customer.ID).
			First(&schedule).Error; err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Schedule not found",
			})
		}
		updates["schedule_id"] = *input.ScheduleID
	}
	if input.SendWindowHoursStart != nil {
		updates["send_window_hours_start"] = *input.SendWindowHoursStart
	}
	if input.SendWindowHoursEnd != nil {
		updates["send_window_hours_end"] = *input.SendWindowHoursEnd
	}
	if input.FollowUpDelayDaysMin != nil {
		updates["follow_up_delay_days_min"] = *input.FollowUpDelayDaysMin
	}
	if input.FollowUpDelayDaysMax != nil {
		updates["follow_up_delay_days_max"] = *input.FollowUpDelayDaysMax
	}
	if input.ReplyHaltsSequence != nil {
		updates["reply_halts_sequence"] = *input.ReplyHaltsSequence
	}

	if len(updates) > 0 {
		if err := cc.DB.Model(&campaign).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update campaign",
			})
		}
	}

	return c.JSON(campaign)
}

// DeleteCampaign removes a campaign and cascades to its sequence, prospect
// enrollments and events.
func (cc *CampaignController) DeleteCampaign(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	err := cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ?", campaign.ID).Delete(&models.Event{}).Error; err != nil {
			return err
		}
		if err := tx.Where("campaign_id = ?", campaign.ID).Delete(&models.ProspectStep{}).Error; err != nil {
			return err
		}
		if err := tx.Where("campaign_id = ?", campaign.ID).Delete(&models.Prospect{}).Error; err != nil {
			return err
		}
		if err := tx.Where("campaign_id = ?", campaign.ID).Delete(&models.SequenceStep{}).Error; err != nil {
			return err
		}
		return tx.Delete(&campaign).Error
	})
	if err != nil {
		cc.Logger.Printf("Failed to delete campaign %d: %v", campaign.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete campaign",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Campaign deleted successfully",
	})
}

package controller

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"odcrm/middleware"
	"odcrm/models"
	"odcrm/utils"
)

type SequenceStepRequest struct {
	SubjectTemplate string `json:"subject_template" validate:"required"`
	BodyTemplate    string `json:"body_template" validate:"required"`
	DelayDaysMin    int    `json:"delay_days_min" validate:"min=0"`
	DelayDaysMax    int    `json:"delay_days_max" validate:"min=0"`
}

type SetSequenceStepsRequest struct {
	Steps []SequenceStepRequest `json:"steps" validate:"required,min=1,dive"`
}

// SetSequenceSteps replaces the campaign's sequence wholesale. Step numbers
// are assigned from array order; step 1 is forced to zero delay. Running
// campaigns keep their sequence frozen, so edits require draft or paused.
func (cc *CampaignController) SetSequenceSteps(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	if campaign.Status == models.CampaignStatusRunning || campaign.IsTerminalStatus() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Sequence can only be edited while the campaign is draft or paused",
		})
	}

	var req SetSequenceStepsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if len(req.Steps) > models.MaxSequenceSteps {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A campaign sequence is limited to 10 steps",
		})
	}
	for i, step := range req.Steps {
		if step.DelayDaysMax < step.DelayDaysMin {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "delay_days_max must not be below delay_days_min",
			})
		}
		if i > 0 && step.DelayDaysMin < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Follow-up steps need a delay of at least one day",
			})
		}
	}

	steps := make([]models.SequenceStep, 0, len(req.Steps))
	for i, step := range req.Steps {
		min, max := step.DelayDaysMin, step.DelayDaysMax
		if i == 0 {
			// The first email goes out as soon as the prospect is eligible.
			min, max = 0, 0
		}
		steps = append(steps, models.SequenceStep{
			CampaignID:      campaign.ID,
			StepNumber:      i + 1,
			SubjectTemplate: step.SubjectTemplate,
			BodyTemplate:    step.BodyTemplate,
			DelayDaysMin:    min,
			DelayDaysMax:    max,
		})
	}

	err := cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().
			Where("campaign_id = ?", campaign.ID).
			Delete(&models.SequenceStep{}).Error; err != nil {
			return err
		}
		return tx.Create(&steps).Error
	})
	if err != nil {
		utils.ReportError(err, "sequence_replace", map[string]interface{}{"campaign_id": campaign.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save sequence steps",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Sequence updated successfully",
		"steps":   steps,
	})
}

// GetSequenceSteps returns the campaign's steps in order.
func (cc *CampaignController) GetSequenceSteps(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	var steps []models.SequenceStep
	if err := cc.DB.Where("campaign_id = ?", campaign.ID).
		Order("step_number ASC").Find(&steps).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch sequence steps",
		})
	}

	return c.JSON(fiber.Map{"steps": steps})
}

package controller

import (
	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"odcrm/middleware"
	"odcrm/models"
	"odcrm/utils"
)

type EnrollProspectsRequest struct {
	ContactIDs    []uint `json:"contact_ids"`
	ContactListID *uint  `json:"contact_list_id"`
}

// EnrollProspects enrolls contacts into the campaign, either by explicit IDs
// or by a whole contact list. Contact fields are denormalized onto the
// prospect row at enrollment. Contacts already enrolled, with invalid email
// addresses, or flagged bounced/unsubscribed are skipped and reported back.
func (cc *CampaignController) EnrollProspects(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}
	if campaign.IsTerminalStatus() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Cannot enroll prospects into a completed campaign",
		})
	}

	var req EnrollProspectsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.ContactIDs) == 0 && req.ContactListID == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Provide contact_ids or a contact_list_id",
		})
	}

	var contacts []models.Contact
	query := cc.DB.Where("customer_id = ?", customer.ID)
	if req.ContactListID != nil {
		query = query.
			Joins("JOIN contact_list_memberships ON contact_list_memberships.contact_id = contacts.id").
			Where("contact_list_memberships.contact_list_id = ?", *req.ContactListID)
	} else {
		query = query.Where("contacts.id IN ?", req.ContactIDs)
	}
	if err := query.Find(&contacts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch contacts",
		})
	}
	if len(contacts) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No matching contacts found",
		})
	}

	var existing []uint
	if err := cc.DB.Model(&models.Prospect{}).
		Where("campaign_id = ?", campaign.ID).
		Pluck("contact_id", &existing).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to check existing prospects",
		})
	}
	enrolledSet := make(map[uint]bool, len(existing))
	for _, id := range existing {
		enrolledSet[id] = true
	}

	var prospects []models.Prospect
	skipped := map[string]int{}
	for _, contact := range contacts {
		if enrolledSet[contact.ID] {
			skipped["already_enrolled"]++
			continue
		}
		if contact.IsBounced || contact.IsUnsubscribed {
			skipped["flagged"]++
			continue
		}
		if err := checkmail.ValidateFormat(contact.Email); err != nil {
			skipped["invalid_email"]++
			continue
		}
		prospects = append(prospects, models.Prospect{
			CampaignID: campaign.ID,
			ContactID:  contact.ID,
			CustomerID: customer.ID,
			Email:      contact.Email,
			FirstName:  contact.FirstName,
			LastName:   contact.LastName,
			Company:    contact.Company,
			LastStatus: models.ProspectStatusPending,
		})
	}

	if len(prospects) > 0 {
		err := cc.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&prospects).Error; err != nil {
				return err
			}
			return tx.Model(&campaign).
				Update("total_prospects", gorm.Expr("total_prospects + ?", len(prospects))).Error
		})
		if err != nil {
			utils.ReportError(err, "prospect_enroll", map[string]interface{}{"campaign_id": campaign.ID})
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to enroll prospects",
			})
		}
	}

	return c.JSON(fiber.Map{
		"message":  "Prospects enrolled",
		"enrolled": len(prospects),
		"skipped":  skipped,
	})
}

// GetProspects lists the campaign's prospects with optional status filter.
func (cc *CampaignController) GetProspects(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	query := cc.DB.Where("campaign_id = ?", campaign.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("last_status = ?", status)
	}

	var prospects []models.Prospect
	if err := query.Order("id ASC").Find(&prospects).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch prospects",
		})
	}

	return c.JSON(fiber.Map{"prospects": prospects})
}

// RemoveProspect removes a prospect (and its step state) from a campaign.
// Already-recorded events are kept for reporting.
func (cc *CampaignController) RemoveProspect(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var prospect models.Prospect
	if err := cc.DB.
		Joins("JOIN campaigns ON campaigns.id = prospects.campaign_id").
		Where("prospects.id = ? AND prospects.campaign_id = ? AND campaigns.customer_id = ?",
			c.Params("prospectId"), c.Params("id"), customer.ID).
		First(&prospect).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Prospect not found",
		})
	}

	err := cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("prospect_id = ?", prospect.ID).
			Delete(&models.ProspectStep{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&prospect).Error; err != nil {
			return err
		}
		return tx.Model(&models.Campaign{}).
			Where("id = ? AND total_prospects > 0", prospect.CampaignID).
			Update("total_prospects", gorm.Expr("total_prospects - 1")).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to remove prospect",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Prospect removed successfully",
	})
}

package controller

import (
	"log"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"odcrm/middleware"
	"odcrm/models"
	"odcrm/utils"
)

type SuppressionController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSuppressionController(db *gorm.DB, logger *log.Logger) *SuppressionController {
	return &SuppressionController{DB: db, Logger: logger}
}

type SuppressionRequest struct {
	Type   string `json:"type" validate:"required,oneof=email domain"`
	Value  string `json:"value" validate:"required"`
	Reason string `json:"reason"`
}

// CreateSuppression adds an email or domain block. Values are normalized to
// lowercase; duplicates are accepted idempotently.
func (sc *SuppressionController) CreateSuppression(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var req SuppressionRequest
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

	value := strings.ToLower(strings.TrimSpace(req.Value))
	if req.Type == models.SuppressionEmail {
		if err := checkmail.ValidateFormat(value); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid email address",
			})
		}
	} else if strings.ContainsAny(value, "@ ") || value == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid domain",
		})
	}

	var existing models.SuppressionEntry
	err := sc.DB.Where("customer_id = ? AND type = ? AND value = ?",
		customer.ID, req.Type, value).First(&existing).Error
	if err == nil {
		return c.JSON(existing)
	}

	entry := models.SuppressionEntry{
		CustomerID: customer.ID,
		Type:       req.Type,
		Value:      value,
		Reason:     req.Reason,
		Source:     "manual",
	}
	if err := sc.DB.Create(&entry).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create suppression entry",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(entry)
}

// GetSuppressions lists suppression entries, optionally filtered by type or
// searched by value substring.
func (sc *SuppressionController) GetSuppressions(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	query := sc.DB.Where("customer_id = ?", customer.ID)
	if t := c.Query("type"); t != "" {
		query = query.Where("type = ?", t)
	}
	if search := c.Query("search"); search != "" {
		query = query.Where("value LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var entries []models.SuppressionEntry
	if err := query.Order("value ASC").Find(&entries).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch suppression entries",
		})
	}

	return c.JSON(fiber.Map{"suppressions": entries})
}

// DeleteSuppression removes an entry. Sends to the address resume on the
// next dispatch tick; prospects already marked suppressed stay terminal.
func (sc *SuppressionController) DeleteSuppression(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	res := sc.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		Delete(&models.SuppressionEntry{})
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete suppression entry",
		})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Suppression entry not found",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Suppression entry deleted successfully",
	})
}

package controller

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"odcrm/config"
	"odcrm/middleware"
	"odcrm/models"
	"odcrm/utils"
)

type IdentityController struct {
	DB     *gorm.DB
	Mailer utils.Mailer
	Logger *log.Logger
}

func NewIdentityController(db *gorm.DB, mailer utils.Mailer, logger *log.Logger) *IdentityController {
	return &IdentityController{DB: db, Mailer: mailer, Logger: logger}
}

type CreateIdentityRequest struct {
	EmailAddress string `json:"email_address" validate:"required,email"`
	DisplayName  string `json:"display_name" validate:"required"`
	Provider     string `json:"provider" validate:"required,oneof=outlook smtp"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"smtp_password"`
	Encryption   string `json:"encryption" validate:"omitempty,oneof=SSL TLS STARTTLS"`

	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"imap_password"`
	IMAPMailbox  string `json:"imap_mailbox"`

	OAuthToken        string     `json:"oauth_token"`
	OAuthRefreshToken string     `json:"oauth_refresh_token"`
	OAuthExpiry       *time.Time `json:"oauth_expiry"`

	Timezone       string `json:"timezone" validate:"omitempty,iana_tz"`
	DailySendLimit int    `json:"daily_send_limit" validate:"min=0"`
}

// CreateIdentity registers a sending mailbox. Credentials are encrypted at
// rest; responses never echo them back.
func (ic *IdentityController) CreateIdentity(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var req CreateIdentityRequest
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
	if req.Provider == models.ProviderSMTP && (req.SMTPHost == "" || req.SMTPPassword == "") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "SMTP identities require smtp_host and smtp_password",
		})
	}
	if req.Provider == models.ProviderOutlook && req.OAuthRefreshToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Outlook identities require an oauth_refresh_token",
		})
	}

	identity := models.SenderIdentity{
		CustomerID:   customer.ID,
		EmailAddress: req.EmailAddress,
		DisplayName:  req.DisplayName,
		Provider:     req.Provider,
		SMTPHost:     req.SMTPHost,
		SMTPPort:     req.SMTPPort,
		SMTPUsername: req.SMTPUsername,
		IMAPHost:     req.IMAPHost,
		IMAPPort:     req.IMAPPort,
		IMAPUsername: req.IMAPUsername,
		OAuthExpiry:  req.OAuthExpiry,
		IsActive:     true,
	}
	if req.Encryption != "" {
		identity.Encryption = req.Encryption
	}
	if req.IMAPMailbox != "" {
		identity.IMAPMailbox = req.IMAPMailbox
	}
	identity.Timezone = "UTC"
	if req.Timezone != "" {
		identity.Timezone = req.Timezone
	}
	identity.DailySendLimit = config.AppConfig.Dispatch.IdentityDailyCap
	if req.DailySendLimit > 0 {
		identity.DailySendLimit = req.DailySendLimit
	}

	if err := encryptIdentitySecrets(&identity, req); err != nil {
		utils.ReportError(err, "identity_encrypt", nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store credentials",
		})
	}

	if err := ic.DB.Create(&identity).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create identity",
		})
	}

	identity.Sanitize()
	return c.Status(fiber.StatusCreated).JSON(identity)
}

func encryptIdentitySecrets(identity *models.SenderIdentity, req CreateIdentityRequest) error {
	var err error
	if req.SMTPPassword != "" {
		if identity.SMTPPassword, err = utils.Encrypt(req.SMTPPassword); err != nil {
			return err
		}
	}
	if req.IMAPPassword != "" {
		if identity.IMAPPassword, err = utils.Encrypt(req.IMAPPassword); err != nil {
			return err
		}
	}
	if req.OAuthToken != "" {
		if identity.OAuthToken, err = utils.Encrypt(req.OAuthToken); err != nil {
			return err
		}
	}
	if req.OAuthRefreshToken != "" {
		if identity.OAuthRefreshToken, err = utils.Encrypt(req.OAuthRefreshToken); err != nil {
			return err
		}
	}
	return nil
}

// GetIdentities lists the customer's sending identities with quota state.
func (ic *IdentityController) GetIdentities(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var identities []models.SenderIdentity
	if err := ic.DB.Where("customer_id = ?", customer.ID).
		Order("email_address ASC").Find(&identities).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch identities",
		})
	}
	for i := range identities {
		identities[i].Sanitize()
	}

	return c.JSON(fiber.Map{"identities": identities})
}

type UpdateIdentityRequest struct {
	DisplayName    *string `json:"display_name"`
	Timezone       *string `json:"timezone" validate:"omitempty,iana_tz"`
	DailySendLimit *int    `json:"daily_send_limit" validate:"omitempty,min=1"`
	IsActive       *bool   `json:"is_active"`
	SMTPPassword   *string `json:"smtp_password"`
	IMAPPassword   *string `json:"imap_password"`
}

// UpdateIdentity applies partial updates. Lowering the daily limit below
// today's sent count simply stops further reservations until the reset.
func (ic *IdentityController) UpdateIdentity(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var identity models.SenderIdentity
	if err := ic.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&identity).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Identity not found",
		})
	}

	var req UpdateIdentityRequest
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

	updates := map[string]interface{}{}
	if req.DisplayName != nil {
		updates["display_name"] = *req.DisplayName
	}
	if req.Timezone != nil {
		updates["timezone"] = *req.Timezone
	}
	if req.DailySendLimit != nil {
		updates["daily_send_limit"] = *req.DailySendLimit
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.SMTPPassword != nil {
		enc, err := utils.Encrypt(*req.SMTPPassword)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to store credentials",
			})
		}
		updates["smtp_password"] = enc
	}
	if req.IMAPPassword != nil {
		enc, err := utils.Encrypt(*req.IMAPPassword)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to store credentials",
			})
		}
		updates["imap_password"] = enc
	}
	if len(updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No fields to update",
		})
	}

	if err := ic.DB.Model(&identity).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update identity",
		})
	}

	identity.Sanitize()
	return c.JSON(identity)
}

// DeleteIdentity removes an identity. Campaigns referencing it stop sending
// (the dispatch worker skips campaigns whose identity is gone) until they are
// pointed at another identity.
func (ic *IdentityController) DeleteIdentity(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var identity models.SenderIdentity
	if err := ic.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&identity).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Identity not found",
		})
	}

	if err := ic.DB.Delete(&identity).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete identity",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Identity deleted successfully",
	})
}

// TestIdentity sends a probe email through the identity's configured
// transport and records the outcome. The route is rate limited per customer.
func (ic *IdentityController) TestIdentity(c *fiber.Ctx) error {
	customer := middleware.CurrentCustomer(c)

	var identity models.SenderIdentity
	if err := ic.DB.Where("id = ? AND customer_id = ?", c.Params("id"), customer.ID).
		First(&identity).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Identity not found",
		})
	}

	recipient := c.Query("to")
	if recipient == "" {
		recipient = identity.EmailAddress
	}

	ctx, cancel := context.WithTimeout(c.Context(), config.AppConfig.Dispatch.SendTimeout)
	defer cancel()

	now := time.Now()
	sendErr := ic.Mailer.Send(ctx, &identity, utils.OutboundEmail{
		To:        recipient,
		Subject:   "Deliverability test",
		Body:      "<p>This is a connection test. No action is required.</p>",
		MessageID: "test-" + now.Format("20060102150405"),
	})

	updates := map[string]interface{}{"last_tested_at": now}
	if sendErr != nil {
		msg := sendErr.Error()
		updates["last_error"] = msg
	} else {
		updates["last_error"] = nil
	}
	if err := ic.DB.Model(&identity).Updates(updates).Error; err != nil {
		utils.ReportError(err, "identity_test_record", map[string]interface{}{
			"identity_id": identity.ID,
		})
	}

	if sendErr != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "Test send failed",
			"details": sendErr.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Test email sent successfully",
	})
}

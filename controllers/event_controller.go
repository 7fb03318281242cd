package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"odcrm/models"
	"odcrm/utils"
)

type EventController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewEventController(db *gorm.DB, logger *log.Logger) *EventController {
	return &EventController{DB: db, Logger: logger}
}

// trackingPixel is a 1x1 transparent GIF.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type WebhookEventRequest struct {
	Type       string            `json:"type" validate:"required,oneof=opened clicked replied bounced unsubscribed"`
	MessageID  string            `json:"message_id"`
	ProspectID uint              `json:"prospect_id"`
	OccurredAt *time.Time        `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata"`
}

// ReceiveWebhook ingests provider engagement events. Delivery is
// at-least-once; the dedupe key on (prospect, type, timestamp) makes replays
// no-ops. Events reference the send either by message_id or prospect_id.
func (ec *EventController) ReceiveWebhook(c *fiber.Ctx) error {
	var req WebhookEventRequest
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
	if req.MessageID == "" && req.ProspectID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Provide message_id or prospect_id",
		})
	}

	var prospect models.Prospect
	var err error
	if req.MessageID != "" {
		prospect, err = ec.prospectByMessageID(req.MessageID)
	} else {
		err = ec.DB.First(&prospect, req.ProspectID).Error
	}
	if err != nil {
		// Unknown references are acknowledged so the provider stops retrying.
		utils.LogEvent("webhook_unmatched", map[string]interface{}{
			"type":       req.Type,
			"message_id": req.MessageID,
		})
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message": "Event ignored (no matching send)",
		})
	}

	occurredAt := time.Now()
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	if err := utils.ApplyEngagementEvent(ec.DB, utils.EventInput{
		CustomerID: prospect.CustomerID,
		CampaignID: prospect.CampaignID,
		ProspectID: prospect.ID,
		Type:       req.Type,
		OccurredAt: occurredAt,
		Metadata:   req.Metadata,
	}); err != nil {
		utils.ReportError(err, "webhook_apply", map[string]interface{}{
			"prospect_id": prospect.ID,
			"type":        req.Type,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record event",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Event recorded",
	})
}

func (ec *EventController) prospectByMessageID(messageID string) (models.Prospect, error) {
	var step models.ProspectStep
	if err := ec.DB.Where("message_id = ?", messageID).First(&step).Error; err != nil {
		return models.Prospect{}, err
	}
	var prospect models.Prospect
	err := ec.DB.First(&prospect, step.ProspectID).Error
	return prospect, err
}

// TrackOpen serves the tracking pixel and records an opened event. Always
// returns the pixel, even on bad tokens, so broken images never appear in
// recipients' mail clients.
func (ec *EventController) TrackOpen(c *fiber.Ctx) error {
	c.Set("Content-Type", "image/gif")
	c.Set("Cache-Control", "no-store, no-cache, must-revalidate")

	messageID, err := utils.VerifyLinkToken(c.Params("token"), utils.TokenPurposeOpen)
	if err != nil || messageID != c.Params("messageID") {
		return c.Send(trackingPixel)
	}

	prospect, err := ec.prospectByMessageID(messageID)
	if err != nil {
		return c.Send(trackingPixel)
	}

	if err := utils.ApplyEngagementEvent(ec.DB, utils.EventInput{
		CustomerID: prospect.CustomerID,
		CampaignID: prospect.CampaignID,
		ProspectID: prospect.ID,
		Type:       models.EventOpened,
		OccurredAt: time.Now(),
		Metadata:   map[string]string{"message_id": messageID},
	}); err != nil {
		utils.ReportError(err, "track_open", map[string]interface{}{
			"message_id": messageID,
		})
	}

	return c.Send(trackingPixel)
}

// TrackClick records a clicked event and redirects to the original URL.
func (ec *EventController) TrackClick(c *fiber.Ctx) error {
	target := c.Query("url")
	if target == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing url parameter",
		})
	}

	messageID, err := utils.VerifyLinkToken(c.Params("token"), utils.TokenPurposeClick)
	if err != nil || messageID != c.Params("messageID") {
		// Bad token: still honor the redirect so the recipient is not stranded.
		return c.Redirect(target, fiber.StatusFound)
	}

	if prospect, err := ec.prospectByMessageID(messageID); err == nil {
		if err := utils.ApplyEngagementEvent(ec.DB, utils.EventInput{
			CustomerID: prospect.CustomerID,
			CampaignID: prospect.CampaignID,
			ProspectID: prospect.ID,
			Type:       models.EventClicked,
			OccurredAt: time.Now(),
			Metadata:   map[string]string{"message_id": messageID, "url": target},
		}); err != nil {
			utils.ReportError(err, "track_click", map[string]interface{}{
				"message_id": messageID,
			})
		}
	}

	return c.Redirect(target, fiber.StatusFound)
}

// Unsubscribe processes a one-click unsubscribe link: records the event,
// halts the prospect and adds the address to the suppression list.
func (ec *EventController) Unsubscribe(c *fiber.Ctx) error {
	messageID, err := utils.VerifyLinkToken(c.Params("token"), utils.TokenPurposeUnsubscribe)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("This unsubscribe link is invalid or has expired.")
	}

	prospect, err := ec.prospectByMessageID(messageID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).SendString("This unsubscribe link is no longer valid.")
	}

	if err := utils.ApplyEngagementEvent(ec.DB, utils.EventInput{
		CustomerID: prospect.CustomerID,
		CampaignID: prospect.CampaignID,
		ProspectID: prospect.ID,
		Type:       models.EventUnsubscribed,
		OccurredAt: time.Now(),
		Metadata:   map[string]string{"message_id": messageID},
	}); err != nil {
		utils.ReportError(err, "unsubscribe", map[string]interface{}{
			"message_id": messageID,
		})
		return c.Status(fiber.StatusInternalServerError).SendString("Something went wrong. Please try again.")
	}

	return c.SendString("You have been unsubscribed. You will not receive further emails from this sender.")
}

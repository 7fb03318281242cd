package utils

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"odcrm/models"
)

// EventInput describes an event to append to the log.
type EventInput struct {
	CustomerID uint
	CampaignID uint
	ProspectID uint
	Type       string
	OccurredAt time.Time
	Metadata   map[string]string
}

// RecordEvent appends an event idempotently. Replaying the same
// (prospect, type, timestamp) triple is a no-op; the bool reports whether a
// row was actually created, so aggregate updates can be skipped on replays.
func RecordEvent(db *gorm.DB, in EventInput) (bool, error) {
	event := models.Event{
		CustomerID: in.CustomerID,
		CampaignID: in.CampaignID,
		ProspectID: in.ProspectID,
		Type:       in.Type,
		OccurredAt: in.OccurredAt,
		Metadata:   in.Metadata,
		DedupeKey:  models.EventDedupeKey(in.ProspectID, in.Type, in.OccurredAt),
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ApplyEngagementEvent records an inbound engagement event (open, click,
// reply, bounce, unsubscribe) and applies the resulting prospect transition
// in one transaction. Reporting reads the event log; prospect state only ever
// changes through these rules.
func ApplyEngagementEvent(db *gorm.DB, in EventInput) error {
	return db.Transaction(func(tx *gorm.DB) error {
		created, err := RecordEvent(tx, in)
		if err != nil {
			return err
		}
		if !created {
			// Replay of an already-processed event.
			return nil
		}

		var prospect models.Prospect
		if err := tx.First(&prospect, in.ProspectID).Error; err != nil {
			return err
		}
		var campaign models.Campaign
		if err := tx.First(&campaign, in.CampaignID).Error; err != nil {
			return err
		}

		prospectUpdates := map[string]interface{}{}
		campaignUpdates := map[string]interface{}{}

		switch in.Type {
		case models.EventOpened:
			prospectUpdates["open_count"] = gorm.Expr("open_count + 1")
			prospectUpdates["last_opened_at"] = in.OccurredAt
			if prospect.OpenCount == 0 {
				campaignUpdates["open_count"] = gorm.Expr("open_count + 1")
			}

		case models.EventClicked:
			// Log-only: click aggregates are read-side projections.

		case models.EventReplied:
			if prospect.ReplyDetectedAt == nil {
				prospectUpdates["reply_detected_at"] = in.OccurredAt
				campaignUpdates["reply_count"] = gorm.Expr("reply_count + 1")
			}
			if snippet, ok := in.Metadata["snippet"]; ok && snippet != "" {
				prospectUpdates["last_reply_snippet"] = snippet
			}
			// Whether a reply halts the sequence is a per-campaign policy.
			if campaign.ReplyHaltsSequence && !prospect.InTerminalStatus() {
				prospectUpdates["last_status"] = models.ProspectStatusReplied
			}

		case models.EventBounced:
			if prospect.BouncedAt == nil {
				prospectUpdates["bounced_at"] = in.OccurredAt
				campaignUpdates["bounce_count"] = gorm.Expr("bounce_count + 1")
			}
			prospectUpdates["last_status"] = models.ProspectStatusBounced

		case models.EventUnsubscribed:
			if prospect.UnsubscribedAt == nil {
				prospectUpdates["unsubscribed_at"] = in.OccurredAt
				campaignUpdates["unsubscribe_count"] = gorm.Expr("unsubscribe_count + 1")
			}
			prospectUpdates["last_status"] = models.ProspectStatusUnsubscribed
			// Unsubscribes also feed the suppression list so no other
			// campaign of this customer contacts the address again.
			entry := models.SuppressionEntry{
				CustomerID: in.CustomerID,
				Type:       models.SuppressionEmail,
				Value:      NormalizeSuppressionValue(prospect.Email),
				Reason:     "recipient unsubscribed",
				Source:     "unsubscribe",
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}

		if len(prospectUpdates) > 0 {
			if err := tx.Model(&models.Prospect{}).Where("id = ?", prospect.ID).
				Updates(prospectUpdates).Error; err != nil {
				return err
			}
		}
		if len(campaignUpdates) > 0 {
			if err := tx.Model(&models.Campaign{}).Where("id = ?", campaign.ID).
				Updates(campaignUpdates).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Event types
const (
	EventSent         = "sent"
	EventOpened       = "opened"
	EventClicked      = "clicked"
	EventReplied      = "replied"
	EventBounced      = "bounced"
	EventUnsubscribed = "unsubscribed"
)

// Event is the append-only record feeding all reporting aggregates. Rows are
// never mutated after creation. DedupeKey makes writes idempotent so
// at-least-once webhook delivery from the mail provider cannot double-count.
type Event struct {
	gorm.Model
	CustomerID uint `gorm:"not null;index" json:"customer_id"`
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`
	ProspectID uint `gorm:"not null;index" json:"prospect_id"`

	Type       string            `gorm:"not null;index" json:"type"`
	OccurredAt time.Time         `gorm:"not null;index" json:"occurred_at"`
	Metadata   map[string]string `gorm:"type:jsonb;serializer:json" json:"metadata"`

	DedupeKey string `gorm:"not null;uniqueIndex" json:"-"`
}

// EventDedupeKey builds the idempotency key for an inbound or locally
// generated event.
func EventDedupeKey(prospectID uint, eventType string, occurredAt time.Time) string {
	return fmt.Sprintf("%d:%s:%d", prospectID, eventType, occurredAt.Unix())
}

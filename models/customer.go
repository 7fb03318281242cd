package models

import (
	"gorm.io/gorm"
)

// Customer represents a tenant. Every other entity is scoped to exactly one
// customer and must never be visible across customers.
type Customer struct {
	gorm.Model
	Name     string `gorm:"not null" json:"name"`
	Timezone string `gorm:"default:'UTC'" json:"timezone"`

	// Relations
	Identities []SenderIdentity `gorm:"foreignKey:CustomerID" json:"identities,omitempty"`
	Schedules  []Schedule       `gorm:"foreignKey:CustomerID" json:"schedules,omitempty"`
	Campaigns  []Campaign       `gorm:"foreignKey:CustomerID" json:"campaigns,omitempty"`
}

// CustomerSendCounter is the customer-wide daily send counter. One row per
// customer per day, incremented atomically by the dispatch worker; day-keyed
// rows make the midnight rollover implicit (no reset job needed).
type CustomerSendCounter struct {
	gorm.Model
	CustomerID uint   `gorm:"not null;uniqueIndex:idx_customer_day" json:"customer_id"`
	Day        string `gorm:"not null;uniqueIndex:idx_customer_day" json:"day"` // YYYY-MM-DD, UTC
	Used       int    `gorm:"default:0" json:"used"`
}

package models

import (
	"gorm.io/gorm"
)

// Suppression entry types
const (
	SuppressionEmail  = "email"
	SuppressionDomain = "domain"
)

// SuppressionEntry blocks sends to an exact address or to a whole domain.
// Values are normalized to lowercase on write; matching happens at dispatch
// time so entries added after enrollment still take effect.
type SuppressionEntry struct {
	gorm.Model
	CustomerID uint `gorm:"not null;index" json:"customer_id"`

	Type   string `gorm:"not null" json:"type"` // email, domain
	Value  string `gorm:"not null;index" json:"value"`
	Reason string `json:"reason"`
	Source string `json:"source"` // manual, unsubscribe, bounce, import
}

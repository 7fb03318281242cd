package models

import (
	"time"

	"gorm.io/gorm"
)

// ContactList represents a list of contacts a campaign can enroll from.
type ContactList struct {
	gorm.Model
	CustomerID uint `gorm:"not null;index" json:"customer_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Source      string `json:"source"` // manual, api

	ContactCount int `gorm:"default:0" json:"contact_count"`

	// Relations
	Memberships []ContactListMembership `gorm:"foreignKey:ContactListID" json:"memberships,omitempty"`
}

// Contact represents a single person that can be enrolled in campaigns.
type Contact struct {
	gorm.Model
	CustomerID uint `gorm:"not null;index" json:"customer_id"`

	Email     string `gorm:"not null;index" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Position  string `json:"position"`
	Phone     string `json:"phone"`

	// Status flags mirrored from events; the authoritative dispatch-time
	// check is the suppression table.
	IsBounced      bool `gorm:"default:false" json:"is_bounced"`
	IsUnsubscribed bool `gorm:"default:false" json:"is_unsubscribed"`

	Source      string     `json:"source"`
	LastContact *time.Time `json:"last_contact"`

	// Relations
	Memberships []ContactListMembership `gorm:"foreignKey:ContactID" json:"lists,omitempty"`
}

// ContactListMembership joins contacts to lists.
type ContactListMembership struct {
	gorm.Model
	ContactID     uint `gorm:"not null;index" json:"contact_id"`
	ContactListID uint `gorm:"not null;index" json:"contact_list_id"`
}

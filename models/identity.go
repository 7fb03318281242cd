package models

import (
	"time"

	"gorm.io/gorm"
)

// Identity provider types
const (
	ProviderOutlook = "outlook"
	ProviderSMTP    = "smtp"
)

// SenderIdentity represents a sending mailbox (Outlook or plain SMTP) with
// its own daily quota. Deactivating an identity stops new reservations but
// does not cancel sends already handed to the mailer.
type SenderIdentity struct {
	gorm.Model
	CustomerID uint `gorm:"not null;index" json:"customer_id"`

	EmailAddress string `gorm:"not null;index" json:"email_address"`
	DisplayName  string `gorm:"not null" json:"display_name"`
	Provider     string `gorm:"not null" json:"provider"` // outlook, smtp

	// ========= SMTP Configuration =========
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"` // Encrypted in application layer
	Encryption   string `gorm:"default:'STARTTLS'" json:"encryption"` // SSL, TLS, STARTTLS

	// ========= IMAP Configuration (reply detection) =========
	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port" gorm:"default:993"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"-"` // Encrypted in application layer
	IMAPMailbox  string `json:"imap_mailbox" gorm:"default:'INBOX'"`

	// ========= OAuth Configuration (outlook) =========
	OAuthToken        string     `gorm:"column:oauth_token" json:"-"`         // Encrypted
	OAuthRefreshToken string     `gorm:"column:oauth_refresh_token" json:"-"` // Encrypted
	OAuthExpiry       *time.Time `gorm:"column:oauth_expiry" json:"oauth_expiry"`

	// ========= Quota =========
	// Timezone is the provider-local zone the daily counter resets in.
	Timezone       string     `gorm:"default:'UTC'" json:"timezone"`
	DailySendLimit int        `gorm:"default:150" json:"daily_send_limit"`
	SentToday      int        `gorm:"default:0" json:"sent_today"`
	LastResetAt    *time.Time `json:"last_reset_at"`
	TotalSent      int        `gorm:"default:0" json:"total_sent"`

	// No gorm default tag: it would omit false from the INSERT and store the
	// identity as active. CreateIdentity sets true explicitly.
	IsActive     bool       `json:"is_active"`
	LastTestedAt *time.Time `json:"last_tested_at"`
	LastError    *string    `json:"last_error"`
}

// Sanitize clears credential fields before the identity is serialized in a
// response.
func (s *SenderIdentity) Sanitize() {
	s.SMTPPassword = ""
	s.IMAPPassword = ""
	s.OAuthToken = ""
	s.OAuthRefreshToken = ""
}

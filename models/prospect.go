package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Prospect statuses. stepN_sent statuses are produced by StepSentStatus.
const (
	ProspectStatusPending      = "pending"
	ProspectStatusReplied      = "replied"
	ProspectStatusBounced      = "bounced"
	ProspectStatusUnsubscribed = "unsubscribed"
	ProspectStatusSuppressed   = "suppressed"
)

// StepSentStatus returns the lastStatus value for a sent step, e.g. "step2_sent".
func StepSentStatus(stepNumber int) string {
	return fmt.Sprintf("step%d_sent", stepNumber)
}

// ParseStepSentStatus extracts the step number from a "stepN_sent" status.
// Returns 0 for any other status.
func ParseStepSentStatus(status string) int {
	if !strings.HasPrefix(status, "step") || !strings.HasSuffix(status, "_sent") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(status, "step"), "_sent"))
	if err != nil || n < 1 {
		return 0
	}
	return n
}

// Prospect is the enrollment of a contact in a campaign. Contact fields are
// denormalized at enrollment time so template rendering and suppression
// checks need no join. The step cursor only moves forward.
type Prospect struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`
	ContactID  uint `gorm:"not null;index" json:"contact_id"`
	CustomerID uint `gorm:"not null;index" json:"customer_id"`

	Email     string `gorm:"not null;index" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`

	LastStatus string `gorm:"default:'pending';index" json:"last_status"`

	// Engagement
	OpenCount        int        `gorm:"default:0" json:"open_count"`
	LastOpenedAt     *time.Time `json:"last_opened_at"`
	ReplyDetectedAt  *time.Time `json:"reply_detected_at"`
	LastReplySnippet string     `json:"last_reply_snippet"`
	UnsubscribedAt   *time.Time `json:"unsubscribed_at"`
	BouncedAt        *time.Time `json:"bounced_at"`

	// Relations
	Steps []ProspectStep `gorm:"foreignKey:ProspectID" json:"step_state,omitempty"`
}

// ProspectStep is the per-step dispatch state for one prospect. EligibleAt is
// computed once (delay jitter drawn a single time) and persisted so repeated
// ticks converge on a stable target instant.
type ProspectStep struct {
	gorm.Model
	ProspectID uint `gorm:"not null;uniqueIndex:idx_prospect_step" json:"prospect_id"`
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`
	StepNumber int  `gorm:"not null;uniqueIndex:idx_prospect_step" json:"step_number"`

	EligibleAt time.Time  `gorm:"not null;index" json:"eligible_at"`
	SentAt     *time.Time `json:"sent_at"`
	MessageID  string     `gorm:"index" json:"message_id"`

	// Retry state for transmission failures (distinct from provider bounces).
	Attempts  int        `gorm:"default:0" json:"attempts"`
	LastError *string    `json:"last_error"`
	FailedAt  *time.Time `json:"failed_at"`
}

// InTerminalStatus reports whether the prospect receives no further sends.
func (p *Prospect) InTerminalStatus() bool {
	switch p.LastStatus {
	case ProspectStatusReplied, ProspectStatusBounced,
		ProspectStatusUnsubscribed, ProspectStatusSuppressed:
		return true
	}
	return false
}

// LastSentStep returns the highest step number already sent, 0 if none.
func (p *Prospect) LastSentStep() int {
	return ParseStepSentStatus(p.LastStatus)
}

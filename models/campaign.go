package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign statuses
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusRunning   = "running"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
)

// MaxSequenceSteps caps the length of a campaign's sequence.
const MaxSequenceSteps = 10

// Campaign represents an outbound sequence campaign. Status transitions are
// explicit operator actions: draft -> running -> {paused -> running, completed}.
type Campaign struct {
	gorm.Model
	CustomerID uint `gorm:"not null;index" json:"customer_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Status      string `gorm:"default:'draft'" json:"status"`

	SenderIdentityID *uint `gorm:"index" json:"sender_identity_id"`

	// Scheduling: ScheduleID wins; the legacy per-campaign window (evaluated
	// in UTC) is the fallback when no schedule is attached.
	ScheduleID           *uint `gorm:"index" json:"schedule_id"`
	SendWindowHoursStart int   `gorm:"default:0" json:"send_window_hours_start"`
	SendWindowHoursEnd   int   `gorm:"default:0" json:"send_window_hours_end"`

	// Sequence-level defaults applied to steps created without delays.
	FollowUpDelayDaysMin int `gorm:"default:2" json:"follow_up_delay_days_min"`
	FollowUpDelayDaysMax int `gorm:"default:4" json:"follow_up_delay_days_max"`

	// ReplyHaltsSequence controls whether a replied event stops further steps
	// for that prospect. No column default: a gorm default tag would drop the
	// zero value from the INSERT, making false unpersistable at create time.
	// CreateCampaign sets the configured default explicitly.
	ReplyHaltsSequence bool `json:"reply_halts_sequence"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Statistics (denormalized for dashboards)
	TotalProspects   int `gorm:"default:0" json:"total_prospects"`
	SentCount        int `gorm:"default:0" json:"sent_count"`
	OpenCount        int `gorm:"default:0" json:"open_count"`
	ReplyCount       int `gorm:"default:0" json:"reply_count"`
	BounceCount      int `gorm:"default:0" json:"bounce_count"`
	UnsubscribeCount int `gorm:"default:0" json:"unsubscribe_count"`

	// Relations
	Steps     []SequenceStep `gorm:"foreignKey:CampaignID" json:"steps,omitempty"`
	Prospects []Prospect     `gorm:"foreignKey:CampaignID" json:"prospects,omitempty"`
}

// SequenceStep is one email of a campaign's sequence. Step 1 always has zero
// delay; later steps wait a uniform-random number of days in
// [DelayDaysMin, DelayDaysMax] after the previous step was sent.
type SequenceStep struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	StepNumber      int    `gorm:"not null" json:"step_number"` // 1-based
	SubjectTemplate string `gorm:"not null" json:"subject_template"`
	BodyTemplate    string `gorm:"not null;type:text" json:"body_template"`
	DelayDaysMin    int    `gorm:"default:0" json:"delay_days_min"`
	DelayDaysMax    int    `gorm:"default:0" json:"delay_days_max"`

	// Tracking
	SentCount int `gorm:"default:0" json:"sent_count"`
}

// IsTerminalStatus reports whether a campaign status admits no further
// transitions besides deletion.
func (c *Campaign) IsTerminalStatus() bool {
	return c.Status == CampaignStatusCompleted
}

package models

import (
	"gorm.io/gorm"
)

// DefaultScheduleName is protected from deletion.
const DefaultScheduleName = "Default"

// Schedule defines when a campaign is allowed to send: a timezone, a set of
// weekdays and an hour range evaluated in that timezone. Hour ranges never
// wrap past midnight (StartHour < EndHour enforced at the API boundary).
type Schedule struct {
	gorm.Model
	CustomerID uint `gorm:"not null;index;uniqueIndex:idx_schedule_customer_name" json:"customer_id"`

	Name     string `gorm:"not null;uniqueIndex:idx_schedule_customer_name" json:"name"`
	Timezone string `gorm:"not null" json:"timezone"` // IANA, e.g. Europe/Berlin

	DaysOfWeek []int `gorm:"type:jsonb;serializer:json" json:"days_of_week"` // 0=Sunday .. 6=Saturday
	StartHour  int   `gorm:"not null" json:"start_hour"`                     // inclusive, 0-23
	EndHour    int   `gorm:"not null" json:"end_hour"`                       // exclusive, 0-23
}

// AllowsDay reports whether the given weekday (0=Sunday) is selected.
func (s *Schedule) AllowsDay(weekday int) bool {
	for _, d := range s.DaysOfWeek {
		if d == weekday {
			return true
		}
	}
	return false
}

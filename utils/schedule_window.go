package utils

import (
	"fmt"
	"time"

	"odcrm/models"
)

// WithinScheduleWindow reports whether instant falls inside the schedule's
// send window: weekday selected and hour in [StartHour, EndHour), both
// evaluated in the schedule's timezone.
func WithinScheduleWindow(schedule *models.Schedule, instant time.Time) (bool, error) {
	loc, err := time.LoadLocation(schedule.Timezone)
	if err != nil {
		return false, fmt.Errorf("schedule %d has invalid timezone %q: %w", schedule.ID, schedule.Timezone, err)
	}

	local := instant.In(loc)
	if !schedule.AllowsDay(int(local.Weekday())) {
		return false, nil
	}
	hour := local.Hour()
	return hour >= schedule.StartHour && hour < schedule.EndHour, nil
}

// WithinCampaignWindow evaluates the send window for a campaign: its schedule
// if one is attached, otherwise the legacy per-campaign hour range in UTC.
// A campaign with neither restriction (legacy window 0/0) can always send.
func WithinCampaignWindow(campaign *models.Campaign, schedule *models.Schedule, instant time.Time) (bool, error) {
	if schedule != nil {
		return WithinScheduleWindow(schedule, instant)
	}

	start, end := campaign.SendWindowHoursStart, campaign.SendWindowHoursEnd
	if start == 0 && end == 0 {
		return true, nil
	}
	hour := instant.UTC().Hour()
	return hour >= start && hour < end, nil
}

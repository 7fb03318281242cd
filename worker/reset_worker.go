package worker

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"odcrm/models"
	"odcrm/utils"
)

// ResetWorker zeroes identity daily counters once per provider-local day.
// Each identity resets at midnight in its own timezone, not UTC, so a Sydney
// mailbox and a Berlin mailbox roll over at different instants.
type ResetWorker struct {
	DB     *gorm.DB
	Logger *log.Logger

	Now func() time.Time
}

func NewResetWorker(db *gorm.DB, logger *log.Logger) *ResetWorker {
	return &ResetWorker{
		DB:     db,
		Logger: logger,
		Now:    time.Now,
	}
}

func (rw *ResetWorker) Start(ctx context.Context) {
	rw.Logger.Println("Counter reset worker started")

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.Logger.Println("Counter reset worker shutting down...")
			return
		case <-ticker.C:
			rw.ResetDueCounters()
		}
	}
}

// ResetDueCounters resets every identity whose provider-local date has
// changed since its last reset. Exported so tests can drive it directly.
func (rw *ResetWorker) ResetDueCounters() {
	var identities []models.SenderIdentity
	if err := rw.DB.Where("sent_today > 0 OR last_reset_at IS NULL").Find(&identities).Error; err != nil {
		utils.ReportError(err, "reset_fetch_identities", nil)
		return
	}

	now := rw.Now()
	for _, identity := range identities {
		loc, err := time.LoadLocation(identity.Timezone)
		if err != nil {
			utils.ReportError(err, "reset_bad_timezone", map[string]interface{}{
				"identity_id": identity.ID,
				"timezone":    identity.Timezone,
			})
			continue
		}

		if identity.LastResetAt != nil && sameLocalDay(*identity.LastResetAt, now, loc) {
			continue
		}

		if err := rw.DB.Model(&models.SenderIdentity{}).
			Where("id = ?", identity.ID).
			Updates(map[string]interface{}{
				"sent_today":    0,
				"last_reset_at": now,
			}).Error; err != nil {
			utils.ReportError(err, "reset_counter", map[string]interface{}{
				"identity_id": identity.ID,
			})
			continue
		}
		rw.Logger.Printf("Reset daily counter for identity %d (%s)", identity.ID, identity.Timezone)
	}
}

func sameLocalDay(a, b time.Time, loc *time.Location) bool {
	al, bl := a.In(loc), b.In(loc)
	ay, am, ad := al.Date()
	by, bm, bd := bl.Date()
	return ay == by && am == bm && ad == bd
}

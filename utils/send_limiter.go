package utils

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"odcrm/models"
)

// Capacity errors. Both mean "try again on a later tick", never a user-facing
// failure.
var (
	ErrDailyLimitExceeded = errors.New("identity daily send limit exceeded")
	ErrCustomerCapReached = errors.New("customer daily send cap reached")
)

// ReserveIdentitySlot atomically claims one send against the identity's daily
// limit. The guarded UPDATE makes concurrent reservations safe: the increment
// only lands while sent_today is still under the limit, so the limit can
// never be overshot under race.
func ReserveIdentitySlot(db *gorm.DB, identityID uint) error {
	res := db.Model(&models.SenderIdentity{}).
		Where("id = ? AND is_active = ? AND sent_today < daily_send_limit", identityID, true).
		Update("sent_today", gorm.Expr("sent_today + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDailyLimitExceeded
	}
	return nil
}

// ReleaseIdentitySlot returns a reservation that never turned into a
// transmission. Only call before the send is actually handed off.
func ReleaseIdentitySlot(db *gorm.DB, identityID uint) error {
	return db.Model(&models.SenderIdentity{}).
		Where("id = ? AND sent_today > 0", identityID).
		Update("sent_today", gorm.Expr("sent_today - 1")).Error
}

// ConsumeIdentitySlot finalizes a reservation after successful transmission
// by bumping the lifetime counter. The daily counter was already incremented
// at reservation time.
func ConsumeIdentitySlot(db *gorm.DB, identityID uint) error {
	return db.Model(&models.SenderIdentity{}).
		Where("id = ?", identityID).
		Update("total_sent", gorm.Expr("total_sent + 1")).Error
}

// ReserveCustomerSlot claims one send against the customer-wide daily cap.
// The cap is the stricter gate and must be checked before the identity
// reservation so an identity slot is never claimed and then wasted. The
// counter is a single day-keyed row per customer updated with a guarded
// increment, never computed by summing identity counters.
func ReserveCustomerSlot(db *gorm.DB, customerID uint, day string, cap int) error {
	// Ensure the row exists; conflicts are fine, someone else created it.
	counter := models.CustomerSendCounter{CustomerID: customerID, Day: day}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&counter).Error; err != nil {
		return err
	}

	res := db.Model(&models.CustomerSendCounter{}).
		Where("customer_id = ? AND day = ? AND used < ?", customerID, day, cap).
		Update("used", gorm.Expr("used + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCustomerCapReached
	}
	return nil
}

// ReleaseCustomerSlot undoes a customer cap reservation after a downstream
// gate or the transmission itself failed.
func ReleaseCustomerSlot(db *gorm.DB, customerID uint, day string) error {
	return db.Model(&models.CustomerSendCounter{}).
		Where("customer_id = ? AND day = ? AND used > 0", customerID, day).
		Update("used", gorm.Expr("used - 1")).Error
}

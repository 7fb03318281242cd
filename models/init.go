package models

import (
	"gorm.io/gorm"
)

// Migrate runs AutoMigrate for every engine entity, dependency order first.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Customer{},
		&CustomerSendCounter{},
		&SenderIdentity{},
		&Schedule{},
		&SuppressionEntry{},
		&ContactList{},
		&Contact{},
		&ContactListMembership{},
		&Campaign{},
		&SequenceStep{},
		&Prospect{},
		&ProspectStep{},
		&Event{},
	)
}

package utils

import (
	"strings"

	"gorm.io/gorm"

	"odcrm/models"
)

// NormalizeSuppressionValue lowercases and trims a suppression value.
func NormalizeSuppressionValue(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// EmailDomain returns the domain part of an address, lowercased. Empty string
// when the address has no @.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// MatchesSuppression reports whether the entry blocks the given address.
// Email entries match the exact address case-insensitively; domain entries
// match when the address's domain equals the entry value (no substring match).
func MatchesSuppression(entry *models.SuppressionEntry, email string) bool {
	addr := strings.ToLower(strings.TrimSpace(email))
	switch entry.Type {
	case models.SuppressionEmail:
		return addr == entry.Value
	case models.SuppressionDomain:
		return EmailDomain(addr) == entry.Value
	}
	return false
}

// IsSuppressed checks the address against the customer's suppression list.
// Called immediately before every dispatch attempt so entries added after
// enrollment take effect on the next tick.
func IsSuppressed(db *gorm.DB, customerID uint, email string) (bool, error) {
	addr := strings.ToLower(strings.TrimSpace(email))
	domain := EmailDomain(addr)

	var count int64
	err := db.Model(&models.SuppressionEntry{}).
		Where("customer_id = ?", customerID).
		Where("(type = ? AND value = ?) OR (type = ? AND value = ?)",
			models.SuppressionEmail, addr,
			models.SuppressionDomain, domain).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

package utils

import (
	"fmt"
	"strconv"
	"time"
)

// GenerateRateLimitKey creates a unique key for rate limiting
func GenerateRateLimitKey(customerID uint, identityID, path string) string {
	return fmt.Sprintf("rl:%d:%s:%s", customerID, identityID, path)
}

// DayKey formats an instant as the YYYY-MM-DD key used by daily counters.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ParseUint safely parses a string to uint
func ParseUint(s string) uint {
	i, _ := strconv.ParseUint(s, 10, 32)
	return uint(i)
}

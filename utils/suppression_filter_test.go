package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odcrm/models"
)

func TestMatchesSuppression(t *testing.T) {
	email := &models.SuppressionEntry{Type: models.SuppressionEmail, Value: "jane@corp.com"}
	domain := &models.SuppressionEntry{Type: models.SuppressionDomain, Value: "corp.com"}

	assert.True(t, MatchesSuppression(email, "jane@corp.com"))
	assert.True(t, MatchesSuppression(email, "Jane@Corp.COM"))
	assert.False(t, MatchesSuppression(email, "john@corp.com"))

	assert.True(t, MatchesSuppression(domain, "anyone@corp.com"))
	assert.True(t, MatchesSuppression(domain, "x@CORP.com"))
	// Exact domain equality, never substring.
	assert.False(t, MatchesSuppression(domain, "x@notcorp.com"))
	assert.False(t, MatchesSuppression(domain, "x@corp.com.evil.net"))
}

func TestEmailDomain(t *testing.T) {
	assert.Equal(t, "corp.com", EmailDomain("jane@corp.com"))
	assert.Equal(t, "corp.com", EmailDomain("jane@CORP.com"))
	assert.Equal(t, "", EmailDomain("not-an-email"))
	assert.Equal(t, "", EmailDomain("trailing@"))
}

func TestIsSuppressedScopedToCustomer(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Create(&models.SuppressionEntry{
		CustomerID: 1, Type: models.SuppressionDomain, Value: "blocked.com",
	}).Error)
	require.NoError(t, db.Create(&models.SuppressionEntry{
		CustomerID: 1, Type: models.SuppressionEmail, Value: "optout@ok.com",
	}).Error)

	got, err := IsSuppressed(db, 1, "someone@blocked.com")
	require.NoError(t, err)
	assert.True(t, got)

	got, err = IsSuppressed(db, 1, "OptOut@ok.com")
	require.NoError(t, err)
	assert.True(t, got)

	got, err = IsSuppressed(db, 1, "fine@ok.com")
	require.NoError(t, err)
	assert.False(t, got)

	// Another customer's list never bleeds over.
	got, err = IsSuppressed(db, 2, "someone@blocked.com")
	require.NoError(t, err)
	assert.False(t, got)
}

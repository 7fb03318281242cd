package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odcrm/config"
)

func init() {
	config.AppConfig.TokenSigningKey = "test-signing-key"
}

func TestLinkTokenRoundTrip(t *testing.T) {
	token, err := SignLinkToken("msg-123", TokenPurposeOpen)
	require.NoError(t, err)

	messageID, err := VerifyLinkToken(token, TokenPurposeOpen)
	require.NoError(t, err)
	assert.Equal(t, "msg-123", messageID)
}

func TestLinkTokenPurposeMismatch(t *testing.T) {
	token, err := SignLinkToken("msg-123", TokenPurposeClick)
	require.NoError(t, err)

	_, err = VerifyLinkToken(token, TokenPurposeUnsubscribe)
	assert.Error(t, err)
}

func TestLinkTokenTampered(t *testing.T) {
	token, err := SignLinkToken("msg-123", TokenPurposeOpen)
	require.NoError(t, err)

	_, err = VerifyLinkToken(token+"x", TokenPurposeOpen)
	assert.Error(t, err)
}

func TestInjectTracking(t *testing.T) {
	body := `<p>Hello</p><a href="https://example.com/pricing">Pricing</a>`
	out := InjectTracking(body, "https://crm.test", "msg-9")

	// Open pixel appended.
	assert.Contains(t, out, `<img src="https://crm.test/track/open/msg-9/`)

	// Original link wrapped through the click tracker.
	assert.Contains(t, out, `https://crm.test/track/click/msg-9/`)
	assert.Contains(t, out, "url=https%3A%2F%2Fexample.com%2Fpricing")
	assert.NotContains(t, out, `href="https://example.com/pricing"`)
}

func TestInjectTrackingNoLinks(t *testing.T) {
	out := InjectTracking("<p>No links here</p>", "https://crm.test", "msg-9")
	assert.True(t, strings.HasPrefix(out, "<p>No links here</p>"))
	assert.Contains(t, out, "/track/open/msg-9/")
}

package utils

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"odcrm/config"
)

// Link token purposes
const (
	TokenPurposeOpen        = "open"
	TokenPurposeClick       = "click"
	TokenPurposeUnsubscribe = "unsubscribe"
)

type linkClaims struct {
	MessageID string `json:"mid"`
	Purpose   string `json:"purpose"`
	jwt.RegisteredClaims
}

// SignLinkToken issues the token embedded in tracking and unsubscribe URLs.
// Tokens are long-lived: opens can arrive months after the send.
func SignLinkToken(messageID, purpose string) (string, error) {
	claims := linkClaims{
		MessageID: messageID,
		Purpose:   purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().AddDate(1, 0, 0)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.TokenSigningKey))
}

// VerifyLinkToken checks a link token and returns its message ID. The purpose
// must match the endpoint the token arrived on.
func VerifyLinkToken(tokenStr, purpose string) (string, error) {
	var claims linkClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(config.AppConfig.TokenSigningKey), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Purpose != purpose {
		return "", fmt.Errorf("invalid link token")
	}
	return claims.MessageID, nil
}

// TrackingPixelURL generates the open-tracking pixel URL for a message.
func TrackingPixelURL(baseURL, messageID string) (string, error) {
	token, err := SignLinkToken(messageID, TokenPurposeOpen)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/track/open/%s/%s", baseURL, messageID, token), nil
}

// ClickTrackURL wraps a link so the click is recorded before redirecting.
func ClickTrackURL(baseURL, messageID, originalURL string) (string, error) {
	token, err := SignLinkToken(messageID, TokenPurposeClick)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/track/click/%s/%s?url=%s",
		baseURL, messageID, token, url.QueryEscape(originalURL)), nil
}

// UnsubscribeURL generates the one-click unsubscribe link for a message.
func UnsubscribeURL(baseURL, messageID string) (string, error) {
	token, err := SignLinkToken(messageID, TokenPurposeUnsubscribe)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/unsubscribe/%s", baseURL, token), nil
}

// InjectTracking appends the open pixel and rewrites links through the click
// tracker. Best effort: when token signing fails the original content is
// returned unchanged rather than blocking the send.
func InjectTracking(htmlContent, baseURL, messageID string) string {
	pixelURL, err := TrackingPixelURL(baseURL, messageID)
	if err != nil {
		return htmlContent
	}
	trackingPixel := fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" style="display:none">`, pixelURL)

	return injectClickTracking(htmlContent, baseURL, messageID) + trackingPixel
}

func injectClickTracking(html, baseURL, messageID string) string {
	const startTag = `<a href="`
	const endTag = `"`
	offset := 0

	for {
		startIdx := strings.Index(html[offset:], startTag)
		if startIdx == -1 {
			break
		}
		startIdx += offset + len(startTag)

		endIdx := strings.Index(html[startIdx:], endTag)
		if endIdx == -1 {
			break
		}
		endIdx += startIdx

		trackedURL, err := ClickTrackURL(baseURL, messageID, html[startIdx:endIdx])
		if err != nil {
			break
		}

		html = html[:startIdx] + trackedURL + html[endIdx:]
		offset = startIdx + len(trackedURL)
	}

	return html
}

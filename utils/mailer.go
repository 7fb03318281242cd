package utils

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"

	"odcrm/config"
	"odcrm/models"
)

// Outlook SMTP gateway used when an identity has no explicit SMTP host.
const (
	outlookSMTPHost = "smtp.office365.com"
	outlookSMTPPort = 587
)

// OutboundEmail is a fully rendered message ready for transmission.
type OutboundEmail struct {
	To        string
	Subject   string
	Body      string
	MessageID string
}

// Mailer hands rendered messages to the external transmission collaborator.
// The dispatch worker wraps Send in a per-send timeout.
type Mailer interface {
	Send(ctx context.Context, identity *models.SenderIdentity, email OutboundEmail) error
}

// SMTPMailer sends through the identity's own SMTP endpoint (or the Outlook
// gateway for outlook identities), decrypting stored credentials per send.
type SMTPMailer struct {
	DB *gorm.DB
}

func NewSMTPMailer(db *gorm.DB) *SMTPMailer {
	return &SMTPMailer{DB: db}
}

func (m *SMTPMailer) Send(ctx context.Context, identity *models.SenderIdentity, email OutboundEmail) error {
	host, port := identity.SMTPHost, identity.SMTPPort
	username := identity.SMTPUsername
	if username == "" {
		username = identity.EmailAddress
	}

	var password string
	switch identity.Provider {
	case models.ProviderOutlook:
		if host == "" {
			host, port = outlookSMTPHost, outlookSMTPPort
		}
		token, err := RefreshOutlookToken(ctx, m.DB, identity)
		if err != nil {
			return fmt.Errorf("outlook token refresh failed: %w", err)
		}
		password = token
	default:
		decrypted, err := Decrypt(identity.SMTPPassword)
		if err != nil {
			return fmt.Errorf("failed to decrypt SMTP password: %w", err)
		}
		password = decrypted
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(identity.EmailAddress, identity.DisplayName))
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetHeader("Message-ID", fmt.Sprintf("<%s@odcrm>", email.MessageID))
	msg.SetBody("text/html", email.Body)

	dialer := gomail.NewDialer(host, port, username, password)

	// gomail has no context support; run the dial in a goroutine so the
	// caller's timeout still applies and one slow send cannot stall a tick.
	done := make(chan error, 1)
	go func() {
		done <- dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RefreshOutlookToken returns a valid access token for an outlook identity,
// refreshing and persisting it when the stored one has expired.
func RefreshOutlookToken(ctx context.Context, db *gorm.DB, identity *models.SenderIdentity) (string, error) {
	access, err := Decrypt(identity.OAuthToken)
	if err != nil {
		return "", err
	}
	if access != "" && identity.OAuthExpiry != nil && identity.OAuthExpiry.After(time.Now().Add(time.Minute)) {
		return access, nil
	}

	refresh, err := Decrypt(identity.OAuthRefreshToken)
	if err != nil {
		return "", err
	}
	if refresh == "" {
		return "", fmt.Errorf("identity %d has no refresh token", identity.ID)
	}

	conf := &oauth2.Config{
		ClientID:     config.AppConfig.Microsoft.ClientID,
		ClientSecret: config.AppConfig.Microsoft.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: config.AppConfig.Microsoft.TokenURL},
	}
	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		return "", err
	}

	encAccess, err := Encrypt(token.AccessToken)
	if err != nil {
		return "", err
	}
	updates := map[string]interface{}{
		"oauth_token":  encAccess,
		"oauth_expiry": token.Expiry,
	}
	if token.RefreshToken != "" && token.RefreshToken != refresh {
		encRefresh, err := Encrypt(token.RefreshToken)
		if err != nil {
			return "", err
		}
		updates["oauth_refresh_token"] = encRefresh
	}
	if err := db.Model(&models.SenderIdentity{}).Where("id = ?", identity.ID).
		Updates(updates).Error; err != nil {
		return "", err
	}

	return token.AccessToken, nil
}

package worker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"gorm.io/gorm"

	"odcrm/models"
	"odcrm/utils"
)

// ReplyWorker polls the IMAP inbox of each identity and turns inbound mail
// from enrolled prospects into replied events. Events flow through the same
// recorder as webhook deliveries, so the reply policy (halt or annotate) is
// applied in exactly one place.
type ReplyWorker struct {
	DB       *gorm.DB
	Logger   *log.Logger
	Interval time.Duration

	lastPoll time.Time
}

func NewReplyWorker(db *gorm.DB, logger *log.Logger, interval time.Duration) *ReplyWorker {
	return &ReplyWorker{
		DB:       db,
		Logger:   logger,
		Interval: interval,
		lastPoll: time.Now().Add(-24 * time.Hour),
	}
}

func (rw *ReplyWorker) Start(ctx context.Context) {
	rw.Logger.Println("Reply worker started")

	ticker := time.NewTicker(rw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.Logger.Println("Reply worker shutting down...")
			return
		case <-ticker.C:
			rw.pollAllInboxes()
		}
	}
}

func (rw *ReplyWorker) pollAllInboxes() {
	var identities []models.SenderIdentity
	if err := rw.DB.Where("is_active = ? AND imap_host <> ''", true).Find(&identities).Error; err != nil {
		utils.ReportError(err, "reply_fetch_identities", nil)
		return
	}

	since := rw.lastPoll
	rw.lastPoll = time.Now()

	for _, identity := range identities {
		if err := rw.pollInbox(&identity, since); err != nil {
			utils.ReportError(err, "reply_poll", map[string]interface{}{
				"identity_id": identity.ID,
				"email":       identity.EmailAddress,
			})
		}
	}
}

func (rw *ReplyWorker) pollInbox(identity *models.SenderIdentity, since time.Time) error {
	password, err := utils.Decrypt(identity.IMAPPassword)
	if err != nil {
		return err
	}
	if password == "" {
		// Identity has no usable IMAP credentials; replies for it can still
		// arrive through the provider webhook.
		return nil
	}

	username := identity.IMAPUsername
	if username == "" {
		username = identity.EmailAddress
	}

	c, err := client.DialTLS(fmt.Sprintf("%s:%d", identity.IMAPHost, identity.IMAPPort), nil)
	if err != nil {
		return fmt.Errorf("IMAP dial failed: %w", err)
	}
	defer c.Logout()

	if err := c.Login(username, password); err != nil {
		return fmt.Errorf("IMAP login failed: %w", err)
	}

	mailbox := identity.IMAPMailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := c.Select(mailbox, true); err != nil {
		return fmt.Errorf("IMAP select failed: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since.Add(-time.Hour) // IMAP SINCE has day granularity; overlap is deduped downstream
	ids, err := c.Search(criteria)
	if err != nil {
		return fmt.Errorf("IMAP search failed: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope}, messages)
	}()

	for msg := range messages {
		if msg.Envelope == nil || len(msg.Envelope.From) == 0 {
			continue
		}
		rw.handleInboundMessage(identity, msg.Envelope)
	}
	return <-done
}

// handleInboundMessage matches the sender address against active enrollments
// of the identity's customer and records a replied event.
func (rw *ReplyWorker) handleInboundMessage(identity *models.SenderIdentity, envelope *imap.Envelope) {
	from := strings.ToLower(envelope.From[0].Address())
	if from == "" || from == strings.ToLower(identity.EmailAddress) {
		return
	}

	var prospect models.Prospect
	err := rw.DB.
		Joins("JOIN campaigns ON campaigns.id = prospects.campaign_id").
		Where("prospects.customer_id = ? AND prospects.email = ?", identity.CustomerID, from).
		Where("campaigns.status IN ?", []string{models.CampaignStatusRunning, models.CampaignStatusPaused}).
		Where("prospects.last_status LIKE 'step%_sent'").
		Order("prospects.id DESC").
		First(&prospect).Error
	if err == gorm.ErrRecordNotFound {
		return
	}
	if err != nil {
		utils.ReportError(err, "reply_match", map[string]interface{}{"from": from})
		return
	}

	occurredAt := envelope.Date
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	if err := utils.ApplyEngagementEvent(rw.DB, utils.EventInput{
		CustomerID: prospect.CustomerID,
		CampaignID: prospect.CampaignID,
		ProspectID: prospect.ID,
		Type:       models.EventReplied,
		OccurredAt: occurredAt,
		Metadata: map[string]string{
			"snippet": envelope.Subject,
			"source":  "imap",
		},
	}); err != nil {
		utils.ReportError(err, "reply_record", map[string]interface{}{
			"prospect_id": prospect.ID,
		})
		return
	}

	rw.Logger.Printf("Recorded reply from %s (prospect %d)", from, prospect.ID)
}

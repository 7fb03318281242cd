package worker

import (
	"context"
	"log"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"odcrm/config"
	"odcrm/models"
	"odcrm/utils"
)

// DispatchWorker runs the send-scheduling loop. Each tick is a bounded unit
// of work: it gathers due prospect steps across running campaigns, applies
// the window/suppression/capacity gates and hands eligible sends to the
// mailer through a bounded pool. Pausing a campaign is observed by the next
// tick at the latest; in-flight sends of the current tick complete.
type DispatchWorker struct {
	DB     *gorm.DB
	Mailer utils.Mailer
	Logger *log.Logger
	Cfg    config.DispatchConfig

	// Now and Rand are injectable for tests.
	Now  func() time.Time
	Rand *rand.Rand
}

func NewDispatchWorker(db *gorm.DB, mailer utils.Mailer, logger *log.Logger, cfg config.DispatchConfig) *DispatchWorker {
	return &DispatchWorker{
		DB:     db,
		Mailer: mailer,
		Logger: logger,
		Cfg:    cfg,
		Now:    time.Now,
		Rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (dw *DispatchWorker) Start(ctx context.Context) {
	dw.Logger.Println("Dispatch worker started")

	ticker := time.NewTicker(dw.Cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			dw.Logger.Println("Dispatch worker shutting down...")
			return
		case <-ticker.C:
			if err := dw.RunTick(ctx); err != nil {
				// Fatal tick errors (database unavailability) abort the
				// whole tick; the next tick retries from persisted state.
				utils.ReportError(err, "dispatch_tick", nil)
			}
		}
	}
}

// candidate is one prospect step that may be sent this tick.
type candidate struct {
	campaign *models.Campaign
	schedule *models.Schedule
	identity *models.SenderIdentity
	prospect models.Prospect
	step     models.SequenceStep
	state    models.ProspectStep
}

// RunTick performs one scheduling pass. Exported so tests can drive the
// worker without the ticker.
func (dw *DispatchWorker) RunTick(ctx context.Context) error {
	now := dw.Now()

	var campaigns []models.Campaign
	if err := dw.DB.Preload("Steps").
		Where("status = ?", models.CampaignStatusRunning).
		Find(&campaigns).Error; err != nil {
		return err
	}

	var candidates []candidate
	for i := range campaigns {
		due, err := dw.collectCampaignCandidates(&campaigns[i], now)
		if err != nil {
			// One campaign's bad state must not block the others.
			utils.ReportError(err, "collect_candidates", map[string]interface{}{
				"campaign_id": campaigns[i].ID,
			})
			continue
		}
		candidates = append(candidates, due...)
	}

	// Earliest-due first, enrollment order on exact ties, so early
	// enrollees are never starved when capacity is scarce.
	sortCandidates(candidates)

	dw.processCandidates(ctx, candidates, now)
	return nil
}

// collectCampaignCandidates finds the prospects of one running campaign whose
// next step is due at or before now.
func (dw *DispatchWorker) collectCampaignCandidates(campaign *models.Campaign, now time.Time) ([]candidate, error) {
	if campaign.SenderIdentityID == nil {
		return nil, nil
	}

	var identity models.SenderIdentity
	if err := dw.DB.First(&identity, *campaign.SenderIdentityID).Error; err != nil {
		return nil, err
	}

	var schedule *models.Schedule
	if campaign.ScheduleID != nil {
		var s models.Schedule
		err := dw.DB.First(&s, *campaign.ScheduleID).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			// Schedule was deleted; campaign falls back to its legacy window.
		case err != nil:
			return nil, err
		default:
			schedule = &s
		}
	}

	var prospects []models.Prospect
	if err := dw.DB.Where("campaign_id = ? AND last_status NOT IN ?",
		campaign.ID, []string{
			models.ProspectStatusReplied,
			models.ProspectStatusBounced,
			models.ProspectStatusUnsubscribed,
			models.ProspectStatusSuppressed,
		}).Order("id").Find(&prospects).Error; err != nil {
		return nil, err
	}

	var due []candidate
	for _, prospect := range prospects {
		step := utils.NextStep(campaign.Steps, &prospect)
		if step == nil {
			continue
		}

		state, err := dw.ensureStepState(campaign, &prospect, step, now)
		if err != nil {
			utils.ReportError(err, "step_state", map[string]interface{}{
				"prospect_id": prospect.ID,
				"step":        step.StepNumber,
			})
			continue
		}
		if state == nil {
			continue
		}
		if state.FailedAt != nil || now.Before(state.EligibleAt) {
			continue
		}

		due = append(due, candidate{
			campaign: campaign,
			schedule: schedule,
			identity: &identity,
			prospect: prospect,
			step:     *step,
			state:    *state,
		})
	}
	return due, nil
}

// ensureStepState loads or creates the per-step dispatch state. The delay
// jitter is drawn exactly once, when the row is first created, so repeated
// ticks converge on the same target instant.
func (dw *DispatchWorker) ensureStepState(campaign *models.Campaign, prospect *models.Prospect, step *models.SequenceStep, now time.Time) (*models.ProspectStep, error) {
	var state models.ProspectStep
	err := dw.DB.Where("prospect_id = ? AND step_number = ?", prospect.ID, step.StepNumber).
		First(&state).Error
	if err == nil {
		return &state, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	eligibleAt := now
	if step.StepNumber > 1 {
		var prev models.ProspectStep
		err := dw.DB.Where("prospect_id = ? AND step_number = ? AND sent_at IS NOT NULL",
			prospect.ID, step.StepNumber-1).First(&prev).Error
		if err == gorm.ErrRecordNotFound {
			// Previous step not sent yet; nothing to schedule.
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		eligibleAt = prev.SentAt.Add(dw.jitterDelay(step))
	}

	state = models.ProspectStep{
		ProspectID: prospect.ID,
		CampaignID: campaign.ID,
		StepNumber: step.StepNumber,
		EligibleAt: eligibleAt,
	}
	if err := dw.DB.Create(&state).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// jitterDelay draws the uniform random inter-step delay for a step.
func (dw *DispatchWorker) jitterDelay(step *models.SequenceStep) time.Duration {
	min, max := step.DelayDaysMin, step.DelayDaysMax
	if max < min {
		max = min
	}
	days := float64(min)
	if max > min {
		days += dw.Rand.Float64() * float64(max-min)
	}
	return time.Duration(days * 24 * float64(time.Hour))
}

func sortCandidates(candidates []candidate) {
	// Insertion sort keeps the comparator obvious; candidate batches are
	// bounded by daily caps, not prospect counts.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0; j-- {
			a, b := &candidates[j-1], &candidates[j]
			if b.state.EligibleAt.Before(a.state.EligibleAt) ||
				(b.state.EligibleAt.Equal(a.state.EligibleAt) && b.prospect.ID < a.prospect.ID) {
				candidates[j-1], candidates[j] = candidates[j], candidates[j-1]
			} else {
				break
			}
		}
	}
}

// processCandidates runs the per-candidate gates and sends through a bounded
// pool. A single candidate's failure never blocks the rest of the tick.
func (dw *DispatchWorker) processCandidates(ctx context.Context, candidates []candidate, now time.Time) {
	concurrency := dw.Cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i := range candidates {
		cand := candidates[i]

		// Gates touching shared counters run serially, in due order, so the
		// tie-break actually decides who gets scarce capacity. Only the
		// transmission itself is parallelized.
		proceed, err := dw.applyGates(&cand, now)
		if err != nil {
			utils.ReportError(err, "dispatch_gates", map[string]interface{}{
				"prospect_id": cand.prospect.ID,
			})
			continue
		}
		if !proceed {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			dw.transmit(ctx, &cand, now)
		}()
	}

	wg.Wait()
}

// applyGates runs window, suppression and capacity checks. Returns false for
// deferrals and terminal suppressions; capacity reservations are held when it
// returns true.
func (dw *DispatchWorker) applyGates(cand *candidate, now time.Time) (bool, error) {
	within, err := utils.WithinCampaignWindow(cand.campaign, cand.schedule, now)
	if err != nil {
		return false, err
	}
	if !within {
		// Deferral, not failure: eligibility is kept and the next tick
		// inside the window picks the prospect up.
		utils.LogDeferral("outside_window", map[string]interface{}{
			"prospect_id": cand.prospect.ID,
			"campaign_id": cand.campaign.ID,
		})
		return false, nil
	}

	suppressed, err := utils.IsSuppressed(dw.DB, cand.campaign.CustomerID, cand.prospect.Email)
	if err != nil {
		return false, err
	}
	if suppressed {
		// Terminal: no send, no event, just the state transition.
		err := dw.DB.Model(&models.Prospect{}).Where("id = ?", cand.prospect.ID).
			Update("last_status", models.ProspectStatusSuppressed).Error
		if err != nil {
			return false, err
		}
		utils.LogEvent("prospect_suppressed", map[string]interface{}{
			"prospect_id": cand.prospect.ID,
			"email":       cand.prospect.Email,
		})
		return false, nil
	}

	// Customer-wide cap first: it is the stricter gate, and checking it
	// before the identity reservation avoids claiming an identity slot that
	// is then wasted.
	day := utils.DayKey(now)
	if err := utils.ReserveCustomerSlot(dw.DB, cand.campaign.CustomerID, day, dw.Cfg.CustomerDailyCap); err != nil {
		if err == utils.ErrCustomerCapReached {
			utils.LogDeferral("customer_cap", map[string]interface{}{
				"customer_id": cand.campaign.CustomerID,
			})
			return false, nil
		}
		return false, err
	}

	if err := utils.ReserveIdentitySlot(dw.DB, cand.identity.ID); err != nil {
		if releaseErr := utils.ReleaseCustomerSlot(dw.DB, cand.campaign.CustomerID, day); releaseErr != nil {
			utils.ReportError(releaseErr, "release_customer_slot", nil)
		}
		if err == utils.ErrDailyLimitExceeded {
			utils.LogDeferral("identity_limit", map[string]interface{}{
				"identity_id": cand.identity.ID,
			})
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// transmit renders and sends one message, then commits the outcome. Called
// with both capacity reservations held.
func (dw *DispatchWorker) transmit(ctx context.Context, cand *candidate, now time.Time) {
	messageID := uuid.New().String()
	subject := utils.RenderTemplate(cand.step.SubjectTemplate, &cand.prospect, cand.identity)
	body := utils.RenderTemplate(cand.step.BodyTemplate, &cand.prospect, cand.identity)
	body = utils.InjectTracking(body, config.AppConfig.BaseURL, messageID)
	if unsubURL, err := utils.UnsubscribeURL(config.AppConfig.BaseURL, messageID); err == nil {
		body += `<br><a href="` + unsubURL + `">Unsubscribe</a>`
	}

	sendCtx, cancel := context.WithTimeout(ctx, dw.Cfg.SendTimeout)
	defer cancel()

	err := dw.Mailer.Send(sendCtx, cand.identity, utils.OutboundEmail{
		To:        cand.prospect.Email,
		Subject:   subject,
		Body:      body,
		MessageID: messageID,
	})
	if err != nil {
		dw.handleSendFailure(cand, now, err)
		return
	}

	if commitErr := dw.commitSend(cand, now, messageID); commitErr != nil {
		utils.ReportError(commitErr, "commit_send", map[string]interface{}{
			"prospect_id": cand.prospect.ID,
			"message_id":  messageID,
		})
	}
}

// commitSend records the sent event and advances the prospect cursor in one
// transaction, so reporting and scheduler state cannot drift apart.
func (dw *DispatchWorker) commitSend(cand *candidate, now time.Time, messageID string) error {
	return dw.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := utils.RecordEvent(tx, utils.EventInput{
			CustomerID: cand.campaign.CustomerID,
			CampaignID: cand.campaign.ID,
			ProspectID: cand.prospect.ID,
			Type:       models.EventSent,
			OccurredAt: now,
			Metadata: map[string]string{
				"message_id":  messageID,
				"step":        models.StepSentStatus(cand.step.StepNumber),
				"identity_id": strconv.FormatUint(uint64(cand.identity.ID), 10),
			},
		}); err != nil {
			return err
		}

		if err := tx.Model(&models.ProspectStep{}).
			Where("id = ?", cand.state.ID).
			Updates(map[string]interface{}{
				"sent_at":    now,
				"message_id": messageID,
			}).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Prospect{}).
			Where("id = ?", cand.prospect.ID).
			Update("last_status", models.StepSentStatus(cand.step.StepNumber)).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Campaign{}).
			Where("id = ?", cand.campaign.ID).
			Update("sent_count", gorm.Expr("sent_count + 1")).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.SequenceStep{}).
			Where("id = ?", cand.step.ID).
			Update("sent_count", gorm.Expr("sent_count + 1")).Error; err != nil {
			return err
		}

		return utils.ConsumeIdentitySlot(tx, cand.identity.ID)
	})
}

// handleSendFailure releases both reservations and schedules a bounded retry
// with linear backoff; once MaxSendAttempts is exhausted the step is marked
// failed and surfaced through reporting instead of silently dropped.
func (dw *DispatchWorker) handleSendFailure(cand *candidate, now time.Time, sendErr error) {
	day := utils.DayKey(now)
	if err := utils.ReleaseIdentitySlot(dw.DB, cand.identity.ID); err != nil {
		utils.ReportError(err, "release_identity_slot", nil)
	}
	if err := utils.ReleaseCustomerSlot(dw.DB, cand.campaign.CustomerID, day); err != nil {
		utils.ReportError(err, "release_customer_slot", nil)
	}

	attempts := cand.state.Attempts + 1
	updates := map[string]interface{}{
		"attempts":   attempts,
		"last_error": sendErr.Error(),
	}
	if attempts >= dw.Cfg.MaxSendAttempts {
		updates["failed_at"] = now
	} else {
		updates["eligible_at"] = now.Add(time.Duration(attempts) * dw.Cfg.RetryBackoff)
	}

	if err := dw.DB.Model(&models.ProspectStep{}).
		Where("id = ?", cand.state.ID).
		Updates(updates).Error; err != nil {
		utils.ReportError(err, "record_send_failure", nil)
		return
	}

	utils.ReportError(sendErr, "transmission_failure", map[string]interface{}{
		"prospect_id": cand.prospect.ID,
		"campaign_id": cand.campaign.ID,
		"attempts":    attempts,
	})
}

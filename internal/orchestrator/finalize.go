package orchestrator

import (
	"context"
	"errors"
	"time"

	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/conversation"
	"voiceagent-platform/internal/notify"
	"voiceagent-platform/internal/session"
	"voiceagent-platform/internal/telephony"
)

// HandleStatus processes the carrier's asynchronous status callback. A
// terminal status forces finalization regardless of conversation phase;
// non-terminal updates only refresh activity. Always succeeds from the
// carrier's point of view.
func (o *Orchestrator) HandleStatus(ctx context.Context, form telephony.StatusForm) {
	if form.CallSid == "" {
		return
	}
	if !telephony.IsTerminalStatus(form.CallStatus) {
		o.registry.Lock(form.CallSid)
		if s := o.registry.Get(form.CallSid); s != nil {
			s.LastActivityAt = o.clock().UTC()
		}
		o.registry.Unlock(form.CallSid)
		return
	}
	o.Finalize(ctx, form.CallSid, form.CallStatus, form.DurationSeconds)
}

// Finalize closes a call exactly once. carrierStatus is the terminal status
// the carrier reported, or empty when the close was decided internally (the
// conversation concluded, or the idle reaper fired); durationSeconds is the
// carrier-reported duration, or 0 to derive it from session start.
//
// Idempotence comes from removing the session from the registry as the
// very first committed step, under the id lock: the first caller takes the
// session, every later caller finds nothing and stops. All slow work
// (summary, scoring, durable writes, messaging, carrier hangup) happens
// after that on the snapshot.
func (o *Orchestrator) Finalize(ctx context.Context, carrierCallID, carrierStatus string, durationSeconds int) {
	o.registry.Lock(carrierCallID)
	s := o.registry.Get(carrierCallID)
	if s == nil {
		o.registry.Unlock(carrierCallID)
		// Already finalized, or the process restarted mid-call. Make sure
		// the durable row still reaches a terminal state.
		if carrierStatus != "" {
			o.closeDurableOnly(ctx, carrierCallID, carrierStatus, durationSeconds)
		}
		return
	}
	s.Phase = session.PhaseFinalizing
	snap := s.Snapshot()
	o.registry.Remove(carrierCallID)
	o.registry.Unlock(carrierCallID)

	now := o.clock().UTC()
	if durationSeconds <= 0 && !snap.StartedAt.IsZero() {
		durationSeconds = int(now.Sub(snap.StartedAt) / time.Second)
	}

	// A failure-ish carrier status with no conversation is a failed call;
	// anything with an actual exchange completed.
	status := calls.CallStatusCompleted
	if len(snap.History) == 0 && carrierStatus != "" && carrierStatus != "completed" {
		status = calls.CallStatusFailed
	}

	var summary string
	var score int
	if len(snap.History) > 0 {
		summary, score = o.summarizeAndScore(ctx, snap)
	}

	contactID := o.mergeContact(ctx, snap)

	call, callErr := o.store.GetCallByCarrierID(ctx, carrierCallID)
	if callErr == nil {
		patch := calls.CallPatch{
			Status:          &status,
			DurationSeconds: &durationSeconds,
		}
		if summary != "" {
			patch.ConversationSummary = &summary
		}
		if len(snap.History) > 0 {
			patch.SuccessScore = &score
		}
		if data := marshalExtracted(snap.ExtractedData); data != "" {
			patch.CollectedData = &data
		}
		if contactID != "" && call.ContactID == "" {
			patch.ContactID = &contactID
		}
		updated, err := o.store.UpdateCall(ctx, call.CallID, patch)
		if err != nil {
			if errors.Is(err, calls.ErrStatusRegression) {
				o.log.Info("call already terminal in storage", "call_id", call.CallID)
			} else {
				o.log.Error("final call write failed", "call_id", call.CallID, "err", err)
			}
		} else {
			call = updated
		}
	} else {
		o.log.Error("final call lookup failed", "carrier_call_id", carrierCallID, "err", callErr)
	}

	if callErr == nil {
		o.sendWhatsAppFollowUp(ctx, call, snap)
	}

	// Internally decided closes must also hang up at the carrier; a
	// carrier-reported terminal status means the line is already down.
	if carrierStatus == "" {
		if err := o.gateway.EndCall(ctx, carrierCallID); err != nil {
			o.log.Warn("carrier hangup failed", "carrier_call_id", carrierCallID, "err", err)
		}
	}

	if err := o.limiter.Release(ctx, snap.CampaignID); err != nil {
		o.log.Warn("dial slot release failed", "campaign_id", snap.CampaignID, "err", err)
	}

	event := notify.EventCallCompleted
	if status == calls.CallStatusFailed {
		event = notify.EventCallFailed
	}
	o.notifier.Broadcast(ctx, event, map[string]any{
		"carrier_call_id": carrierCallID,
		"campaign_id":     snap.CampaignID,
		"status":          string(status),
		"duration":        durationSeconds,
		"turns":           len(snap.History) / 2,
		"success_score":   score,
	})
	o.log.Info("call finalized",
		"carrier_call_id", carrierCallID,
		"status", status,
		"carrier_status", carrierStatus,
		"duration_s", durationSeconds,
	)
}

// closeDurableOnly handles a terminal status callback arriving after the
// session is gone: the only remaining obligation is a terminal durable row.
func (o *Orchestrator) closeDurableOnly(ctx context.Context, carrierCallID, carrierStatus string, durationSeconds int) {
	call, err := o.store.GetCallByCarrierID(ctx, carrierCallID)
	if err != nil {
		return
	}
	if call.Status.IsTerminal() {
		return
	}
	status := calls.CallStatusCompleted
	if carrierStatus != "completed" {
		status = calls.CallStatusFailed
	}
	patch := calls.CallPatch{Status: &status}
	if durationSeconds > 0 {
		patch.DurationSeconds = &durationSeconds
	}
	if _, err := o.store.UpdateCall(ctx, call.CallID, patch); err != nil && !errors.Is(err, calls.ErrStatusRegression) {
		o.log.Error("orphan call close failed", "call_id", call.CallID, "err", err)
	}
}

// summarizeAndScore produces the end-of-call artifacts, degrading to the
// deterministic fallback per artifact. Scoring failure never blocks the
// summary and vice versa.
func (o *Orchestrator) summarizeAndScore(ctx context.Context, snap session.Session) (string, int) {
	campaign, err := o.store.GetCampaign(ctx, snap.CampaignID)
	if err != nil {
		o.log.Warn("campaign lookup failed at finalization", "campaign_id", snap.CampaignID, "err", err)
	}

	summary, err := o.generator.Summarize(ctx, campaign, snap.History)
	if err != nil {
		o.log.Warn("summary generation failed, using fallback", "carrier_call_id", snap.CarrierCallID, "err", err)
		summary, _ = o.fallback.Summarize(ctx, campaign, snap.History)
	}

	score, err := o.generator.Score(ctx, campaign, snap.History, snap.ExtractedData)
	if err != nil {
		o.log.Warn("success scoring failed, using fallback", "carrier_call_id", snap.CarrierCallID, "err", err)
		score, _ = o.fallback.Score(ctx, campaign, snap.History, snap.ExtractedData)
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return summary, score
}

// mergeContact folds extracted conversation data into the contact record,
// additively. Returns the contact id the call should reference, or empty.
func (o *Orchestrator) mergeContact(ctx context.Context, snap session.Session) string {
	extracted := snap.ExtractedData
	if len(extracted) == 0 {
		return snap.ContactID
	}

	patch := calls.ContactPatch{}
	if v := extracted[conversation.KeyName]; v != "" {
		patch.Name = &v
	}
	if v := extracted[conversation.KeyEmail]; v != "" {
		patch.Email = &v
	}
	if v := extracted[conversation.KeyWhatsAppNumber]; v != "" {
		patch.WhatsAppNumber = &v
	}
	if v := extracted[conversation.KeyInterest]; v != "" {
		patch.Interest = &v
	}
	if patch.Empty() {
		return snap.ContactID
	}

	if snap.ContactID != "" {
		if _, err := o.store.UpdateContact(ctx, snap.ContactID, patch); err != nil {
			o.log.Error("contact merge failed", "contact_id", snap.ContactID, "err", err)
		}
		return snap.ContactID
	}

	if snap.Phone == "" {
		return ""
	}
	// Cold call that produced data: upsert by phone, the natural key. The
	// store's conflict handling keeps the merge additive.
	c := calls.Contact{Phone: snap.Phone}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Email != nil {
		c.Email = *patch.Email
	}
	if patch.WhatsAppNumber != nil {
		c.WhatsAppNumber = *patch.WhatsAppNumber
	}
	if patch.Interest != nil {
		c.Interest = *patch.Interest
	}
	created, err := o.store.CreateContact(ctx, c)
	if err != nil {
		o.log.Error("contact upsert failed", "phone", snap.Phone, "err", err)
		return ""
	}
	return created.ID
}

// sendWhatsAppFollowUp dispatches the post-call message at most once per
// call, guarded by the durable WhatsAppSent flag.
func (o *Orchestrator) sendWhatsAppFollowUp(ctx context.Context, call calls.Call, snap session.Session) {
	number := snap.ExtractedData[conversation.KeyWhatsAppNumber]
	if number == "" || call.WhatsAppSent || call.CallID == "" {
		return
	}

	campaign, err := o.store.GetCampaign(ctx, snap.CampaignID)
	if err != nil {
		o.log.Warn("campaign lookup failed for follow-up", "campaign_id", snap.CampaignID, "err", err)
		return
	}
	body := "Thank you for talking with us about " + campaign.Name + "! We will send you the details here shortly."

	if err := o.gateway.SendNotification(ctx, telephony.ChannelWhatsApp, number, body); err != nil {
		o.log.Warn("whatsapp follow-up failed", "call_id", call.CallID, "err", err)
		return
	}
	sent := true
	if _, err := o.store.UpdateCall(ctx, call.CallID, calls.CallPatch{WhatsAppSent: &sent}); err != nil {
		o.log.Error("whatsapp sent flag write failed", "call_id", call.CallID, "err", err)
	}
}

// ReapIdle finalizes sessions with no webhook activity for maxIdle. They
// are calls whose carrier callbacks stopped arriving (dropped line with a
// lost status callback, or a wedged carrier); without the reaper they would
// hold registry entries and dial slots forever.
func (o *Orchestrator) ReapIdle(ctx context.Context, maxIdle time.Duration) int {
	ids := o.registry.Sweep(maxIdle, o.clock().UTC())
	for _, id := range ids {
		o.log.Warn("reaping idle call session", "carrier_call_id", id, "max_idle", maxIdle)
		o.Finalize(ctx, id, "", 0)
	}
	return len(ids)
}

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/conversation"
	"voiceagent-platform/internal/notify"
	"voiceagent-platform/internal/session"
	"voiceagent-platform/internal/speech"
	"voiceagent-platform/internal/telephony"
)

// HandleAnswer is the Ringing -> Active transition: the first inbound
// webhook for a call. It always returns a renderable voice document; the
// carrier must never see an error for a webhook.
func (o *Orchestrator) HandleAnswer(ctx context.Context, form telephony.AnswerForm) string {
	id := form.CallSid
	if id == "" {
		return telephony.ApologyDocument()
	}

	o.registry.Lock(id)
	s := o.registry.Get(id)
	o.registry.Unlock(id)

	if s == nil {
		// Process restarted, or the carrier retried before initial tracking
		// completed. Reconstruct rather than fail the live call.
		s = o.reconstruct(ctx, id, form.CampaignID, form.From)
		if s == nil {
			o.log.Warn("answer webhook for unknown call", "carrier_call_id", id)
			return o.renderOrApology(telephony.DocumentHangup,
				"We are sorry, we cannot continue this call. Goodbye.", telephony.TurnDocumentOptions{})
		}
	}

	campaign, err := o.store.GetCampaign(ctx, s.CampaignID)
	if err != nil {
		o.log.Error("campaign lookup failed on answer", "carrier_call_id", id, "campaign_id", s.CampaignID, "err", err)
		return telephony.ApologyDocument()
	}

	o.registry.Lock(id)
	if cur := o.registry.Get(id); cur != nil {
		cur.Phase = session.PhaseActive
		cur.LastActivityAt = o.clock().UTC()
	} else {
		s.Phase = session.PhaseActive
		s.LastActivityAt = o.clock().UTC()
		o.registry.Put(s)
	}
	o.registry.Unlock(id)

	// Durable status move initiated -> active; losing the write does not
	// lose the call.
	if call, err := o.store.GetCallByCarrierID(ctx, id); err == nil {
		status := calls.CallStatusActive
		if _, err := o.store.UpdateCall(ctx, call.CallID, calls.CallPatch{Status: &status}); err != nil && !errors.Is(err, calls.ErrStatusRegression) {
			o.log.Error("call activate write failed", "call_id", call.CallID, "err", err)
		}
	}

	o.notifier.Broadcast(ctx, notify.EventCallAnswered, map[string]string{
		"carrier_call_id": id,
		"campaign_id":     s.CampaignID,
	})

	intro := campaign.IntroLine
	if strings.TrimSpace(intro) == "" {
		intro = "Hello! Thank you for taking our call. How are you today?"
	}
	opts := o.docOptions(campaign, o.urls.Turn())
	opts.PacingPause = true
	return o.renderOrApology(telephony.DocumentGather, intro, opts)
}

// HandleTurn is the Active -> Active loop body: one utterance in, one reply
// out, one persistence write, one voice document back. Termination moves
// the call to Finalizing instead of gathering again.
func (o *Orchestrator) HandleTurn(ctx context.Context, form telephony.TurnForm) string {
	id := form.CallSid
	if id == "" {
		return telephony.ApologyDocument()
	}

	o.registry.Lock(id)
	s := o.registry.Get(id)
	var snap session.Session
	if s != nil {
		snap = s.Snapshot()
	}
	o.registry.Unlock(id)

	if s == nil {
		recon := o.reconstruct(ctx, id, "", "")
		if recon == nil {
			// Nothing recoverable; close politely rather than erroring at
			// the carrier, which would retry or drop the line hard.
			o.log.Warn("turn webhook for unknown call", "carrier_call_id", id)
			return o.renderOrApology(telephony.DocumentHangup,
				"We are sorry, we lost track of this call. Goodbye.", telephony.TurnDocumentOptions{})
		}
		o.registry.Lock(id)
		if cur := o.registry.Get(id); cur == nil {
			o.registry.Put(recon)
		}
		s = o.registry.Get(id)
		snap = s.Snapshot()
		o.registry.Unlock(id)
	}

	campaign, err := o.store.GetCampaign(ctx, snap.CampaignID)
	if err != nil {
		o.log.Error("campaign lookup failed on turn", "carrier_call_id", id, "err", err)
		return telephony.ApologyDocument()
	}
	opts := o.docOptions(campaign, o.urls.Turn())

	utterance := speech.Reconcile(form.SpeechResult, form.UnstableSpeechResult, form.Digits)

	// Synchronous transcription fallback: the carrier delivered audio but
	// no recognized text. Slow, so it runs outside the id lock.
	if utterance == "" && form.RecordingURL != "" && o.transcriber != nil {
		text, err := o.transcriber.Transcribe(ctx, form.RecordingURL)
		if err != nil {
			o.log.Warn("recording transcription failed", "carrier_call_id", id, "err", err)
		} else {
			utterance = strings.TrimSpace(text)
		}
	}

	if utterance == "" {
		return o.handleEmptyUtterance(ctx, id, campaign, opts)
	}

	// Explicit hang-up intent skips generation entirely: the decision is
	// already made, and the reply must not depend on generator mood.
	endIntent := speech.IsTerminationIntent(utterance)

	var reply conversation.Reply
	if endIntent {
		reply = conversation.Reply{
			Message:       "Understood, we will not keep you. Thank you for your time, goodbye.",
			ShouldEndCall: true,
		}
	} else {
		reply, err = o.generator.NextReply(ctx, campaign, snap.History, utterance)
		if err != nil {
			// Generator outage is never fatal to a live call.
			o.log.Warn("generator failed, using fallback", "carrier_call_id", id, "err", err)
			reply, _ = o.fallback.NextReply(ctx, campaign, snap.History, utterance)
		}
	}

	// Commit the turn. Re-check existence: a terminal status webhook may
	// have force-finalized the call while generation was in flight.
	o.registry.Lock(id)
	cur := o.registry.Get(id)
	if cur == nil {
		o.registry.Unlock(id)
		o.log.Info("call finalized during turn, dropping reply", "carrier_call_id", id)
		return o.renderOrApology(telephony.DocumentHangup, "", telephony.TurnDocumentOptions{})
	}
	cur.History = append(cur.History,
		session.Turn{Role: calls.RoleUser, Content: utterance},
		session.Turn{Role: calls.RoleAssistant, Content: reply.Message},
	)
	if cur.ExtractedData == nil {
		cur.ExtractedData = map[string]string{}
	}
	mergeExtracted(cur.ExtractedData, reply.ExtractedData)
	cur.RePrompts = 0
	cur.LastActivityAt = o.clock().UTC()

	shouldEnd := reply.ShouldEndCall || endIntent || contactChannelsCollected(cur.ExtractedData)
	if shouldEnd {
		cur.Phase = session.PhaseFinalizing
	}
	o.registry.Unlock(id)

	o.persistTurn(ctx, id, utterance, reply.Message)

	o.notifier.Broadcast(ctx, notify.EventCallTurn, map[string]string{
		"carrier_call_id": id,
		"utterance":       utterance,
		"reply":           reply.Message,
	})

	if shouldEnd {
		o.Finalize(ctx, id, "", 0)
		return o.renderOrApology(telephony.DocumentHangup, reply.Message, opts)
	}
	return o.renderOrApology(telephony.DocumentGather, reply.Message, opts)
}

// handleEmptyUtterance renders the re-prompt branch. No generation call is
// spent on silence, and after MaxRePrompts consecutive misses the call is
// wrapped up instead of looping.
func (o *Orchestrator) handleEmptyUtterance(ctx context.Context, id string, campaign calls.Campaign, opts telephony.TurnDocumentOptions) string {
	o.registry.Lock(id)
	cur := o.registry.Get(id)
	if cur == nil {
		o.registry.Unlock(id)
		return o.renderOrApology(telephony.DocumentHangup, "", telephony.TurnDocumentOptions{})
	}
	cur.RePrompts++
	cur.LastActivityAt = o.clock().UTC()
	exceeded := cur.RePrompts > o.cfg.MaxRePrompts
	if exceeded {
		cur.Phase = session.PhaseFinalizing
	}
	o.registry.Unlock(id)

	if exceeded {
		o.Finalize(ctx, id, "", 0)
		return o.renderOrApology(telephony.DocumentHangup,
			rePromptGoodbye(opts.Language), opts)
	}
	return o.renderOrApology(telephony.DocumentGather, rePromptLine(opts.Language), opts)
}

func rePromptLine(language string) string {
	if strings.HasPrefix(language, "es") {
		return "Perdón, no le escuché. ¿Podría repetirlo?"
	}
	return "Sorry, I didn't catch that. Could you say it again?"
}

func rePromptGoodbye(language string) string {
	if strings.HasPrefix(language, "es") {
		return "Parece que no es un buen momento. Gracias y hasta luego."
	}
	return "It seems this isn't a good time. Thank you and goodbye."
}

// persistTurn writes both halves of the exchange. Write failures are logged
// and the turn proceeds: conversation continuity outranks write durability,
// the in-memory session stays authoritative.
func (o *Orchestrator) persistTurn(ctx context.Context, carrierCallID, utterance, reply string) {
	call, err := o.store.GetCallByCarrierID(ctx, carrierCallID)
	if err != nil {
		o.log.Error("turn persist skipped, call row missing", "carrier_call_id", carrierCallID, "err", err)
		return
	}
	if _, err := o.store.CreateCallMessage(ctx, call.CallID, calls.RoleUser, utterance); err != nil {
		o.log.Error("user message persist failed", "call_id", call.CallID, "err", err)
	}
	if _, err := o.store.CreateCallMessage(ctx, call.CallID, calls.RoleAssistant, reply); err != nil {
		o.log.Error("assistant message persist failed", "call_id", call.CallID, "err", err)
	}
}

// reconstruct rebuilds a minimal session from durable storage for webhooks
// that arrive with no in-memory state. Returns nil when the call is unknown
// or already terminal.
func (o *Orchestrator) reconstruct(ctx context.Context, carrierCallID, campaignID, phone string) *session.Session {
	now := o.clock().UTC()

	call, err := o.store.GetCallByCarrierID(ctx, carrierCallID)
	if err != nil {
		if campaignID == "" {
			return nil
		}
		// No durable row (its create may have failed) but the answer
		// webhook told us the campaign; a fresh minimal session keeps the
		// live call going.
		return &session.Session{
			CarrierCallID:  carrierCallID,
			CampaignID:     campaignID,
			Phone:          phone,
			Phase:          session.PhaseActive,
			ExtractedData:  map[string]string{},
			StartedAt:      now,
			LastActivityAt: now,
		}
	}
	if call.Status.IsTerminal() {
		return nil
	}

	s := &session.Session{
		CarrierCallID:  carrierCallID,
		CampaignID:     call.CampaignID,
		ContactID:      call.ContactID,
		Phone:          call.To,
		Phase:          session.PhaseActive,
		ExtractedData:  map[string]string{},
		StartedAt:      call.CreatedAt,
		LastActivityAt: now,
	}
	if call.CollectedData != "" {
		_ = json.Unmarshal([]byte(call.CollectedData), &s.ExtractedData)
		if s.ExtractedData == nil {
			s.ExtractedData = map[string]string{}
		}
	}
	msgs, err := o.store.ListCallMessages(ctx, call.CallID)
	if err != nil {
		o.log.Warn("history reload failed during reconstruction", "call_id", call.CallID, "err", err)
	}
	for _, m := range msgs {
		s.History = append(s.History, session.Turn{Role: m.Role, Content: m.Content})
	}
	o.log.Info("session reconstructed from durable storage",
		"carrier_call_id", carrierCallID, "history_len", len(s.History))
	return s
}

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/conversation"
	"voiceagent-platform/internal/notify"
	"voiceagent-platform/internal/session"
	"voiceagent-platform/internal/speech"
	"voiceagent-platform/internal/telephony"
)

var (
	ErrInvalidArgument = errors.New("orchestrator: invalid argument")
	// ErrCampaignBusy means the campaign's concurrent-dial cap is exhausted.
	ErrCampaignBusy = errors.New("orchestrator: campaign concurrency limit reached")
)

// Config carries the conversation defaults the orchestrator applies when a
// campaign does not override them.
type Config struct {
	DefaultLanguage string
	DefaultVoice    string

	// MaxRePrompts bounds consecutive empty-utterance re-prompts before the
	// call is wrapped up instead of looping forever.
	MaxRePrompts int

	// CampaignDialLimit and DialSlotTTL parameterize the per-campaign
	// concurrency cap.
	CampaignDialLimit int
	DialSlotTTL       time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.DefaultLanguage == "" {
		out.DefaultLanguage = "en-US"
	}
	if out.DefaultVoice == "" {
		out.DefaultVoice = "Polly.Joanna"
	}
	if out.MaxRePrompts <= 0 {
		out.MaxRePrompts = 2
	}
	if out.CampaignDialLimit <= 0 {
		out.CampaignDialLimit = 10
	}
	if out.DialSlotTTL <= 0 {
		out.DialSlotTTL = 30 * time.Minute
	}
	return out
}

// CallbackURLs builds the absolute webhook URLs handed to the carrier.
type CallbackURLs struct {
	Base string
}

func (u CallbackURLs) Answer(campaignID string) string {
	return fmt.Sprintf("%s/webhooks/voice/answer?campaign_id=%s", u.Base, campaignID)
}

func (u CallbackURLs) Turn() string {
	return u.Base + "/webhooks/voice/turn"
}

func (u CallbackURLs) Status() string {
	return u.Base + "/webhooks/voice/status"
}

// Orchestrator drives the call lifecycle:
//
//	Initiating -> Ringing -> Active (one re-entry per utterance)
//	           -> Finalizing -> Closed
//
// plus the forced path to Closed from any state when the carrier reports a
// terminal status. "Closed" is not stored anywhere: a closed call is one
// whose session is gone from the registry and whose durable row is
// terminal.
//
// Locking discipline (spec'd in the registry): per-carrier-call-id mutual
// exclusion around every read-mutate-store of session state. Slow work
// (generation, transcription, durable writes, carrier requests) runs
// outside the lock against a snapshot, and the commit step re-checks that
// the session still exists.
type Orchestrator struct {
	registry  *session.Registry
	store     calls.Store
	gateway   telephony.CarrierGateway
	generator conversation.Generator
	fallback  conversation.FallbackGenerator

	// transcriber is optional; without it a recording-only turn is treated
	// as an empty utterance.
	transcriber speech.Transcriber

	notifier notify.Notifier
	limiter  DialLimiter

	urls  CallbackURLs
	cfg   Config
	log   *slog.Logger
	clock func() time.Time
}

func New(
	registry *session.Registry,
	store calls.Store,
	gateway telephony.CarrierGateway,
	generator conversation.Generator,
	notifier notify.Notifier,
	limiter DialLimiter,
	urls CallbackURLs,
	cfg Config,
	log *slog.Logger,
) *Orchestrator {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	if limiter == nil {
		limiter = NoopLimiter{}
	}
	return &Orchestrator{
		registry:  registry,
		store:     store,
		gateway:   gateway,
		generator: generator,
		notifier:  notifier,
		limiter:   limiter,
		urls:      urls,
		cfg:       cfg.withDefaults(),
		log:       log,
		clock:     time.Now,
	}
}

// WithTranscriber wires the optional recording-transcription collaborator.
func (o *Orchestrator) WithTranscriber(t speech.Transcriber) *Orchestrator {
	o.transcriber = t
	return o
}

// WithClock is for tests.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	return o
}

// Registry exposes the session registry for read-only endpoints.
func (o *Orchestrator) Registry() *session.Registry { return o.registry }

// StartCall places an outbound call for a campaign. Placement failure is
// terminal and returned synchronously; no session is created.
func (o *Orchestrator) StartCall(ctx context.Context, campaignID, contactID, phone string) (calls.Call, error) {
	if campaignID == "" {
		return calls.Call{}, fmt.Errorf("%w: campaign id required", ErrInvalidArgument)
	}

	campaign, err := o.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return calls.Call{}, fmt.Errorf("campaign lookup: %w", err)
	}

	if contactID != "" {
		contact, err := o.store.GetContact(ctx, contactID)
		if err != nil {
			return calls.Call{}, fmt.Errorf("contact lookup: %w", err)
		}
		phone = contact.Phone
	}
	if strings.TrimSpace(phone) == "" {
		return calls.Call{}, fmt.Errorf("%w: destination phone required", ErrInvalidArgument)
	}

	ok, err := o.limiter.Acquire(ctx, campaignID, o.cfg.CampaignDialLimit, o.cfg.DialSlotTTL)
	if err != nil {
		return calls.Call{}, fmt.Errorf("dial limiter: %w", err)
	}
	if !ok {
		return calls.Call{}, ErrCampaignBusy
	}

	carrierCallID, err := o.gateway.PlaceCall(ctx, telephony.PlaceCallRequest{
		To:        phone,
		AnswerURL: o.urls.Answer(campaignID),
		StatusURL: o.urls.Status(),
	})
	if err != nil {
		if relErr := o.limiter.Release(ctx, campaignID); relErr != nil {
			o.log.Warn("dial slot release failed", "campaign_id", campaignID, "err", relErr)
		}
		return calls.Call{}, fmt.Errorf("call placement: %w", err)
	}

	call, err := o.store.CreateCall(ctx, calls.Call{
		CampaignID:    campaignID,
		ContactID:     contactID,
		CarrierCallID: carrierCallID,
		To:            phone,
		Status:        calls.CallStatusInitiated,
	})
	if err != nil {
		// The call is already ringing; losing the durable row must not drop
		// it. The in-memory session stays authoritative.
		o.log.Error("call row create failed", "carrier_call_id", carrierCallID, "err", err)
		call = calls.Call{CampaignID: campaignID, ContactID: contactID, CarrierCallID: carrierCallID, To: phone, Status: calls.CallStatusInitiated}
	}

	now := o.clock().UTC()
	o.registry.Lock(carrierCallID)
	// The answer webhook can beat this goroutine here and reconstruct the
	// session itself; its state is then the newer one, keep it.
	if o.registry.Get(carrierCallID) == nil {
		o.registry.Put(&session.Session{
			CarrierCallID:  carrierCallID,
			CampaignID:     campaignID,
			ContactID:      contactID,
			Phone:          phone,
			Phase:          session.PhaseRinging,
			ExtractedData:  map[string]string{},
			StartedAt:      now,
			LastActivityAt: now,
		})
	}
	o.registry.Unlock(carrierCallID)

	o.notifier.Broadcast(ctx, notify.EventCallInitiated, map[string]string{
		"carrier_call_id": carrierCallID,
		"campaign_id":     campaignID,
		"campaign_name":   campaign.Name,
		"to":              phone,
	})
	return call, nil
}

// docOptions resolves rendering options from campaign overrides and
// platform defaults.
func (o *Orchestrator) docOptions(campaign calls.Campaign, actionURL string) telephony.TurnDocumentOptions {
	lang := campaign.Language
	if lang == "" {
		lang = o.cfg.DefaultLanguage
	}
	voice := campaign.Voice
	if voice == "" {
		voice = o.cfg.DefaultVoice
	}
	return telephony.TurnDocumentOptions{
		Language:  lang,
		Voice:     voice,
		ActionURL: actionURL,
	}
}

// renderOrApology wraps rendering with the static fallback so a handler can
// always hand the carrier a valid document.
func (o *Orchestrator) renderOrApology(kind telephony.DocumentKind, content string, opts telephony.TurnDocumentOptions) string {
	doc, err := telephony.RenderTurnDocument(kind, content, opts)
	if err != nil {
		o.log.Error("voice document render failed", "kind", kind, "err", err)
		return telephony.ApologyDocument()
	}
	return doc
}

// mergeExtracted applies reply data into the session map, last write wins
// per key. Caller holds the id lock.
func mergeExtracted(dst map[string]string, src map[string]string) {
	for k, v := range src {
		if strings.TrimSpace(v) == "" {
			continue
		}
		dst[k] = v
	}
}

// contactChannelsCollected is the data-completeness leg of the termination
// predicate: both a messaging channel and an email are in hand.
func contactChannelsCollected(extracted map[string]string) bool {
	return extracted[conversation.KeyWhatsAppNumber] != "" && extracted[conversation.KeyEmail] != ""
}

func marshalExtracted(extracted map[string]string) string {
	if len(extracted) == 0 {
		return ""
	}
	b, err := json.Marshal(extracted)
	if err != nil {
		return ""
	}
	return string(b)
}

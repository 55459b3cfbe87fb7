package telephony

import (
	"net/http"
	"strconv"
	"strings"
)

// Webhook form parsing for the carrier's voice callbacks. Twilio posts
// application/x-www-form-urlencoded. Keep this adapter-only: no lifecycle
// decisions are made here.

// AnswerForm is the first inbound webhook for a call (the call connected).
type AnswerForm struct {
	CallSid    string
	From       string
	To         string
	CallStatus string

	// CampaignID rides on the callback URL query string, not the form body.
	CampaignID string
}

func ParseAnswerForm(r *http.Request) (AnswerForm, error) {
	if err := r.ParseForm(); err != nil {
		return AnswerForm{}, err
	}
	return AnswerForm{
		CallSid:    r.PostFormValue("CallSid"),
		From:       strings.TrimSpace(r.PostFormValue("From")),
		To:         strings.TrimSpace(r.PostFormValue("To")),
		CallStatus: r.PostFormValue("CallStatus"),
		CampaignID: r.URL.Query().Get("campaign_id"),
	}, nil
}

// TurnForm is the repeating gather callback carrying recognized speech,
// DTMF digits, or a recording reference.
type TurnForm struct {
	CallSid string

	// SpeechResult is the finalized recognition; UnstableSpeechResult is the
	// partial one. The speech normalizer reconciles the priority.
	SpeechResult         string
	UnstableSpeechResult string
	Digits               string

	RecordingURL string
	Confidence   float64
}

func ParseTurnForm(r *http.Request) (TurnForm, error) {
	if err := r.ParseForm(); err != nil {
		return TurnForm{}, err
	}
	conf, _ := strconv.ParseFloat(r.PostFormValue("Confidence"), 64)
	return TurnForm{
		CallSid:              r.PostFormValue("CallSid"),
		SpeechResult:         r.PostFormValue("SpeechResult"),
		UnstableSpeechResult: r.PostFormValue("UnstableSpeechResult"),
		Digits:               r.PostFormValue("Digits"),
		RecordingURL:         r.PostFormValue("RecordingUrl"),
		Confidence:           conf,
	}, nil
}

// StatusForm is the asynchronous call-status callback.
type StatusForm struct {
	CallSid         string
	CallStatus      string
	DurationSeconds int
}

func ParseStatusForm(r *http.Request) (StatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return StatusForm{}, err
	}
	dur, _ := strconv.Atoi(r.PostFormValue("CallDuration"))
	return StatusForm{
		CallSid:         r.PostFormValue("CallSid"),
		CallStatus:      r.PostFormValue("CallStatus"),
		DurationSeconds: dur,
	}, nil
}

// IsTerminalStatus reports whether a carrier status ends the call and must
// drive forced finalization.
func IsTerminalStatus(status string) bool {
	switch status {
	case "completed", "failed", "busy", "no-answer", "canceled":
		return true
	default:
		return false
	}
}

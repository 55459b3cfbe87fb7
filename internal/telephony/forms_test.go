package telephony

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestParseAnswerForm(t *testing.T) {
	body := url.Values{
		"CallSid":    {"CA123"},
		"From":       {" +15550001111 "},
		"To":         {"+15550002222"},
		"CallStatus": {"in-progress"},
	}
	req := httptest.NewRequest("POST", "/webhooks/voice/answer?campaign_id=camp-9", strings.NewReader(body.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := ParseAnswerForm(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if form.CallSid != "CA123" || form.From != "+15550001111" || form.CampaignID != "camp-9" {
		t.Fatalf("unexpected form: %+v", form)
	}
}

func TestParseTurnForm(t *testing.T) {
	body := url.Values{
		"CallSid":              {"CA123"},
		"SpeechResult":         {"yes please"},
		"UnstableSpeechResult": {"yes pl"},
		"Digits":               {"1"},
		"RecordingUrl":         {"https://api.twilio.com/rec/RE1"},
		"Confidence":           {"0.87"},
	}
	req := httptest.NewRequest("POST", "/webhooks/voice/turn", strings.NewReader(body.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := ParseTurnForm(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if form.SpeechResult != "yes please" || form.RecordingURL != "https://api.twilio.com/rec/RE1" {
		t.Fatalf("unexpected form: %+v", form)
	}
	if form.Confidence != 0.87 {
		t.Fatalf("confidence = %v, want 0.87", form.Confidence)
	}
}

func TestParseStatusForm(t *testing.T) {
	body := url.Values{
		"CallSid":      {"CA123"},
		"CallStatus":   {"completed"},
		"CallDuration": {"42"},
	}
	req := httptest.NewRequest("POST", "/webhooks/voice/status", strings.NewReader(body.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := ParseStatusForm(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if form.CallSid != "CA123" || form.CallStatus != "completed" || form.DurationSeconds != 42 {
		t.Fatalf("unexpected form: %+v", form)
	}
}

func TestIsTerminalStatus(t *testing.T) {
	for _, s := range []string{"completed", "failed", "busy", "no-answer", "canceled"} {
		if !IsTerminalStatus(s) {
			t.Errorf("%q should be terminal", s)
		}
	}
	for _, s := range []string{"queued", "ringing", "in-progress", ""} {
		if IsTerminalStatus(s) {
			t.Errorf("%q should not be terminal", s)
		}
	}
}

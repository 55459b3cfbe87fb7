package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"voiceagent-platform/internal/telephony"

	"github.com/gin-gonic/gin"
)

type stubOrch struct {
	answers  int
	turns    int
	statuses []telephony.StatusForm
}

func (s *stubOrch) HandleAnswer(context.Context, telephony.AnswerForm) string {
	s.answers++
	return "<?xml version=\"1.0\"?><Response><Say>hi</Say></Response>"
}

func (s *stubOrch) HandleTurn(context.Context, telephony.TurnForm) string {
	s.turns++
	return "<?xml version=\"1.0\"?><Response><Hangup/></Response>"
}

func (s *stubOrch) HandleStatus(_ context.Context, form telephony.StatusForm) {
	s.statuses = append(s.statuses, form)
}

func newWebhookRouter(orch *stubOrch) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	wh := Webhooks{Orch: orch}
	r.POST("/webhooks/voice/answer", wh.Answer)
	r.POST("/webhooks/voice/turn", wh.Turn)
	r.POST("/webhooks/voice/status", wh.Status)
	return r
}

func postForm(r *gin.Engine, path string, vals url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(vals.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAnswerWebhookReturnsDocument(t *testing.T) {
	orch := &stubOrch{}
	r := newWebhookRouter(orch)

	w := postForm(r, "/webhooks/voice/answer?campaign_id=camp-1", url.Values{"CallSid": {"CA1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/xml") {
		t.Fatalf("content type = %q, want text/xml", ct)
	}
	if orch.answers != 1 {
		t.Fatalf("answers = %d, want 1", orch.answers)
	}
}

func TestTurnWebhookReturnsDocument(t *testing.T) {
	orch := &stubOrch{}
	r := newWebhookRouter(orch)

	w := postForm(r, "/webhooks/voice/turn", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"yes"}})
	if w.Code != http.StatusOK || orch.turns != 1 {
		t.Fatalf("status = %d, turns = %d", w.Code, orch.turns)
	}
	if !strings.Contains(w.Body.String(), "<Response>") {
		t.Fatalf("body not a voice document: %s", w.Body.String())
	}
}

func TestWebhookWithoutCallSidStillReturns200(t *testing.T) {
	orch := &stubOrch{}
	r := newWebhookRouter(orch)

	for _, path := range []string{"/webhooks/voice/answer", "/webhooks/voice/turn"} {
		w := postForm(r, path, url.Values{})
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), "<Hangup") {
			t.Fatalf("%s: expected apology hangup, got %s", path, w.Body.String())
		}
	}
	if orch.answers != 0 || orch.turns != 0 {
		t.Fatalf("orchestrator must not see malformed webhooks")
	}
}

func TestStatusWebhookAlwaysAcks(t *testing.T) {
	orch := &stubOrch{}
	r := newWebhookRouter(orch)

	w := postForm(r, "/webhooks/voice/status", url.Values{
		"CallSid":      {"CA1"},
		"CallStatus":   {"completed"},
		"CallDuration": {"30"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(orch.statuses) != 1 || orch.statuses[0].DurationSeconds != 30 {
		t.Fatalf("statuses = %+v", orch.statuses)
	}

	// Missing CallSid is acked and dropped.
	w = postForm(r, "/webhooks/voice/status", url.Values{"CallStatus": {"failed"}})
	if w.Code != http.StatusOK || len(orch.statuses) != 1 {
		t.Fatalf("malformed status callback: code=%d statuses=%d", w.Code, len(orch.statuses))
	}
}

package httpapi

import (
	"context"
	"net/http"

	"voiceagent-platform/internal/telephony"

	"github.com/gin-gonic/gin"
)

// Carrier webhook handlers.
//
// IMPORTANT: Every voice webhook must answer 200 with a valid voice
// document, whatever went wrong internally. A non-200 or malformed body
// makes the carrier play its own error message and drop the live call.
//
// NOTE: These endpoints should be protected by carrier signature validation
// in production.

const twimlContentType = "text/xml; charset=utf-8"

// VoiceOrchestrator is the slice of the orchestrator the webhook layer
// depends on. Narrow on purpose: tests stub it without a registry, store or
// gateway.
type VoiceOrchestrator interface {
	HandleAnswer(ctx context.Context, form telephony.AnswerForm) string
	HandleTurn(ctx context.Context, form telephony.TurnForm) string
	HandleStatus(ctx context.Context, form telephony.StatusForm)
}

// Webhooks wires the three voice callbacks to the orchestrator.
type Webhooks struct {
	Orch VoiceOrchestrator
}

func (w Webhooks) Answer(c *gin.Context) {
	form, err := telephony.ParseAnswerForm(c.Request)
	if err != nil || form.CallSid == "" {
		c.Data(http.StatusOK, twimlContentType, []byte(telephony.ApologyDocument()))
		return
	}
	doc := w.Orch.HandleAnswer(c.Request.Context(), form)
	c.Data(http.StatusOK, twimlContentType, []byte(doc))
}

func (w Webhooks) Turn(c *gin.Context) {
	form, err := telephony.ParseTurnForm(c.Request)
	if err != nil || form.CallSid == "" {
		c.Data(http.StatusOK, twimlContentType, []byte(telephony.ApologyDocument()))
		return
	}
	doc := w.Orch.HandleTurn(c.Request.Context(), form)
	c.Data(http.StatusOK, twimlContentType, []byte(doc))
}

// Status acknowledges the callback unconditionally. The carrier retries
// non-200 responses, and a finalization problem is ours to log, not the
// carrier's to replay forever.
func (w Webhooks) Status(c *gin.Context) {
	form, err := telephony.ParseStatusForm(c.Request)
	if err == nil && form.CallSid != "" {
		w.Orch.HandleStatus(c.Request.Context(), form)
	}
	c.Status(http.StatusOK)
}

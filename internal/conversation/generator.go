package conversation

import (
	"context"
	"errors"

	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/session"
)

// Well-known extracted-data keys. The termination predicate and the contact
// merge read these; generators should emit no others unless a campaign
// defines them.
const (
	KeyName           = "name"
	KeyEmail          = "email"
	KeyWhatsAppNumber = "whatsapp_number"
	KeyInterest       = "customer_interest"
)

var ErrGeneratorUnavailable = errors.New("conversation: generator unavailable")

// Reply is the structured result of one generation turn.
type Reply struct {
	Message       string            `json:"message"`
	ShouldEndCall bool              `json:"should_end_call"`
	ExtractedData map[string]string `json:"extracted_data,omitempty"`
}

// Generator produces conversational replies and end-of-call artifacts.
//
// Contract with the orchestrator:
// - NextReply is never invoked with an empty utterance (the re-prompt
//   branch short-circuits first).
// - Any error from NextReply is recoverable: the orchestrator substitutes
//   the deterministic fallback and the call continues.
// - Summarize and Score are finalization-time; their failures degrade to
//   heuristics, never to a failed call.
type Generator interface {
	NextReply(ctx context.Context, campaign calls.Campaign, history []session.Turn, utterance string) (Reply, error)
	Summarize(ctx context.Context, campaign calls.Campaign, history []session.Turn) (string, error)
	Score(ctx context.Context, campaign calls.Campaign, history []session.Turn, extracted map[string]string) (int, error)
}

package conversation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/session"
)

// FallbackGenerator is the deterministic, always-available generator the
// orchestrator substitutes when the real one fails. Replies are keyed off
// simple keyword matching in the last utterance so the conversation
// continues or concludes gracefully instead of dropping the line.
//
// It also does best-effort extraction (phone digits, email) so a collected
// contact channel is not lost just because the LLM was down for that turn.
type FallbackGenerator struct{}

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// Ten or more digits, tolerating spaces, dashes and dots between groups.
	phoneRe = regexp.MustCompile(`\+?\d[\d\s.\-]{8,}\d`)
)

func (FallbackGenerator) NextReply(_ context.Context, campaign calls.Campaign, history []session.Turn, utterance string) (Reply, error) {
	u := strings.ToLower(utterance)
	extracted := extractContactData(utterance)

	switch {
	case hasWord(u, "no") || containsAny(u, "not interested", "busy", "later"):
		return Reply{
			Message:       "I understand, thank you for your time. Have a great day.",
			ShouldEndCall: true,
			ExtractedData: extracted,
		}, nil
	case len(extracted) > 0:
		return Reply{
			Message:       "Thank you, I have noted that down. Is there anything else you would like to share?",
			ExtractedData: extracted,
		}, nil
	case hasWord(u, "yes") || containsAny(u, "sure", "okay", "interested", "tell me"):
		return Reply{
			Message:       fmt.Sprintf("Great. Could you share a WhatsApp number or an email so we can send you the details about %s?", campaign.Name),
			ExtractedData: map[string]string{KeyInterest: "interested"},
		}, nil
	case containsAny(u, "who", "what", "why", "about"):
		return Reply{
			Message: fmt.Sprintf("This is a quick call about %s. Would you like to hear more?", campaign.Name),
		}, nil
	default:
		// After a few uninformative turns there is nothing more a canned
		// script can do; wrap up rather than loop.
		if len(history) >= 8 {
			return Reply{
				Message:       "Thank you for your time today. Goodbye.",
				ShouldEndCall: true,
			}, nil
		}
		return Reply{
			Message: "I see. Could you tell me if this might interest you, or share a number or email where we can reach you?",
		}, nil
	}
}

func (FallbackGenerator) Summarize(_ context.Context, campaign calls.Campaign, history []session.Turn) (string, error) {
	turns := len(history) / 2
	return fmt.Sprintf("Automated summary: %d exchange(s) for campaign %q. Transcript stored with the call record.", turns, campaign.Name), nil
}

// Score is the heuristic used when LLM scoring is unavailable: collected
// contact channels dominate, expressed interest and conversation length
// contribute the rest.
func (FallbackGenerator) Score(_ context.Context, _ calls.Campaign, history []session.Turn, extracted map[string]string) (int, error) {
	score := 0
	if extracted[KeyWhatsAppNumber] != "" {
		score += 35
	}
	if extracted[KeyEmail] != "" {
		score += 35
	}
	switch extracted[KeyInterest] {
	case "interested", "high":
		score += 20
	case "neutral":
		score += 10
	}
	if n := len(history) / 2; n > 0 {
		score += min(n, 10)
	}
	return min(score, 100), nil
}

func extractContactData(utterance string) map[string]string {
	out := map[string]string{}
	if m := emailRe.FindString(utterance); m != "" {
		out[KeyEmail] = m
	}
	if m := phoneRe.FindString(utterance); m != "" {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' || r == '+' {
				return r
			}
			return -1
		}, m)
		if len(strings.TrimPrefix(digits, "+")) >= 10 {
			out[KeyWhatsAppNumber] = digits
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// hasWord matches whole words only; bare substring matching would read
// "number" as a "no".
func hasWord(s, word string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if f == word {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

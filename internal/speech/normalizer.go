package speech

import (
	"context"
	"strings"
)

// Reconcile collapses the carrier's recognition fields into one utterance.
//
// Preference order: a finalized speech result wins over an unstable/partial
// one, which wins over raw DTMF digits. Falls down the order when a
// higher-priority source is empty. Always returns a trimmed string, ""
// (never an error) when nothing usable is present — the orchestrator's
// re-prompt branch keys off the empty string.
func Reconcile(finalResult, unstableResult, digits string) string {
	if s := strings.TrimSpace(finalResult); s != "" {
		return s
	}
	if s := strings.TrimSpace(unstableResult); s != "" {
		return s
	}
	return strings.TrimSpace(digits)
}

// terminationPhrases is the fixed vocabulary of explicit hang-up intent.
// Substring match, case-insensitive. Spanish equivalents included because
// campaigns run in both languages.
var terminationPhrases = []string{
	"goodbye",
	"good bye",
	"bye bye",
	"hang up",
	"not interested",
	"stop calling",
	"don't call",
	"do not call",
	"remove my number",
	"adios",
	"adiós",
	"no me interesa",
	"no me llames",
	"hasta luego",
}

// IsTerminationIntent reports whether the utterance expresses explicit
// intent to end the call. False on empty input.
func IsTerminationIntent(utterance string) bool {
	u := strings.ToLower(strings.TrimSpace(utterance))
	if u == "" {
		return false
	}
	for _, p := range terminationPhrases {
		if strings.Contains(u, p) {
			return true
		}
	}
	return false
}

// Transcriber converts a recorded-audio reference into text. It wraps the
// external speech-to-text collaborator the turn webhook falls back to when
// the carrier delivered a recording but no recognized speech.
type Transcriber interface {
	Transcribe(ctx context.Context, recordingURL string) (string, error)
}

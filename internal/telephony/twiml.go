package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strconv"
)

// Minimal Twilio Markup Language builder for the verbs this platform
// speaks. It intentionally avoids any provider SDK dependency.
//
// RenderTurnDocument is a pure function: same inputs, same markup, no side
// effects. Every optional field has a default, so it cannot fail on a
// missing option — the only error is an unknown document kind.

type DocumentKind string

const (
	// DocumentSpeak plays a line and hangs up (no further input gathered).
	DocumentSpeak DocumentKind = "speak"
	// DocumentGather plays a line, then records the caller's next utterance
	// and posts it to the action URL.
	DocumentGather DocumentKind = "gather"
	// DocumentHangup ends the call, optionally after a closing line.
	DocumentHangup DocumentKind = "hangup"
)

// TurnDocumentOptions tune one rendered document. Zero value is valid.
type TurnDocumentOptions struct {
	// Language defaults to en-US.
	Language string
	// Voice defaults to Polly.Joanna.
	Voice string
	// AudioURL, when set, is played instead of speaking the content text.
	AudioURL string
	// ActionURL is where the carrier posts the next utterance (gather only).
	// Defaults to empty, which makes the carrier re-post to the current URL.
	ActionURL string
	// PacingPause inserts a one second ambient pause before speaking, which
	// keeps the agent from talking over the pick-up noise.
	PacingPause bool
	// SpeechTimeoutSeconds is how long the gather waits for speech to end.
	// Defaults to "auto" semantics via 0.
	SpeechTimeoutSeconds int
}

func (o TurnDocumentOptions) withDefaults() TurnDocumentOptions {
	out := o
	if out.Language == "" {
		out.Language = "en-US"
	}
	if out.Voice == "" {
		out.Voice = "Polly.Joanna"
	}
	return out
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type twimlPlay struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type twimlGather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr,omitempty"`
	Method        string   `xml:"method,attr"`
	Language      string   `xml:"language,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Verbs         []any    `xml:",any"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	URL     string   `xml:",chardata"`
}

// RenderTurnDocument maps (kind, content, options) to a voice document.
func RenderTurnDocument(kind DocumentKind, content string, opts TurnDocumentOptions) (string, error) {
	opts = opts.withDefaults()

	var r twimlResponse
	if opts.PacingPause {
		r.Verbs = append(r.Verbs, twimlPause{Length: 1})
	}

	speak := speakVerb(content, opts)

	switch kind {
	case DocumentSpeak:
		if speak != nil {
			r.Verbs = append(r.Verbs, speak)
		}
		r.Verbs = append(r.Verbs, twimlHangup{})
	case DocumentGather:
		g := twimlGather{
			Input:  "speech dtmf",
			Action: opts.ActionURL,
			Method: "POST",
			// Gather language steers recognition, not playback.
			Language:      opts.Language,
			SpeechTimeout: speechTimeout(opts.SpeechTimeoutSeconds),
		}
		if speak != nil {
			g.Verbs = append(g.Verbs, speak)
		}
		r.Verbs = append(r.Verbs, g)
		// If the gather times out with no input, fall through to the action
		// URL anyway so the turn handler can re-prompt.
		if opts.ActionURL != "" {
			r.Verbs = append(r.Verbs, twimlRedirect{URL: opts.ActionURL})
		}
	case DocumentHangup:
		if speak != nil {
			r.Verbs = append(r.Verbs, speak)
		}
		r.Verbs = append(r.Verbs, twimlHangup{})
	default:
		return "", errors.New("telephony: unknown document kind")
	}

	return encodeResponse(r)
}

// ApologyDocument is the static fallback rendered when normal document
// rendering fails. It cannot itself fail and always ends in a hang-up, so
// the carrier never receives an empty response and the recipient never
// gets dead air.
func ApologyDocument() string {
	doc, err := RenderTurnDocument(DocumentHangup,
		"We are sorry, a technical problem ended this call. Goodbye.",
		TurnDocumentOptions{})
	if err != nil {
		// Unreachable for a fixed known kind; keep a literal just in case.
		return xml.Header + "<Response><Hangup/></Response>"
	}
	return doc
}

func speakVerb(content string, opts TurnDocumentOptions) any {
	if opts.AudioURL != "" {
		return twimlPlay{URL: opts.AudioURL}
	}
	if content == "" {
		return nil
	}
	return twimlSay{Voice: opts.Voice, Language: opts.Language, Text: content}
}

func speechTimeout(seconds int) string {
	if seconds <= 0 {
		return "auto"
	}
	return strconv.Itoa(seconds)
}

func encodeResponse(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

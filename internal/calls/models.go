package calls

import "time"

// Call is the durable record of one outbound conversation.
//
// NOTE: This is a domain model only. Provider-specific identifiers (the
// Twilio CallSid) live in CarrierCallID; nothing else provider-shaped
// belongs here.
//
// Status invariant: transitions only move forward along
// initiated -> active -> {completed|failed}. There is no resurrection from
// a terminal state; see CanTransition.
type Call struct {
	CallID     string `json:"call_id" db:"call_id"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`
	// ContactID is optional; cold calls may create the contact mid-conversation.
	ContactID string `json:"contact_id,omitempty" db:"contact_id"`

	// CarrierCallID is the carrier-assigned call identifier, unique per call.
	CarrierCallID string `json:"carrier_call_id" db:"carrier_call_id"`

	From string `json:"from" db:"from_number"`
	To   string `json:"to" db:"to_number"`

	Status CallStatus `json:"status" db:"status"`

	// DurationSeconds is set once at finalization, from the carrier's status
	// callback when available.
	DurationSeconds int `json:"duration" db:"duration"`

	ConversationSummary string `json:"conversation_summary,omitempty" db:"conversation_summary"`
	// SuccessScore is 0-100 against the campaign objective.
	SuccessScore int  `json:"success_score" db:"success_score"`
	WhatsAppSent bool `json:"whatsapp_sent" db:"whatsapp_sent"`

	// CollectedData is the JSON snapshot of extracted conversation data.
	CollectedData string `json:"collected_data,omitempty" db:"collected_data"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusActive    CallStatus = "active"
	CallStatusCompleted CallStatus = "completed"
	CallStatusFailed    CallStatus = "failed"
)

// IsTerminal reports whether the status permits no further transitions.
func (s CallStatus) IsTerminal() bool {
	return s == CallStatusCompleted || s == CallStatusFailed
}

// CanTransition reports whether moving from s to next respects the
// forward-only lifecycle.
func (s CallStatus) CanTransition(next CallStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case CallStatusInitiated:
		return next == CallStatusActive || next == CallStatusCompleted || next == CallStatusFailed
	case CallStatusActive:
		return next == CallStatusCompleted || next == CallStatusFailed
	default:
		return false
	}
}

// CallMessage is one conversation turn half: a user utterance or an
// assistant reply. Append-only, ordered by creation time.
type CallMessage struct {
	ID      string `json:"id" db:"id"`
	CallID  string `json:"call_id" db:"call_id"`
	Role    Role   `json:"role" db:"role"`
	Content string `json:"content" db:"content"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Contact is a call recipient. Phone is the natural key even though a
// surrogate id exists; lookups by phone must hit a unique index.
//
// Merge invariant: updates are additive. A turn that extracts only a
// WhatsApp number must not blank a previously captured email.
type Contact struct {
	ID    string `json:"id" db:"id"`
	Phone string `json:"phone" db:"phone"`

	Name           string `json:"name,omitempty" db:"name"`
	Email          string `json:"email,omitempty" db:"email"`
	WhatsAppNumber string `json:"whatsapp_number,omitempty" db:"whatsapp_number"`
	Interest       string `json:"interest,omitempty" db:"interest"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Campaign supplies the conversation script configuration. Read-only from
// the orchestrator's perspective.
type Campaign struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	// IntroLine is the opening sentence spoken when the call connects.
	IntroLine string `json:"intro_line" db:"intro_line"`
	// Objective is free text the success scorer evaluates the conversation against.
	Objective string `json:"objective" db:"objective"`

	Language string `json:"language,omitempty" db:"language"`
	Voice    string `json:"voice,omitempty" db:"voice"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ContactPatch carries partial contact updates. Nil fields are left
// untouched; this is what enforces the additive merge at the type level.
type ContactPatch struct {
	Name           *string
	Email          *string
	WhatsAppNumber *string
	Interest       *string
}

// Empty reports whether the patch would change nothing.
func (p ContactPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.WhatsAppNumber == nil && p.Interest == nil
}

// CallPatch carries partial call updates written at lifecycle transitions.
type CallPatch struct {
	Status              *CallStatus
	DurationSeconds     *int
	ConversationSummary *string
	SuccessScore        *int
	WhatsAppSent        *bool
	CollectedData       *string
	ContactID           *string
}

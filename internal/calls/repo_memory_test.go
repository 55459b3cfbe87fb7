package calls

import (
	"context"
	"errors"
	"testing"
	"time"
)

func strPtr(s string) *string          { return &s }
func statusPtr(s CallStatus) *CallStatus { return &s }

func TestCreateContactMergesByPhone(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.CreateContact(ctx, Contact{Phone: "+15550100100", Name: "Jane"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Second create for the same phone must converge on the same row and
	// merge additively: the new email lands, the existing name survives.
	second, err := s.CreateContact(ctx, Contact{Phone: "+15550100100", Email: "jane@example.com"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same contact row, got %s and %s", first.ID, second.ID)
	}
	if second.Name != "Jane" || second.Email != "jane@example.com" {
		t.Fatalf("merge not additive: %+v", second)
	}
}

func TestUpdateContactNilFieldsUntouched(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	c, err := s.CreateContact(ctx, Contact{Phone: "+15550100100", Name: "Jane", Email: "jane@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.UpdateContact(ctx, c.ID, ContactPatch{WhatsAppNumber: strPtr("+15550100100")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Name != "Jane" || got.Email != "jane@example.com" || got.WhatsAppNumber != "+15550100100" {
		t.Fatalf("patch blanked existing fields: %+v", got)
	}
}

func TestUpdateCallForwardOnlyStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	call, err := s.CreateCall(ctx, Call{CampaignID: "camp-1", CarrierCallID: "CA1", To: "+15550100100"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if call.Status != CallStatusInitiated {
		t.Fatalf("status = %s, want initiated", call.Status)
	}

	if _, err := s.UpdateCall(ctx, call.CallID, CallPatch{Status: statusPtr(CallStatusActive)}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := s.UpdateCall(ctx, call.CallID, CallPatch{Status: statusPtr(CallStatusCompleted)}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Terminal is terminal.
	if _, err := s.UpdateCall(ctx, call.CallID, CallPatch{Status: statusPtr(CallStatusActive)}); !errors.Is(err, ErrStatusRegression) {
		t.Fatalf("expected ErrStatusRegression, got %v", err)
	}
	if _, err := s.UpdateCall(ctx, call.CallID, CallPatch{Status: statusPtr(CallStatusFailed)}); !errors.Is(err, ErrStatusRegression) {
		t.Fatalf("expected ErrStatusRegression for completed->failed, got %v", err)
	}

	// Non-status fields still writable after terminal status.
	got, err := s.UpdateCall(ctx, call.CallID, CallPatch{ConversationSummary: strPtr("went well")})
	if err != nil {
		t.Fatalf("summary write: %v", err)
	}
	if got.ConversationSummary != "went well" || got.Status != CallStatusCompleted {
		t.Fatalf("unexpected call: %+v", got)
	}
}

func TestCallMessagesKeepInsertionOrder(t *testing.T) {
	s := NewMemoryStore()
	// Frozen clock: ordering must survive identical timestamps.
	s.Clock = func() time.Time { return time.Unix(1700000000, 0) }
	ctx := context.Background()

	call, err := s.CreateCall(ctx, Call{CampaignID: "camp-1", CarrierCallID: "CA1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	contents := []string{"hello", "hi there", "tell me more", "of course"}
	roles := []Role{RoleUser, RoleAssistant, RoleUser, RoleAssistant}
	for i := range contents {
		if _, err := s.CreateCallMessage(ctx, call.CallID, roles[i], contents[i]); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	msgs, err := s.ListCallMessages(ctx, call.CallID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	for i, m := range msgs {
		if m.Content != contents[i] || m.Role != roles[i] {
			t.Fatalf("message %d out of order: %+v", i, m)
		}
	}
}

func TestGetCallByCarrierID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.GetCallByCarrierID(ctx, "CA-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	created, err := s.CreateCall(ctx, Call{CampaignID: "camp-1", CarrierCallID: "CA42"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.GetCallByCarrierID(ctx, "CA42")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.CallID != created.CallID {
		t.Fatalf("wrong call: %+v", got)
	}
}

func TestCreateCallValidation(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.CreateCall(context.Background(), Call{CarrierCallID: "CA1"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for missing campaign, got %v", err)
	}
	if _, err := s.CreateCall(context.Background(), Call{CampaignID: "camp-1"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for missing carrier id, got %v", err)
	}
}

func TestStatusTransitionTable(t *testing.T) {
	cases := []struct {
		from, to CallStatus
		ok       bool
	}{
		{CallStatusInitiated, CallStatusActive, true},
		{CallStatusInitiated, CallStatusCompleted, true},
		{CallStatusInitiated, CallStatusFailed, true},
		{CallStatusActive, CallStatusCompleted, true},
		{CallStatusActive, CallStatusFailed, true},
		{CallStatusActive, CallStatusInitiated, false},
		{CallStatusCompleted, CallStatusActive, false},
		{CallStatusFailed, CallStatusCompleted, false},
		{CallStatusCompleted, CallStatusCompleted, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

package conversation

import (
	"context"
	"testing"

	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/session"
)

var testCampaign = calls.Campaign{ID: "camp-1", Name: "Fiber Upgrade", Objective: "collect contact details"}

func TestFallbackDeclineEndsCall(t *testing.T) {
	g := FallbackGenerator{}
	reply, err := g.NextReply(context.Background(), testCampaign, nil, "No thanks")
	if err != nil {
		t.Fatalf("next reply: %v", err)
	}
	if !reply.ShouldEndCall {
		t.Fatalf("expected decline to end the call, got %+v", reply)
	}
}

func TestFallbackNoIsWholeWordOnly(t *testing.T) {
	g := FallbackGenerator{}
	// "number" and "know" contain "no" as a substring; neither is a decline.
	for _, u := range []string{"let me give you my number", "I know about this"} {
		reply, err := g.NextReply(context.Background(), testCampaign, nil, u)
		if err != nil {
			t.Fatalf("next reply: %v", err)
		}
		if reply.ShouldEndCall {
			t.Fatalf("%q wrongly treated as decline", u)
		}
	}
}

func TestFallbackExtractsContactChannels(t *testing.T) {
	g := FallbackGenerator{}
	reply, err := g.NextReply(context.Background(), testCampaign, nil, "sure, write to jane.doe@example.com or +1 555 010 0199")
	if err != nil {
		t.Fatalf("next reply: %v", err)
	}
	if reply.ExtractedData[KeyEmail] != "jane.doe@example.com" {
		t.Fatalf("email not extracted: %+v", reply.ExtractedData)
	}
	if reply.ExtractedData[KeyWhatsAppNumber] == "" {
		t.Fatalf("phone not extracted: %+v", reply.ExtractedData)
	}
	if reply.ShouldEndCall {
		t.Fatalf("extraction turn should not end the call")
	}
}

func TestFallbackShortDigitRunsAreNotPhones(t *testing.T) {
	g := FallbackGenerator{}
	reply, err := g.NextReply(context.Background(), testCampaign, nil, "I am 34 years old, apartment 12345")
	if err != nil {
		t.Fatalf("next reply: %v", err)
	}
	if reply.ExtractedData[KeyWhatsAppNumber] != "" {
		t.Fatalf("short digit run extracted as phone: %+v", reply.ExtractedData)
	}
}

func TestFallbackInterestAsksForContact(t *testing.T) {
	g := FallbackGenerator{}
	reply, err := g.NextReply(context.Background(), testCampaign, nil, "yes, sounds good")
	if err != nil {
		t.Fatalf("next reply: %v", err)
	}
	if reply.ExtractedData[KeyInterest] != "interested" {
		t.Fatalf("interest not recorded: %+v", reply.ExtractedData)
	}
}

func TestFallbackWrapsUpLongConversations(t *testing.T) {
	g := FallbackGenerator{}
	history := make([]session.Turn, 8)
	reply, err := g.NextReply(context.Background(), testCampaign, history, "hmm")
	if err != nil {
		t.Fatalf("next reply: %v", err)
	}
	if !reply.ShouldEndCall {
		t.Fatalf("expected wrap-up after a long uninformative conversation")
	}
}

func TestFallbackScoreHeuristic(t *testing.T) {
	g := FallbackGenerator{}
	history := []session.Turn{
		{Role: calls.RoleUser, Content: "yes"},
		{Role: calls.RoleAssistant, Content: "great"},
	}

	full, err := g.Score(context.Background(), testCampaign, history, map[string]string{
		KeyWhatsAppNumber: "+15550100100",
		KeyEmail:          "a@b.com",
		KeyInterest:       "interested",
	})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	empty, err := g.Score(context.Background(), testCampaign, nil, nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}

	if full <= empty {
		t.Fatalf("collected channels should outscore nothing: full=%d empty=%d", full, empty)
	}
	if full > 100 || empty < 0 {
		t.Fatalf("score out of range: full=%d empty=%d", full, empty)
	}
}

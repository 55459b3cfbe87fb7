package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/session"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGenerator implements Generator on OpenAI chat completions.
//
// Thread safety: safe for concurrent use; each call creates an independent
// request. Transient failures are retried with linear backoff; after the
// retries are exhausted the error surfaces as ErrGeneratorUnavailable and
// the orchestrator falls back to the deterministic generator.
type OpenAIGenerator struct {
	client *openai.Client
	model  string

	maxRetries int
	retryDelay time.Duration
}

func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	g := &OpenAIGenerator{
		model:      model,
		maxRetries: 2,
		retryDelay: 500 * time.Millisecond,
	}
	if apiKey != "" {
		g.client = openai.NewClient(apiKey)
	}
	return g
}

const replySystemPrompt = `You are a polite outbound phone agent. Keep replies to one or two short spoken sentences. Campaign: %s. Objective: %s. Reply language: %s.
Respond ONLY with a JSON object: {"message": string, "should_end_call": bool, "extracted_data": object}.
extracted_data may contain only these string keys when the caller provided them: name, email, whatsapp_number, customer_interest.
Set should_end_call true when the conversation has reached a natural close.`

func (g *OpenAIGenerator) NextReply(ctx context.Context, campaign calls.Campaign, history []session.Turn, utterance string) (Reply, error) {
	msgs := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: fmt.Sprintf(replySystemPrompt, campaign.Name, campaign.Objective, campaign.Language),
	}}
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == calls.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: utterance})

	raw, err := g.complete(ctx, msgs, true)
	if err != nil {
		return Reply{}, err
	}

	var out Reply
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		// A malformed payload still carries a usable spoken line more often
		// than not; treat the whole text as the message.
		return Reply{Message: strings.TrimSpace(raw)}, nil
	}
	if strings.TrimSpace(out.Message) == "" {
		return Reply{}, fmt.Errorf("%w: empty message", ErrGeneratorUnavailable)
	}
	return out, nil
}

func (g *OpenAIGenerator) Summarize(ctx context.Context, campaign calls.Campaign, history []session.Turn) (string, error) {
	msgs := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Summarize the following phone conversation in two or three plain sentences for a sales dashboard. Mention interest level and any contact details the caller shared.",
		},
		{Role: openai.ChatMessageRoleUser, Content: renderTranscript(history)},
	}
	raw, err := g.complete(ctx, msgs, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

func (g *OpenAIGenerator) Score(ctx context.Context, campaign calls.Campaign, history []session.Turn, extracted map[string]string) (int, error) {
	collected, _ := json.Marshal(extracted)
	msgs := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: fmt.Sprintf("Score how well this phone conversation met the objective %q on a 0-100 scale. Respond with the integer only.", campaign.Objective),
		},
		{Role: openai.ChatMessageRoleUser, Content: renderTranscript(history) + "\nCollected: " + string(collected)},
	}
	raw, err := g.complete(ctx, msgs, false)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(stripFences(raw)))
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric score %q", ErrGeneratorUnavailable, raw)
	}
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return n, nil
}

func (g *OpenAIGenerator) complete(ctx context.Context, msgs []openai.ChatCompletionMessage, jsonMode bool) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("%w: no api key configured", ErrGeneratorUnavailable)
	}

	req := openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: msgs,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * g.retryDelay):
			}
		}
		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no choices returned")
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("%w: %v", ErrGeneratorUnavailable, lastErr)
}

func renderTranscript(history []session.Turn) string {
	var b strings.Builder
	for _, t := range history {
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

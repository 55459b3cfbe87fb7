package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voiceagent-platform/internal/config"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// TwilioGateway implements CarrierGateway against the Twilio REST API using
// plain form-encoded HTTP, per the platform rule that adapters carry no
// provider SDK.
type TwilioGateway struct {
	cfg        config.TwilioConfig
	httpClient *http.Client
	apiBase    string
}

func NewTwilioGateway(cfg config.TwilioConfig) *TwilioGateway {
	return &TwilioGateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiBase:    twilioAPIBase,
	}
}

// WithAPIBase overrides the API endpoint; tests point it at a local server.
func (g *TwilioGateway) WithAPIBase(base string) *TwilioGateway {
	g.apiBase = strings.TrimRight(base, "/")
	return g
}

type twilioCreateResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (g *TwilioGateway) PlaceCall(ctx context.Context, req PlaceCallRequest) (string, error) {
	if strings.TrimSpace(req.To) == "" {
		return "", errors.New("telephony: destination required")
	}
	if req.AnswerURL == "" {
		return "", errors.New("telephony: answer url required")
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", g.cfg.FromNumber)
	form.Set("Url", req.AnswerURL)
	form.Set("Method", "POST")
	if req.StatusURL != "" {
		form.Set("StatusCallback", req.StatusURL)
		form.Set("StatusCallbackMethod", "POST")
		for _, ev := range []string{"completed", "busy", "failed", "no-answer"} {
			form.Add("StatusCallbackEvent", ev)
		}
	}

	var out twilioCreateResponse
	if err := g.post(ctx, fmt.Sprintf("/Accounts/%s/Calls.json", g.cfg.AccountSID), form, &out); err != nil {
		return "", err
	}
	if out.SID == "" {
		return "", fmt.Errorf("telephony: call placement rejected: %s", out.Message)
	}
	return out.SID, nil
}

func (g *TwilioGateway) EndCall(ctx context.Context, carrierCallID string) error {
	if carrierCallID == "" {
		return errors.New("telephony: carrier call id required")
	}
	form := url.Values{}
	form.Set("Status", "completed")

	var out twilioCreateResponse
	err := g.post(ctx, fmt.Sprintf("/Accounts/%s/Calls/%s.json", g.cfg.AccountSID, carrierCallID), form, &out)
	if err != nil {
		// 20404: call no longer exists at the carrier; it already ended.
		if out.Code == 20404 {
			return nil
		}
		return err
	}
	return nil
}

func (g *TwilioGateway) SendNotification(ctx context.Context, channel NotificationChannel, destination, body string) error {
	if channel != ChannelWhatsApp {
		return fmt.Errorf("telephony: unsupported notification channel %q", channel)
	}
	if g.cfg.WhatsAppFrom == "" {
		return errors.New("telephony: whatsapp sender not configured")
	}
	if destination == "" || body == "" {
		return errors.New("telephony: destination and body required")
	}
	if !strings.HasPrefix(destination, "whatsapp:") {
		destination = "whatsapp:" + destination
	}

	form := url.Values{}
	form.Set("To", destination)
	form.Set("From", g.cfg.WhatsAppFrom)
	form.Set("Body", body)

	var out twilioCreateResponse
	if err := g.post(ctx, fmt.Sprintf("/Accounts/%s/Messages.json", g.cfg.AccountSID), form, &out); err != nil {
		return err
	}
	if out.SID == "" {
		return fmt.Errorf("telephony: message rejected: %s", out.Message)
	}
	return nil
}

func (g *TwilioGateway) post(ctx context.Context, path string, form url.Values, out *twilioCreateResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiBase+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(g.cfg.AccountSID, g.cfg.AuthToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telephony: carrier request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telephony: carrier response read failed: %w", err)
	}
	// Error payloads are JSON too; decode before checking the status so the
	// caller can inspect the carrier error code.
	_ = json.Unmarshal(raw, out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telephony: carrier returned %d: %s", resp.StatusCode, out.Message)
	}
	return nil
}

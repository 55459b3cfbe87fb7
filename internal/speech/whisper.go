package speech

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"voiceagent-platform/internal/audio"

	openai "github.com/sashabaranov/go-openai"
)

// WhisperTranscriber downloads a carrier call recording and transcribes it
// with the Whisper API. It is the slow path for turns where the carrier's
// own speech recognition produced nothing.
//
// Downloaded audio lands in temp files; they are handed to the cleaner
// rather than deleted inline so a transcription crash cannot leak them.
type WhisperTranscriber struct {
	client     *openai.Client
	httpClient *http.Client
	cleaner    *audio.Cleaner
	log        *slog.Logger

	fileTTL time.Duration
}

func NewWhisperTranscriber(apiKey string, cleaner *audio.Cleaner, log *slog.Logger) *WhisperTranscriber {
	return &WhisperTranscriber{
		client:     openai.NewClient(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cleaner:    cleaner,
		log:        log,
		fileTTL:    5 * time.Minute,
	}
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, recordingURL string) (string, error) {
	path, err := t.download(ctx, recordingURL)
	if err != nil {
		return "", err
	}
	if t.cleaner != nil {
		t.cleaner.Register(path, t.fileTTL)
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: path,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (t *WhisperTranscriber) download(ctx context.Context, recordingURL string) (string, error) {
	// Twilio recording resources serve audio when the format suffix is
	// appended; a URL that already carries one is used as-is.
	url := recordingURL
	if !strings.HasSuffix(url, ".mp3") && !strings.HasSuffix(url, ".wav") {
		url += ".mp3"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("recording download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("recording download: status %d", resp.StatusCode)
	}

	f, err := os.CreateTemp("", "recording-*.mp3")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("recording save: %w", err)
	}
	return f.Name(), nil
}

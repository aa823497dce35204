package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/esiclivre/esic-api/internal/config"
)

// ErrNotRecognized indicates the recognizer produced no transcript for
// the audio. Callers treat it as a retry signal, not a failure.
var ErrNotRecognized = errors.New("speech not recognized")

// Transcriber converts an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// GoogleTranscriber sends WAV audio to the Google speech API and
// returns the first alternative of the first result.
type GoogleTranscriber struct {
	endpoint   string
	apiKey     string
	locale     string
	sampleRate int
	client     *http.Client
	logger     *logrus.Logger
}

// NewGoogleTranscriber creates a transcriber from config.
func NewGoogleTranscriber(cfg config.SpeechConfig, logger *logrus.Logger) *GoogleTranscriber {
	return &GoogleTranscriber{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		locale:     cfg.Locale,
		sampleRate: cfg.SampleRate,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Transcribe uploads the audio file and parses the recognizer output.
func (t *GoogleTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}

	params := url.Values{}
	params.Set("output", "json")
	params.Set("lang", t.locale)
	if t.apiKey != "" {
		params.Set("key", t.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.endpoint+"?"+params.Encode(), bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", fmt.Sprintf("audio/l16; rate=%d", t.sampleRate))

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("speech request: unexpected status %d", resp.StatusCode)
	}

	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	transcript, ok := parseTranscript(body.String())
	if !ok {
		t.logger.WithField("component", "speech").Debug("Recognizer returned no transcript")
		return "", ErrNotRecognized
	}
	return transcript, nil
}

type recognizeResponse struct {
	Result []struct {
		Alternative []struct {
			Transcript string `json:"transcript"`
		} `json:"alternative"`
	} `json:"result"`
}

// parseTranscript handles the API's line-delimited JSON output: the
// first lines can be empty result sets, the transcript rides on the
// first line with a populated result.
func parseTranscript(raw string) (string, bool) {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var parsed recognizeResponse
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			continue
		}
		if len(parsed.Result) > 0 && len(parsed.Result[0].Alternative) > 0 {
			text := strings.TrimSpace(parsed.Result[0].Alternative[0].Transcript)
			if text != "" {
				return text, true
			}
		}
	}
	return "", false
}

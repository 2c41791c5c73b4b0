// Package transcription loads voice-note audio and turns it into raw text
// through a speech-to-text backend.
package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/language"
	"github.com/benvon/smart-voice/internal/services/ai"
)

// ErrEmptyTranscript is returned when the backend produced no usable text.
var ErrEmptyTranscript = errors.New("transcript is empty")

// Transcript is the raw speech-to-text result.
type Transcript struct {
	Text            string
	Language        string
	DurationSeconds float64
}

// Transcriber converts audio into a Transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (*Transcript, error)
}

// WhisperTranscriber transcribes through the OpenAI audio API.
type WhisperTranscriber struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

// NewWhisperTranscriber returns a transcriber using model (whisper-1 when empty).
func NewWhisperTranscriber(apiKey, baseURL, model string, logger *zap.Logger) *WhisperTranscriber {
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhisperTranscriber{
		client: ai.NewOpenAIClient(apiKey, baseURL),
		model:  model,
		logger: logger,
	}
}

// verboseFields are read from the verbose_json response body.
type verboseFields struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// Transcribe implements Transcriber.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio Audio) (*Transcript, error) {
	resp, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:           openai.File(audio.Reader(), audio.Filename(), audio.MimeType),
		Model:          openai.AudioModel(w.model),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to transcribe audio: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, ErrEmptyTranscript
	}

	var fields verboseFields
	if raw := resp.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			w.logger.Debug("transcription_metadata_unparsed", zap.Error(err))
		}
	}

	return &Transcript{
		Text:            text,
		Language:        language.Normalize(fields.Language),
		DurationSeconds: fields.Duration,
	}, nil
}

var _ Transcriber = (*WhisperTranscriber)(nil)

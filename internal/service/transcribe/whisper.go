package transcribe

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"tubesum/internal/apperr"
	"tubesum/internal/logger"
)

const whisperMaxBytes = 25 << 20

type WhisperConfig struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

// WhisperTranscriber calls an OpenAI-compatible /audio/transcriptions endpoint.
type WhisperTranscriber struct {
	client   *openai.Client
	model    string
	language string
	logger   logger.Logger
}

func NewWhisper(cfg WhisperConfig, log logger.Logger) *WhisperTranscriber {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		language: cfg.Language,
		logger:   log,
	}
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	size, err := checkAudio(audioPath, whisperMaxBytes)
	if err != nil {
		return "", err
	}
	w.logger.Info(ctx, "Transcribing %s (%d bytes) with %s", filepath.Base(audioPath), size, w.model)

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: audioPath,
		Language: w.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindTranscription, err, "transcription request failed")
	}
	return nonEmpty(resp.Text)
}

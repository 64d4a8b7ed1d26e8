package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"

	"tubesum/internal/apperr"
	"tubesum/internal/config"
	"tubesum/internal/logger"
)

// Transcriber turns an audio file into plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// New builds the transcriber selected by cfg.Transcription.Provider.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (Transcriber, error) {
	tc := cfg.Transcription
	prov := cfg.Provider(tc.Provider)
	switch tc.Provider {
	case "openai":
		return NewWhisper(WhisperConfig{
			BaseURL:  prov.BaseURL,
			APIKey:   prov.APIKey,
			Model:    tc.Model,
			Language: tc.Language,
			Timeout:  tc.Timeout(),
		}, log), nil
	case "gemini":
		return NewGemini(ctx, prov.APIKey, tc.Model, tc.Language, tc.Timeout(), log)
	default:
		return nil, fmt.Errorf("invalid transcription provider: %s", tc.Provider)
	}
}

// checkAudio stats path and enforces the provider's upload limit.
func checkAudio(path string, limit int64) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindTranscription, err, "audio file unreadable")
	}
	if limit > 0 && info.Size() > limit {
		return 0, apperr.Newf(apperr.KindTranscription, "audio file too large for transcription (%d MB > %d MB)", info.Size()>>20, limit>>20)
	}
	return info.Size(), nil
}

func nonEmpty(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.New(apperr.KindTranscription, "Failed to transcribe audio")
	}
	return text, nil
}

package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"google.golang.org/genai"

	"tubesum/internal/apperr"
	"tubesum/internal/logger"
)

// inline request data is capped by the Gemini API
const geminiInlineMaxBytes = 20 << 20

const transcribePrompt = "Transcribe the spoken content of this audio verbatim. " +
	"Output only the transcript text, without timestamps, speaker labels or commentary."

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiTranscriber sends the audio inline to a Gemini model.
type GeminiTranscriber struct {
	models   contentGenerator
	model    string
	language string
	timeout  time.Duration
	logger   logger.Logger
}

func NewGemini(ctx context.Context, apiKey, model, language string, timeout time.Duration, log logger.Logger) (*GeminiTranscriber, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiTranscriber{
		models:   client.Models,
		model:    model,
		language: language,
		timeout:  timeout,
		logger:   log,
	}, nil
}

func (g *GeminiTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if _, err := checkAudio(audioPath, geminiInlineMaxBytes); err != nil {
		return "", err
	}
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTranscription, err, "audio file unreadable")
	}
	mimeType := mimetype.Detect(data).String()
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}

	prompt := transcribePrompt
	if g.language != "" {
		prompt += " The audio language is " + g.language + "."
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	g.logger.Info(ctx, "Transcribing %d bytes of %s with %s", len(data), mimeType, g.model)
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(data, mimeType),
		}, genai.RoleUser),
	}
	result, err := g.models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTranscription, err, "transcription request failed")
	}
	return nonEmpty(responseText(result))
}

func responseText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

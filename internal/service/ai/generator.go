package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"tubesum/internal/apperr"
	"tubesum/internal/config"
	"tubesum/internal/logger"
)

const (
	summarySystemPrompt = "You are an expert summarization assistant tasked with providing a top-notch, comprehensive summary of video content. " +
		"Your summaries are used in high-stakes settings, so it is vital to include all important and relevant points. " +
		"Ensure the summary is clear, concise, and leaves no critical information out. " +
		"The user should feel confident that they have not missed anything after reading your summary."

	summaryUserPrompt = "Summarize the following video content in a way that captures all critical details and relevant points. " +
		"Focus on accuracy, clarity, and completeness. " +
		"Provide a structured summary with key takeaways, important facts, and actionable insights. Content: %s"

	answerSystemPrompt = "You are an expert assistant that provides accurate and detailed answers to questions based on the provided context. " +
		"Use only the information in the context. " +
		"If the context does not contain the answer, say so instead of guessing."

	answerUserPrompt = "Context: %s\n\nQuestion: %s\n\nAnswer:"
)

// Generator produces summaries and context-bounded answers through a chat model.
type Generator struct {
	chat             model.BaseChatModel
	temperature      float32
	summaryMaxTokens int
	answerMaxTokens  int
	timeout          time.Duration
	logger           logger.Logger
}

func NewGenerator(chat model.BaseChatModel, cfg config.GenerationConfig, log logger.Logger) *Generator {
	return &Generator{
		chat:             chat,
		temperature:      cfg.TemperatureValue(),
		summaryMaxTokens: cfg.SummaryMaxTokens,
		answerMaxTokens:  cfg.AnswerMaxTokens,
		timeout:          cfg.Timeout(),
		logger:           log,
	}
}

// Summarize condenses a transcript.
func (g *Generator) Summarize(ctx context.Context, transcript string) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(summarySystemPrompt),
		schema.UserMessage(fmt.Sprintf(summaryUserPrompt, transcript)),
	}
	return g.generate(ctx, "summary", messages, g.summaryMaxTokens)
}

// Answer replies to question using nothing but contextText.
func (g *Generator) Answer(ctx context.Context, question, contextText string) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(answerSystemPrompt),
		schema.UserMessage(fmt.Sprintf(answerUserPrompt, contextText, question)),
	}
	return g.generate(ctx, "answer", messages, g.answerMaxTokens)
}

func (g *Generator) generate(ctx context.Context, what string, messages []*schema.Message, maxTokens int) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	opts := []model.Option{model.WithTemperature(g.temperature)}
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}

	start := time.Now()
	resp, err := g.chat.Generate(ctx, messages, opts...)
	if err != nil {
		return "", apperr.Wrap(apperr.KindGeneration, err, fmt.Sprintf("generate %s failed", what))
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", apperr.Newf(apperr.KindGeneration, "empty %s from model", what)
	}
	g.logger.Debug(ctx, "Generated %s (%d chars) in %s", what, len(resp.Content), time.Since(start).Round(time.Millisecond))
	return strings.TrimSpace(resp.Content), nil
}

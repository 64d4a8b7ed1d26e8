package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"tubesum/internal/config"
)

var defaultModels = map[string]string{
	"openai": "gpt-4",
	"gemini": "gemini-2.5-flash",
	"claude": "claude-3-5-sonnet-latest",
}

// NewChatModel builds the eino chat model for the configured generation provider.
// Model precedence: generation.model, then providers.<name>.model, then a default.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.BaseChatModel, error) {
	provider := cfg.Generation.Provider
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	modelType := cfg.Generation.Model
	if modelType == "" {
		modelType = provCfg.Model
	}
	if modelType == "" {
		modelType = defaultModels[provider]
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelType,
			APIKey:  provCfg.APIKey,
			Timeout: cfg.Generation.Timeout(),
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  provCfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if cerr != nil {
			return nil, fmt.Errorf("new gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelType,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelType,
			BaseURL:   baseURLPtr,
			MaxTokens: cfg.Generation.SummaryMaxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return chatModel, nil
}

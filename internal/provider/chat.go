package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"solochat/internal/config"
)

const claudeMaxTokens = 3000

// ChatProvider answers prompts with a real chat model (openai, gemini
// or claude) through eino. Each call is a single-shot exchange; the
// store owns history and targets one prompt per reply.
type ChatProvider struct {
	chatModel model.BaseChatModel
}

// NewChatProvider builds the chat model for the named provider.
func NewChatProvider(name string, provCfg config.ProviderConfig) (*ChatProvider, error) {
	if provCfg.APIKey == "" {
		return nil, errors.New("provider api key not configured")
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch strings.ToLower(name) {
	case "openai":
		chatModel, err = openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(context.Background(), &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(context.Background(), &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: claudeMaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", name, err)
	}
	return &ChatProvider{chatModel: chatModel}, nil
}

func (p *ChatProvider) Respond(ctx context.Context, prompt string) (string, error) {
	resp, err := p.chatModel.Generate(ctx, []*schema.Message{
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return resp.Content, nil
}

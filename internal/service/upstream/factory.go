package upstream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zhouzirui/kakao-relay/internal/config"
)

// New builds the Answerer selected by cfg.Provider. A missing credential is
// reported as ErrMissingAPIKey so callers can degrade to the configuration
// fault path instead of exiting.
func New(ctx context.Context, cfg config.UpstreamConfig, httpClient *http.Client) (Answerer, error) {
	switch cfg.Provider {
	case config.ProviderChatling:
		client, err := NewChatlingClient(cfg.Chatling.APIKey, cfg.Chatling.URL, cfg.Chatling.BotID, httpClient)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderOpenAI:
		client, err := NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, httpClient)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderArk:
		if !cfg.Ark.Enabled() {
			return nil, fmt.Errorf("ark: %w", ErrMissingAPIKey)
		}
		chatModel, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		client, err := NewArkClient(ctx, chatModel, "")
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown upstream provider %q", cfg.Provider)
	}
}

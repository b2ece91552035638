package upstream

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// DefaultSystemPrompt keeps answers short enough for a chat bubble.
const DefaultSystemPrompt = "You are a helpful assistant answering KakaoTalk users. Reply in the user's language, plainly and briefly."

// ArkClient answers through an eino chat model chain.
type ArkClient struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	system string
}

// NewArkClient compiles a system+query chain around chatModel.
func NewArkClient(ctx context.Context, chatModel model.ChatModel, system string) (*ArkClient, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("ark: chat model is nil")
	}
	if system == "" {
		system = DefaultSystemPrompt
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ArkClient{chain: runnable, system: system}, nil
}

// Name identifies the provider in logs.
func (c *ArkClient) Name() string { return "ark" }

// Answer runs the chain once. The model has no notion of session, so the
// session id is not forwarded.
func (c *ArkClient) Answer(ctx context.Context, utterance, _ string) (string, error) {
	msg, err := c.chain.Invoke(ctx, map[string]any{
		"system": c.system,
		"query":  utterance,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run ark chain: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", ErrEmptyAnswer
	}
	return msg.Content, nil
}

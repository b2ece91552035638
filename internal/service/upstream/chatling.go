package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseBytes = 1 << 20

// ChatlingClient speaks the {message, sessionId} -> {answer} contract.
type ChatlingClient struct {
	apiKey     string
	url        string
	botID      string
	httpClient *http.Client
}

type chatlingRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	BotID     string `json:"botId,omitempty"`
}

type chatlingResponse struct {
	Answer *string `json:"answer"`
	Data   *struct {
		Answer *string `json:"answer"`
	} `json:"data"`
}

// NewChatlingClient creates the client. httpClient may be nil.
func NewChatlingClient(apiKey, url, botID string, httpClient *http.Client) (*ChatlingClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("chatling: %w", ErrMissingAPIKey)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &ChatlingClient{
		apiKey:     apiKey,
		url:        url,
		botID:      botID,
		httpClient: httpClient,
	}, nil
}

// Name identifies the provider in logs.
func (c *ChatlingClient) Name() string { return "chatling" }

// Answer posts the utterance and extracts the answer field.
func (c *ChatlingClient) Answer(ctx context.Context, utterance, sessionID string) (string, error) {
	payload, err := json.Marshal(chatlingRequest{
		Message:   utterance,
		SessionID: sessionID,
		BotID:     c.botID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chatling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chatling request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chatling request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read chatling response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var decoded chatlingResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode chatling response: %v", ErrEmptyAnswer, err)
	}

	switch {
	case decoded.Answer != nil && strings.TrimSpace(*decoded.Answer) != "":
		return *decoded.Answer, nil
	case decoded.Data != nil && decoded.Data.Answer != nil && strings.TrimSpace(*decoded.Data.Answer) != "":
		return *decoded.Data.Answer, nil
	default:
		return "", ErrEmptyAnswer
	}
}

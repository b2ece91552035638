package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhouzirui/kakao-relay/internal/model/kakao"
)

// ErrNoCallbackURL means the job cannot be delivered out-of-band.
var ErrNoCallbackURL = errors.New("callback url missing")

// Pusher delivers an answer after the webhook response has been sent.
type Pusher interface {
	Push(ctx context.Context, callbackURL string, resp kakao.Response) error
}

// HTTPPusher posts the envelope to the platform callback URL.
type HTTPPusher struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPPusher creates a pusher. httpClient may be nil.
func NewHTTPPusher(httpClient *http.Client, timeout time.Duration) *HTTPPusher {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPPusher{client: httpClient, timeout: timeout}
}

// Push sends resp once; non-2xx is an error.
func (p *HTTPPusher) Push(ctx context.Context, callbackURL string, resp kakao.Response) error {
	callbackURL = strings.TrimSpace(callbackURL)
	if callbackURL == "" {
		return ErrNoCallbackURL
	}
	parsed, err := url.Parse(callbackURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("invalid callback url %q", callbackURL)
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("callback status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

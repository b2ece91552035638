package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Responder modes.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// Upstream providers.
const (
	ProviderChatling = "chatling"
	ProviderOpenAI   = "openai"
	ProviderArk      = "ark"
)

// Queue backends.
const (
	QueueMemory = "memory"
	QueueNATS   = "nats"
	QueueRedis  = "redis"
)

// ErrDeadlineBudget 表示上游超时没有给平台截止时间留出足够余量。
var ErrDeadlineBudget = errors.New("upstream timeout exceeds platform deadline budget")

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Platform PlatformConfig
	Upstream UpstreamConfig
	Queue    QueueConfig
	Log      LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	platform, err := loadPlatformConfig()
	if err != nil {
		return nil, err
	}

	upstream, err := loadUpstreamConfig()
	if err != nil {
		return nil, err
	}

	queue, err := loadQueueConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:   server,
		Platform: platform,
		Upstream: upstream,
		Queue:    queue,
		Log:      loadLogConfig(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. The synchronous call budget must
// fit inside the platform deadline minus the safety margin.
func (c *Config) Validate() error {
	budget := c.Platform.CallBudget()
	if budget <= 0 {
		return fmt.Errorf("PLATFORM_SAFETY_MARGIN %s leaves no room under PLATFORM_DEADLINE %s", c.Platform.SafetyMargin, c.Platform.Deadline)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", c.Upstream.Timeout)
	}
	if c.Upstream.Timeout > budget {
		return fmt.Errorf("%w: UPSTREAM_TIMEOUT %s > %s", ErrDeadlineBudget, c.Upstream.Timeout, budget)
	}
	if c.Upstream.AsyncTimeout <= 0 {
		return fmt.Errorf("ASYNC_UPSTREAM_TIMEOUT must be positive, got %s", c.Upstream.AsyncTimeout)
	}
	if c.Platform.MaxAnswerLength < 1 {
		return fmt.Errorf("MAX_ANSWER_LENGTH must be at least 1, got %d", c.Platform.MaxAnswerLength)
	}
	return nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr          string
	AllowedOrigin string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origin := getEnvOrDefault("ALLOWED_ORIGIN", "*")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigin: origin}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigin: origin}, nil
}

// PlatformConfig 描述聊天平台的约束。
type PlatformConfig struct {
	Mode            string
	Deadline        time.Duration
	SafetyMargin    time.Duration
	MaxAnswerLength int
	MessagesFile    string
}

// CallBudget is the longest synchronous upstream call the platform deadline allows.
func (c PlatformConfig) CallBudget() time.Duration {
	return c.Deadline - c.SafetyMargin
}

func loadPlatformConfig() (PlatformConfig, error) {
	deadline, err := parseDurationEnv("PLATFORM_DEADLINE", 5*time.Second)
	if err != nil {
		return PlatformConfig{}, err
	}

	margin, err := parseDurationEnv("PLATFORM_SAFETY_MARGIN", 1500*time.Millisecond)
	if err != nil {
		return PlatformConfig{}, err
	}

	maxLength := 1000
	if override, err := parseOptionalIntEnv("MAX_ANSWER_LENGTH"); err != nil {
		return PlatformConfig{}, err
	} else if override != nil {
		maxLength = *override
	}

	mode := strings.ToLower(getEnvOrDefault("RESPONDER_MODE", ModeSync))
	if mode != ModeSync && mode != ModeAsync {
		return PlatformConfig{}, fmt.Errorf("invalid RESPONDER_MODE value %q", mode)
	}

	return PlatformConfig{
		Mode:            mode,
		Deadline:        deadline,
		SafetyMargin:    margin,
		MaxAnswerLength: maxLength,
		MessagesFile:    strings.TrimSpace(os.Getenv("MESSAGES_FILE")),
	}, nil
}

// UpstreamConfig 描述上游问答服务配置。每个部署只选择一种上游协议。
type UpstreamConfig struct {
	Provider     string
	Timeout      time.Duration
	AsyncTimeout time.Duration
	Chatling     ChatlingConfig
	OpenAI       OpenAIConfig
	Ark          ArkConfig
}

// ChatlingConfig covers the {message, sessionId} -> {answer} contract.
type ChatlingConfig struct {
	APIKey string
	URL    string
	BotID  string
}

// OpenAIConfig covers chat-completions compatible gateways.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ArkConfig 描述火山方舟大模型配置。
type ArkConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
	})
}

func loadUpstreamConfig() (UpstreamConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("UPSTREAM_PROVIDER", ProviderChatling))
	switch provider {
	case ProviderChatling, ProviderOpenAI, ProviderArk:
	default:
		return UpstreamConfig{}, fmt.Errorf("invalid UPSTREAM_PROVIDER value %q", provider)
	}

	timeout, err := parseDurationEnv("UPSTREAM_TIMEOUT", 3500*time.Millisecond)
	if err != nil {
		return UpstreamConfig{}, err
	}

	asyncTimeout, err := parseDurationEnv("ASYNC_UPSTREAM_TIMEOUT", 30*time.Second)
	if err != nil {
		return UpstreamConfig{}, err
	}

	return UpstreamConfig{
		Provider:     provider,
		Timeout:      timeout,
		AsyncTimeout: asyncTimeout,
		Chatling: ChatlingConfig{
			APIKey: strings.TrimSpace(os.Getenv("CHATLING_API_KEY")),
			URL:    getEnvOrDefault("CHATLING_API_URL", "https://api.chatling.ai/v1/respond"),
			BotID:  strings.TrimSpace(os.Getenv("CHATLING_BOT_ID")),
		},
		OpenAI: OpenAIConfig{
			APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			BaseURL: getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Ark: ArkConfig{
			APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:     strings.TrimSpace(os.Getenv("ARK_MODEL")),
			BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
		},
	}, nil
}

// QueueConfig 描述异步模式下的任务队列。
type QueueConfig struct {
	Backend         string
	Workers         int
	Buffer          int
	NatsURL         string
	NatsSubject     string
	NatsQueueGroup  string
	RedisURL        string
	RedisKey        string
	CallbackTimeout time.Duration
}

func loadQueueConfig() (QueueConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("QUEUE_BACKEND", QueueMemory))
	switch backend {
	case QueueMemory, QueueNATS, QueueRedis:
	default:
		return QueueConfig{}, fmt.Errorf("invalid QUEUE_BACKEND value %q", backend)
	}

	workers := 4
	if override, err := parseOptionalIntEnv("QUEUE_WORKERS"); err != nil {
		return QueueConfig{}, err
	} else if override != nil {
		if *override < 1 {
			workers = 1
		} else {
			workers = *override
		}
	}

	buffer := 64
	if override, err := parseOptionalIntEnv("QUEUE_BUFFER"); err != nil {
		return QueueConfig{}, err
	} else if override != nil && *override > 0 {
		buffer = *override
	}

	callbackTimeout, err := parseDurationEnv("CALLBACK_TIMEOUT", 10*time.Second)
	if err != nil {
		return QueueConfig{}, err
	}

	return QueueConfig{
		Backend:         backend,
		Workers:         workers,
		Buffer:          buffer,
		NatsURL:         getEnvOrDefault("NATS_URL", "nats://localhost:4222"),
		NatsSubject:     getEnvOrDefault("NATS_SUBJECT", "kakao.relay.jobs"),
		NatsQueueGroup:  getEnvOrDefault("NATS_QUEUE_GROUP", "kakao-relay-workers"),
		RedisURL:        getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		RedisKey:        getEnvOrDefault("REDIS_QUEUE_KEY", "kakao-relay:jobs"),
		CallbackTimeout: callbackTimeout,
	}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

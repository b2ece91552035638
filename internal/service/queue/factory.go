package queue

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/kakao-relay/internal/config"
)

// New builds the backend selected by cfg.Backend.
func New(cfg config.QueueConfig, serviceName string, logger *zap.Logger) (Queue, error) {
	switch cfg.Backend {
	case config.QueueMemory:
		return NewMemoryQueue(cfg.Buffer, cfg.Workers), nil
	case config.QueueNATS:
		q, err := NewNATSQueue(cfg.NatsURL, serviceName, cfg.NatsSubject, cfg.NatsQueueGroup, cfg.Workers, logger)
		if err != nil {
			return nil, err
		}
		return q, nil
	case config.QueueRedis:
		q, err := NewRedisQueue(cfg.RedisURL, cfg.RedisKey, cfg.Workers, logger)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

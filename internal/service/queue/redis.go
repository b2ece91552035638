package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultPollTimeout = time.Second

// RedisQueue keeps jobs in a Redis list: LPUSH to enqueue, BRPOP to consume.
// Jobs survive a process restart while pending; once popped they are not
// returned to the list.
type RedisQueue struct {
	client      *redis.Client
	key         string
	workers     int
	pollTimeout time.Duration
	logger      *zap.Logger
}

// NewRedisQueue connects to redisURL and verifies the connection.
func NewRedisQueue(redisURL, key string, workers int, logger *zap.Logger) (*RedisQueue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisQueueFromClient(client, key, workers, logger), nil
}

// NewRedisQueueFromClient wraps an existing client. Close closes it.
func NewRedisQueueFromClient(client *redis.Client, key string, workers int, logger *zap.Logger) *RedisQueue {
	if workers < 1 {
		workers = 1
	}
	return &RedisQueue{
		client:      client,
		key:         key,
		workers:     workers,
		pollTimeout: defaultPollTimeout,
		logger:      logger,
	}
}

// Enqueue pushes the job to the head of the list.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("push job %s: %w", job.ID, err)
	}
	return nil
}

// Consume runs workers that block on BRPOP until ctx is done.
func (q *RedisQueue) Consume(ctx context.Context, handle Handler) error {
	handlerCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx, handlerCtx, handle)
		}()
	}
	wg.Wait()
	return nil
}

func (q *RedisQueue) work(ctx, handlerCtx context.Context, handle Handler) {
	for ctx.Err() == nil {
		res, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.Warn("redis pop failed", zap.String("key", q.key), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		// BRPOP returns [key, value]
		if len(res) != 2 {
			continue
		}
		job, err := decodeJob([]byte(res[1]))
		if err != nil {
			q.logger.Warn("dropping malformed job", zap.Error(err))
			continue
		}
		handle(handlerCtx, job)
	}
}

// Len reports pending jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSQueue publishes jobs on a core NATS subject and consumes them through
// a queue group, so each job reaches one worker across all replicas.
type NATSQueue struct {
	conn    *nats.Conn
	subject string
	group   string
	workers int
	logger  *zap.Logger
}

// NewNATSQueue connects to url.
func NewNATSQueue(url, name, subject, group string, workers int, logger *zap.Logger) (*NATSQueue, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewNATSQueueFromConn(conn, subject, group, workers, logger), nil
}

// NewNATSQueueFromConn wraps an existing connection. Close closes it.
func NewNATSQueueFromConn(conn *nats.Conn, subject, group string, workers int, logger *zap.Logger) *NATSQueue {
	if workers < 1 {
		workers = 1
	}
	return &NATSQueue{
		conn:    conn,
		subject: subject,
		group:   group,
		workers: workers,
		logger:  logger,
	}
}

// Enqueue publishes the job. Core NATS gives at-most-once delivery.
func (q *NATSQueue) Enqueue(_ context.Context, job Job) error {
	if q.conn.IsClosed() {
		return ErrClosed
	}
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := q.conn.Publish(q.subject, data); err != nil {
		return fmt.Errorf("publish job %s: %w", job.ID, err)
	}
	return nil
}

// Consume opens one queue subscription per worker. Each subscription is
// served by its own goroutine. Messages delivered after shutdown starts are
// dropped, so no handler runs once Consume has returned.
func (q *NATSQueue) Consume(ctx context.Context, handle Handler) error {
	handlerCtx := context.WithoutCancel(ctx)

	var (
		mu       sync.Mutex
		stopped  bool
		inflight sync.WaitGroup
	)
	onMsg := func(msg *nats.Msg) {
		mu.Lock()
		if stopped {
			mu.Unlock()
			return
		}
		inflight.Add(1)
		mu.Unlock()
		defer inflight.Done()

		job, err := decodeJob(msg.Data)
		if err != nil {
			q.logger.Warn("dropping malformed job", zap.Error(err), zap.Int("bytes", len(msg.Data)))
			return
		}
		handle(handlerCtx, job)
	}

	subs := make([]*nats.Subscription, 0, q.workers)
	unsubscribe := func() {
		for _, s := range subs {
			if err := s.Unsubscribe(); err != nil && q.conn.IsConnected() {
				q.logger.Warn("nats unsubscribe failed", zap.Error(err))
			}
		}
	}

	for i := 0; i < q.workers; i++ {
		sub, err := q.conn.QueueSubscribe(q.subject, q.group, onMsg)
		if err != nil {
			unsubscribe()
			return fmt.Errorf("failed to subscribe to %s: %w", q.subject, err)
		}
		subs = append(subs, sub)
	}
	if err := q.conn.Flush(); err != nil {
		q.logger.Warn("nats flush after subscribe failed", zap.Error(err))
	}

	q.logger.Info("nats consumers started",
		zap.String("subject", q.subject),
		zap.String("group", q.group),
		zap.Int("workers", q.workers))

	<-ctx.Done()

	unsubscribe()
	mu.Lock()
	stopped = true
	mu.Unlock()
	inflight.Wait()
	return nil
}

// Close flushes pending publishes and closes the connection.
func (q *NATSQueue) Close() error {
	if q.conn == nil || q.conn.IsClosed() {
		return nil
	}
	if err := q.conn.FlushTimeout(2 * time.Second); err != nil && q.conn.IsConnected() {
		q.logger.Warn("nats flush failed", zap.Error(err))
	}
	q.conn.Close()
	return nil
}

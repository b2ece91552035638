package responder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/kakao-relay/internal/model/kakao"
	"github.com/zhouzirui/kakao-relay/internal/service/callback"
	"github.com/zhouzirui/kakao-relay/internal/service/queue"
	"github.com/zhouzirui/kakao-relay/internal/service/upstream"
)

// Worker answers queued jobs and pushes the result out-of-band. Failures are
// logged and the job is dropped.
type Worker struct {
	answerer  upstream.Answerer
	pusher    callback.Pusher
	timeout   time.Duration
	maxLength int
	logger    *zap.Logger
}

// NewWorker creates a Worker with the relaxed async timeout.
func NewWorker(answerer upstream.Answerer, pusher callback.Pusher, timeout time.Duration, maxLength int, logger *zap.Logger) *Worker {
	return &Worker{
		answerer:  answerer,
		pusher:    pusher,
		timeout:   timeout,
		maxLength: maxLength,
		logger:    logger,
	}
}

// Handle matches queue.Handler.
func (w *Worker) Handle(ctx context.Context, job queue.Job) {
	logger := w.logger.With(zap.String("job", job.ID))

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("worker panicked, dropping job",
				zap.Any("panic", rec),
				zap.Stack("stacktrace"))
		}
	}()

	if w.answerer == nil {
		logger.Error("upstream not configured, dropping job")
		return
	}
	if job.CallbackURL == "" {
		logger.Warn("job has no callback url, dropping before upstream call")
		return
	}

	res := upstream.Call(ctx, w.answerer, job.Utterance, job.SessionID, w.timeout)
	if res.Outcome != upstream.OutcomeAnswered {
		logResult(logger, w.answerer.Name(), job.SessionID, res)
		logger.Warn("dropping job", zap.String("outcome", string(res.Outcome)))
		return
	}

	resp := kakao.NewSimpleText(kakao.Truncate(res.Text, w.maxLength))
	if err := w.pusher.Push(ctx, job.CallbackURL, resp); err != nil {
		logger.Error("callback delivery failed, dropping job", zap.Error(err))
		return
	}

	logger.Info("answer delivered",
		zap.String("session", job.SessionID),
		zap.Duration("elapsed", res.Elapsed),
		zap.Duration("queued", time.Since(job.EnqueuedAt)))
}

// Run consumes q until ctx is done.
func (w *Worker) Run(ctx context.Context, q queue.Queue) error {
	if err := q.Consume(ctx, w.Handle); err != nil {
		return fmt.Errorf("consume jobs: %w", err)
	}
	return nil
}

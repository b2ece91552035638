package responder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/kakao-relay/internal/config"
	"github.com/zhouzirui/kakao-relay/internal/model/kakao"
	"github.com/zhouzirui/kakao-relay/internal/service/queue"
	"github.com/zhouzirui/kakao-relay/internal/service/upstream"
)

// Enqueuer hands work to the async worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) error
}

// Options 构造 Responder 所需的不可变参数。
type Options struct {
	Mode            string
	Provider        string
	Timeout         time.Duration
	MaxAnswerLength int
	Messages        Messages
}

// Responder is the bounded proxy: one upstream attempt, always an envelope.
type Responder struct {
	answerer  upstream.Answerer
	configErr error
	queue     Enqueuer
	opts      Options
	logger    *zap.Logger
}

// New creates a Responder. configErr is the startup credential fault, if
// any; while set, every request gets the configuration-error text and no
// upstream call is made. queue is only used in async mode.
func New(answerer upstream.Answerer, configErr error, q Enqueuer, opts Options, logger *zap.Logger) *Responder {
	if answerer == nil && configErr == nil {
		configErr = upstream.ErrMissingAPIKey
	}
	if opts.Mode == "" {
		opts.Mode = config.ModeSync
	}
	if opts.Provider == "" && answerer != nil {
		opts.Provider = answerer.Name()
	}
	return &Responder{
		answerer:  answerer,
		configErr: configErr,
		queue:     q,
		opts:      opts,
		logger:    logger,
	}
}

// Respond handles one webhook request. A non-nil error is an internal fault;
// the HTTP layer converts it to the generic envelope.
func (r *Responder) Respond(ctx context.Context, req kakao.Request) (kakao.Response, error) {
	utterance := req.Utterance()
	if utterance == "" {
		return kakao.NewSimpleText(r.opts.Messages.EmptyUtterance), nil
	}

	sessionID := req.UserID()

	if r.configErr != nil {
		r.logger.Error("upstream not configured, answering with configuration error",
			zap.String("provider", r.opts.Provider),
			zap.String("session", sessionID),
			zap.Error(r.configErr))
		return kakao.NewSimpleText(r.opts.Messages.ConfigError), nil
	}

	// without a callback url there is no way to deliver later, so answer inline
	if r.opts.Mode == config.ModeAsync && req.CallbackURL() != "" {
		return r.enqueue(ctx, req, utterance, sessionID)
	}

	return r.answer(ctx, utterance, sessionID), nil
}

func (r *Responder) answer(ctx context.Context, utterance, sessionID string) kakao.Response {
	res := upstream.Call(ctx, r.answerer, utterance, sessionID, r.opts.Timeout)
	if res.Outcome == upstream.OutcomeAnswered {
		r.logger.Debug("upstream answered",
			zap.String("session", sessionID),
			zap.Duration("elapsed", res.Elapsed),
			zap.Int("length", len(res.Text)))
		return kakao.NewSimpleText(kakao.Truncate(res.Text, r.opts.MaxAnswerLength))
	}

	logResult(r.logger, r.opts.Provider, sessionID, res)
	return kakao.NewSimpleText(r.opts.Messages.ForOutcome(res.Outcome))
}

func (r *Responder) enqueue(ctx context.Context, req kakao.Request, utterance, sessionID string) (kakao.Response, error) {
	if r.queue == nil {
		return kakao.Response{}, fmt.Errorf("async mode without a job queue")
	}

	job := queue.Job{
		ID:          uuid.NewString(),
		Utterance:   utterance,
		SessionID:   sessionID,
		CallbackURL: req.CallbackURL(),
		EnqueuedAt:  time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	if err := r.queue.Enqueue(ctx, job); err != nil {
		return kakao.Response{}, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}

	r.logger.Info("job enqueued",
		zap.String("job", job.ID),
		zap.String("session", sessionID))

	return kakao.NewCallbackAck(r.opts.Messages.Accepted), nil
}

// logResult logs a non-answered outcome at the level its fault class needs.
func logResult(logger *zap.Logger, provider, sessionID string, res upstream.Result) {
	fields := []zap.Field{
		zap.String("provider", provider),
		zap.String("session", sessionID),
		zap.String("outcome", string(res.Outcome)),
		zap.Duration("elapsed", res.Elapsed),
	}

	switch res.Outcome {
	case upstream.OutcomeTimeout:
		logger.Warn("upstream timed out", append(fields, zap.Error(res.Err))...)
	case upstream.OutcomeCancelled:
		logger.Info("request cancelled before upstream answered", append(fields, zap.Error(res.Err))...)
	case upstream.OutcomeStatus:
		logger.Warn("upstream returned non-success status",
			append(fields, zap.Int("status", res.StatusCode), zap.String("body", res.Snippet))...)
	case upstream.OutcomeEmpty:
		logger.Warn("upstream returned no usable answer", append(fields, zap.Error(res.Err))...)
	case upstream.OutcomeTransport:
		logger.Error("upstream request failed",
			append(fields, zap.Error(res.Err), zap.Stack("stacktrace"))...)
	}
}

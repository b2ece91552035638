package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQueueFull is returned by bounded backends when no slot is free.
	ErrQueueFull = errors.New("job queue is full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("job queue is closed")
)

// Job is one fire-and-forget work item. Delivery is at-most-once: a job
// that fails in the handler is logged and dropped.
type Job struct {
	ID          string    `json:"id"`
	Utterance   string    `json:"utterance"`
	SessionID   string    `json:"sessionId"`
	CallbackURL string    `json:"callbackUrl,omitempty"`
	EnqueuedAt  time.Time `json:"enqueuedAt"`
}

// Handler processes a single job. It owns its own failure handling.
type Handler func(ctx context.Context, job Job)

// Queue is implemented by every backend.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Consume runs the worker pool until ctx is done, then waits for
	// in-flight handlers before returning.
	Consume(ctx context.Context, handle Handler) error
	Close() error
}

func encodeJob(job Job) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return data, nil
}

func decodeJob(data []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}

package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// snippetLimit caps upstream bodies copied into logs.
const snippetLimit = 200

var (
	// ErrMissingAPIKey marks a deployment fault: the selected provider needs
	// credentials that were not configured.
	ErrMissingAPIKey = errors.New("upstream api key not configured")
	// ErrEmptyAnswer means the upstream replied successfully without usable text.
	ErrEmptyAnswer = errors.New("upstream returned no usable answer")
)

// Answerer is the pluggable upstream answering capability.
type Answerer interface {
	Answer(ctx context.Context, utterance, sessionID string) (string, error)
	Name() string
}

// StatusError reports a non-success HTTP status from the upstream.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// Outcome classifies a single upstream call.
type Outcome string

const (
	OutcomeAnswered  Outcome = "answered"
	OutcomeEmpty     Outcome = "empty"
	OutcomeStatus    Outcome = "status"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeTransport Outcome = "transport"
	// OutcomeCancelled means the caller went away before the upstream
	// answered, as opposed to the upstream being slow.
	OutcomeCancelled Outcome = "cancelled"
)

// Result is the classified outcome of Call.
type Result struct {
	Outcome    Outcome
	Text       string
	StatusCode int
	Snippet    string
	Err        error
	Elapsed    time.Duration
}

type reply struct {
	text string
	err  error
}

// Call issues exactly one upstream request bounded by timeout. It returns as
// soon as the deadline passes, even if the answerer ignores cancellation.
func Call(ctx context.Context, answerer Answerer, utterance, sessionID string, timeout time.Duration) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	replies := make(chan reply, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				replies <- reply{err: fmt.Errorf("upstream %s panicked: %v", answerer.Name(), rec)}
			}
		}()
		text, err := answerer.Answer(ctx, utterance, sessionID)
		replies <- reply{text: text, err: err}
	}()

	var res Result
	select {
	case r := <-replies:
		res = Classify(r.text, r.err)
	case <-ctx.Done():
		res = Classify("", ctx.Err())
	}
	res.Elapsed = time.Since(start)
	return res
}

// Classify maps an answer/error pair to exactly one outcome.
func Classify(text string, err error) Result {
	if err == nil {
		if strings.TrimSpace(text) == "" {
			return Result{Outcome: OutcomeEmpty, Err: ErrEmptyAnswer}
		}
		return Result{Outcome: OutcomeAnswered, Text: text}
	}

	if errors.Is(err, context.Canceled) {
		return Result{Outcome: OutcomeCancelled, Err: err}
	}

	if errors.Is(err, ErrEmptyAnswer) {
		return Result{Outcome: OutcomeEmpty, Err: err}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return Result{
			Outcome:    OutcomeStatus,
			StatusCode: statusErr.StatusCode,
			Snippet:    Snippet(statusErr.Body),
			Err:        err,
		}
	}

	if IsTimeout(err) {
		return Result{Outcome: OutcomeTimeout, Err: err}
	}

	return Result{Outcome: OutcomeTransport, Err: err}
}

// IsTimeout reports whether err came from a deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Snippet trims body to the log limit.
func Snippet(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= snippetLimit {
		return body
	}
	cut := snippetLimit
	// avoid splitting a multi-byte rune
	for cut > 0 && !isRuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

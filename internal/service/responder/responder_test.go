package responder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zhouzirui/kakao-relay/internal/config"
	"github.com/zhouzirui/kakao-relay/internal/model/kakao"
	"github.com/zhouzirui/kakao-relay/internal/service/queue"
	"github.com/zhouzirui/kakao-relay/internal/service/upstream"
)

type fakeAnswerer struct {
	text  string
	err   error
	block bool
	calls atomic.Int32
}

func (f *fakeAnswerer) Name() string { return "fake" }

func (f *fakeAnswerer) Answer(ctx context.Context, _, _ string) (string, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job queue.Job) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func request(utterance *string, userID string) kakao.Request {
	req := kakao.Request{}
	req.UserRequest.Utterance = utterance
	if userID != "" {
		req.UserRequest.User = &kakao.User{ID: &userID}
	}
	return req
}

func strPtr(s string) *string { return &s }

func newTestResponder(answerer upstream.Answerer, configErr error, q Enqueuer, mode string) (*Responder, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	opts := Options{
		Mode:            mode,
		Timeout:         200 * time.Millisecond,
		MaxAnswerLength: 1000,
		Messages:        DefaultMessages(),
	}
	return New(answerer, configErr, q, opts, zap.New(core)), logs
}

func assertEnvelope(t *testing.T, resp kakao.Response, want string) {
	t.Helper()
	if resp.Version != kakao.Version {
		t.Fatalf("unexpected version %q", resp.Version)
	}
	if len(resp.Template.Outputs) != 1 {
		t.Fatalf("expected exactly one output, got %d", len(resp.Template.Outputs))
	}
	if got := resp.Text(); got != want {
		t.Fatalf("unexpected text:\n got %q\nwant %q", got, want)
	}
}

func TestRespondEmptyUtteranceSkipsUpstream(t *testing.T) {
	fake := &fakeAnswerer{text: "never"}
	r, logs := newTestResponder(fake, nil, nil, config.ModeSync)

	for _, utterance := range []*string{nil, strPtr(""), strPtr("   \n\t")} {
		resp, err := r.Respond(context.Background(), request(utterance, "u"))
		if err != nil {
			t.Fatalf("Respond err: %v", err)
		}
		assertEnvelope(t, resp, DefaultMessages().EmptyUtterance)
	}

	if fake.calls.Load() != 0 {
		t.Fatalf("expected no upstream call, got %d", fake.calls.Load())
	}
	if logs.Len() != 0 {
		t.Fatalf("expected no logs, got %d", logs.Len())
	}
}

func TestRespondAnswered(t *testing.T) {
	r, _ := newTestResponder(&fakeAnswerer{text: "hello"}, nil, nil, config.ModeSync)

	resp, err := r.Respond(context.Background(), request(strPtr("hi"), "u"))
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	assertEnvelope(t, resp, "hello")
}

func TestRespondTruncatesLongAnswer(t *testing.T) {
	long := strings.Repeat("답", 1200)
	r, _ := newTestResponder(&fakeAnswerer{text: long}, nil, nil, config.ModeSync)

	resp, _ := r.Respond(context.Background(), request(strPtr("hi"), "u"))
	text := resp.Text()
	if utf8.RuneCountInString(text) != 1000 {
		t.Fatalf("expected 1000 runes, got %d", utf8.RuneCountInString(text))
	}
	if !utf8.ValidString(text) {
		t.Fatal("truncated answer is not valid utf-8")
	}
}

func TestRespondMissingKeyEveryRequest(t *testing.T) {
	r, logs := newTestResponder(nil, upstream.ErrMissingAPIKey, nil, config.ModeSync)

	for i := 0; i < 3; i++ {
		resp, err := r.Respond(context.Background(), request(strPtr("hi"), "u"))
		if err != nil {
			t.Fatalf("Respond err: %v", err)
		}
		assertEnvelope(t, resp, DefaultMessages().ConfigError)
	}

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).Len()
	if errs != 3 {
		t.Fatalf("expected 3 error logs, got %d", errs)
	}
}

func TestRespondTimeout(t *testing.T) {
	fake := &fakeAnswerer{block: true}
	r, logs := newTestResponder(fake, nil, nil, config.ModeSync)

	start := time.Now()
	resp, err := r.Respond(context.Background(), request(strPtr("hi"), "u"))
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}

	assertEnvelope(t, resp, DefaultMessages().Timeout)
	if elapsed > 200*time.Millisecond+150*time.Millisecond {
		t.Fatalf("responder overran timeout: %s", elapsed)
	}
	if logs.FilterMessage("upstream timed out").FilterLevelExact(zapcore.WarnLevel).Len() != 1 {
		t.Fatalf("expected one timeout warning, got %v", logs.All())
	}
}

func TestRespondNonSuccessStatus(t *testing.T) {
	fake := &fakeAnswerer{err: &upstream.StatusError{StatusCode: 500, Body: "internal stack dump"}}
	r, logs := newTestResponder(fake, nil, nil, config.ModeSync)

	resp, _ := r.Respond(context.Background(), request(strPtr("hi"), "u"))
	assertEnvelope(t, resp, DefaultMessages().UpstreamStatus)
	if strings.Contains(resp.Text(), "stack dump") {
		t.Fatal("raw upstream body leaked to the user")
	}

	entries := logs.FilterMessage("upstream returned non-success status").All()
	if len(entries) != 1 {
		t.Fatalf("expected one status warning, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(500) || fields["body"] != "internal stack dump" {
		t.Fatalf("unexpected log fields %v", fields)
	}
}

func TestRespondTransportError(t *testing.T) {
	fake := &fakeAnswerer{err: errors.New("connection refused")}
	r, logs := newTestResponder(fake, nil, nil, config.ModeSync)

	resp, _ := r.Respond(context.Background(), request(strPtr("hi"), "u"))
	assertEnvelope(t, resp, DefaultMessages().Generic)

	entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	if len(entries) != 1 {
		t.Fatalf("expected one error log, got %d", len(entries))
	}
	if _, ok := entries[0].ContextMap()["stacktrace"]; !ok {
		t.Fatal("transport error log must carry a stack trace")
	}
}

func TestRespondEmptyAnswer(t *testing.T) {
	r, _ := newTestResponder(&fakeAnswerer{text: "  "}, nil, nil, config.ModeSync)

	resp, _ := r.Respond(context.Background(), request(strPtr("hi"), "u"))
	assertEnvelope(t, resp, DefaultMessages().EmptyAnswer)
}

func TestRespondAsyncEnqueues(t *testing.T) {
	fake := &fakeAnswerer{text: "unused"}
	q := &recordingQueue{}
	r, _ := newTestResponder(fake, nil, q, config.ModeAsync)

	req := request(strPtr(" 날씨 알려줘 "), "user-9")
	req.UserRequest.CallbackURL = strPtr("https://callback.example/abc")

	resp, err := r.Respond(context.Background(), req)
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	assertEnvelope(t, resp, DefaultMessages().Accepted)
	if !resp.UseCallback {
		t.Fatal("expected useCallback for request with callback url")
	}
	if fake.calls.Load() != 0 {
		t.Fatal("async mode must not call upstream inline")
	}

	if len(q.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(q.jobs))
	}
	job := q.jobs[0]
	if job.Utterance != "날씨 알려줘" || job.SessionID != "user-9" || job.CallbackURL != "https://callback.example/abc" || job.ID == "" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestRespondAsyncWithoutCallbackAnswersInline(t *testing.T) {
	fake := &fakeAnswerer{text: "inline answer"}
	q := &recordingQueue{}
	r, _ := newTestResponder(fake, nil, q, config.ModeAsync)

	resp, err := r.Respond(context.Background(), request(strPtr("hi"), ""))
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	assertEnvelope(t, resp, "inline answer")
	if resp.UseCallback {
		t.Fatal("useCallback must be omitted without callback url")
	}
	if len(q.jobs) != 0 {
		t.Fatalf("expected no job without callback url, got %d", len(q.jobs))
	}
	if fake.calls.Load() != 1 {
		t.Fatalf("expected one inline upstream call, got %d", fake.calls.Load())
	}
}

func TestRespondAsyncWithoutCallbackTimesOutInline(t *testing.T) {
	q := &recordingQueue{}
	r, _ := newTestResponder(&fakeAnswerer{block: true}, nil, q, config.ModeAsync)

	resp, err := r.Respond(context.Background(), request(strPtr("hi"), "u"))
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	assertEnvelope(t, resp, DefaultMessages().Timeout)
	if len(q.jobs) != 0 {
		t.Fatal("undeliverable request must not be enqueued")
	}
}

func TestRespondCancelledByCaller(t *testing.T) {
	r, logs := newTestResponder(&fakeAnswerer{block: true}, nil, nil, config.ModeSync)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	resp, err := r.Respond(ctx, request(strPtr("hi"), "u"))
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	assertEnvelope(t, resp, DefaultMessages().Generic)
	if logs.FilterMessage("upstream timed out").Len() != 0 {
		t.Fatal("caller cancellation must not be logged as an upstream timeout")
	}
	if logs.FilterMessage("request cancelled before upstream answered").Len() != 1 {
		t.Fatalf("expected cancellation log, got %v", logs.All())
	}
}

func TestRespondAsyncEnqueueFailure(t *testing.T) {
	q := &recordingQueue{err: queue.ErrQueueFull}
	r, _ := newTestResponder(&fakeAnswerer{}, nil, q, config.ModeAsync)

	if _, err := r.Respond(context.Background(), request(strPtr("hi"), "u")); !errors.Is(err, queue.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestRespondAsyncValidationFirst(t *testing.T) {
	q := &recordingQueue{}
	r, _ := newTestResponder(&fakeAnswerer{}, nil, q, config.ModeAsync)

	resp, _ := r.Respond(context.Background(), request(nil, "u"))
	assertEnvelope(t, resp, DefaultMessages().EmptyUtterance)
	if len(q.jobs) != 0 {
		t.Fatal("blank utterance must not be enqueued")
	}
}

func TestNewWithoutAnswererIsConfigFault(t *testing.T) {
	r, _ := newTestResponder(nil, nil, nil, config.ModeSync)

	resp, _ := r.Respond(context.Background(), request(strPtr("hi"), "u"))
	assertEnvelope(t, resp, DefaultMessages().ConfigError)
}

package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/kakao-relay/internal/model/kakao"
	"github.com/zhouzirui/kakao-relay/pkg/utils"
)

const maxBodyBytes = 1 << 20

// panicError wraps a recovered panic that has already been logged.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// Responder produces the envelope for one request.
type Responder interface {
	Respond(ctx context.Context, req kakao.Request) (kakao.Response, error)
}

// Handler 技能回调的 HTTP 处理器。
type Handler struct {
	responder Responder
	fallback  string
	logger    *zap.Logger
}

// New 创建回调处理器。fallback 是内部故障时返回给用户的文案。
func New(responder Responder, fallback string, logger *zap.Logger) *Handler {
	return &Handler{
		responder: responder,
		fallback:  fallback,
		logger:    logger,
	}
}

// RegisterRoutes 注册回调路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook", h.ServeHTTP)
	r.Get("/webhook", h.handlePing)
	r.Head("/webhook", h.handlePing)
}

// ServeHTTP is the single boundary between the responder and the platform:
// every error and panic becomes the fallback envelope, and the status is
// always 200.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := h.safeRespond(r)
	if err != nil {
		var recovered *panicError
		if !errors.As(err, &recovered) {
			h.logger.Error("webhook handler failed, answering with fallback",
				zap.String("request_id", chimw.GetReqID(r.Context())),
				zap.Error(err),
				zap.Stack("stacktrace"))
		}
		resp = kakao.NewSimpleText(h.fallback)
	}
	if len(resp.Template.Outputs) != 1 || resp.Version != kakao.Version {
		h.logger.Error("responder produced malformed envelope, answering with fallback",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Int("outputs", len(resp.Template.Outputs)))
		resp = kakao.NewSimpleText(h.fallback)
	}

	if err := utils.RespondJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) safeRespond(r *http.Request) (resp kakao.Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.logger.Error("webhook handler panicked",
				zap.String("request_id", chimw.GetReqID(r.Context())),
				zap.Any("panic", rec),
				zap.Stack("stacktrace"))
			err = &panicError{value: rec}
		}
	}()

	return h.responder.Respond(r.Context(), h.decode(r))
}

// decode never fails: unreadable or invalid bodies become the empty request.
func (h *Handler) decode(r *http.Request) kakao.Request {
	if r.Body == nil {
		return kakao.Request{}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Debug("failed to read webhook body, treating as empty", zap.Error(err))
		return kakao.Request{}
	}

	req, err := kakao.DecodeRequest(body)
	if err != nil {
		h.logger.Debug("invalid webhook payload, treating as empty",
			zap.Error(err),
			zap.Int("bytes", len(body)))
	}
	return req
}

// handlePing answers the platform's GET/HEAD verification requests.
func (h *Handler) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := utils.RespondText(w, http.StatusOK, "OK"); err != nil {
		h.logger.Warn("failed to write ping response", zap.Error(err))
	}
}

package health

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/kakao-relay/pkg/utils"
)

// Info describes the running deployment.
type Info struct {
	Service  string `json:"service"`
	Mode     string `json:"mode"`
	Upstream string `json:"upstream"`
	Queue    string `json:"queue,omitempty"`
}

// Handler serves liveness probes.
type Handler struct {
	info    Info
	started time.Time
	logger  *zap.Logger
}

// New 创建健康检查处理器
func New(info Info, logger *zap.Logger) *Handler {
	return &Handler{info: info, started: time.Now(), logger: logger}
}

// RegisterRoutes 注册健康检查路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleRoot)
	r.Get("/health", h.handleHealth)
}

func (h *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	if err := utils.RespondText(w, http.StatusOK, "OK"); err != nil {
		h.logger.Warn("failed to write health response", zap.Error(err))
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	payload := struct {
		Status string `json:"status"`
		Info
		Uptime string `json:"uptime"`
	}{
		Status: "ok",
		Info:   h.info,
		Uptime: time.Since(h.started).Round(time.Second).String(),
	}
	if err := utils.RespondJSON(w, http.StatusOK, payload); err != nil {
		h.logger.Warn("failed to encode health response", zap.Error(err))
	}
}

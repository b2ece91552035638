package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/kakao-relay/internal/handler/health"
	"github.com/zhouzirui/kakao-relay/internal/handler/webhook"
	middlewarePkg "github.com/zhouzirui/kakao-relay/internal/middleware"
)

// NewRouter wires HTTP routes to the handlers.
func NewRouter(webhookHandler *webhook.Handler, healthHandler *health.Handler, allowedOrigin string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	// the webhook recovers its own panics into an envelope; this covers the rest
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigin))

	healthHandler.RegisterRoutes(r)
	webhookHandler.RegisterRoutes(r)

	return r
}

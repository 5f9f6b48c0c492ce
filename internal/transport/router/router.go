package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fieldscope/mediaworks/internal/transport/handler"
)

func New(h *handler.Handler, log *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", h.Health)

	// The provider signs its own requests; X-User-ID auth does not apply.
	r.Post("/api/v1/webhooks/video", h.VideoWebhook)

	r.Route("/api/v1/observations/{observationID}/artifacts", func(r chi.Router) {
		r.Use(handler.RequireUser)
		r.Get("/", h.ListArtifacts)
		r.Post("/", h.SubmitArtifact)
		r.Get("/{assetID}", h.GetArtifact)
	})

	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/rpsls-backend/internal/hub"
	"github.com/DoyleJ11/rpsls-backend/internal/ws"
)

type Deps struct {
	Hub     *hub.Hub
	History RivalryReader
	WS      ws.Config
	Logger  *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Post("/rooms", CreateRoom(d.Hub, log))
	r.Get("/rooms/{code}", GetRoom(d.Hub))
	r.Get("/rivalries", Rivalries(d.History, log))
	r.Get("/stats", Stats(d.Hub))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Hub, d.WS, log))
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if status >= http.StatusInternalServerError {
				log.Warn("request", fields...)
				return
			}
			log.Debug("request", fields...)
		})
	}
}

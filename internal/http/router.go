package http

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.Use(accessLog(h.logger))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/assistant").Subrouter()
	api.HandleFunc("/ask", h.Ask).Methods(http.MethodPost)
	api.HandleFunc("/sources", h.ListSources).Methods(http.MethodGet)
	api.HandleFunc("/sources", h.CreateSource).Methods(http.MethodPost)
	api.HandleFunc("/sources", h.DeleteSources).Methods(http.MethodDelete)

	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", TenantHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})(r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func accessLog(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

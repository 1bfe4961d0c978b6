package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

// NewRouter wires the prediction endpoints behind CORS and request logging.
func NewRouter(h *Handler) http.Handler {
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/health", h.Health)
	router.HandlerFunc(http.MethodPost, "/predict", h.Predict)
	router.HandlerFunc(http.MethodPost, "/predict/image", h.PredictFromImage)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(logRequests(h.log, router))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func logRequests(log logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)

		reqLog := log.WithFields(logrus.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
		})
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, reqLog))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		reqLog.WithFields(logrus.Fields{
			"status":  rec.status,
			"elapsed": time.Since(start),
		}).Info("Handled request")
	})
}

// entry returns the request-scoped logger installed by logRequests.
func entry(log logrus.FieldLogger, r *http.Request) logrus.FieldLogger {
	if l, ok := r.Context().Value(ctxKey{}).(logrus.FieldLogger); ok {
		return l
	}
	return log
}

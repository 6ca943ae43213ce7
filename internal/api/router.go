package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const staticMountPath = "/app/"

type RouterOptions struct {
	ServeStatic bool   // mount the frontend bundle under /app/
	StaticDir   string // directory holding the built frontend
}

// Routes returns the service's HTTP handler with CORS and request logging applied.
func (h *Handler) Routes(opts RouterOptions) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /conversations", h.CreateConversation)
	mux.HandleFunc("POST /conversations/{$}", h.CreateConversation)
	mux.HandleFunc("GET /conversations", h.ListConversations)
	mux.HandleFunc("GET /conversations/{$}", h.ListConversations)
	mux.HandleFunc("GET /conversations/{id}", h.GetConversation)
	mux.HandleFunc("DELETE /conversations/{id}", h.DeleteConversation)
	mux.HandleFunc("POST /conversations/{id}/messages", h.CreateMessage)
	mux.HandleFunc("POST /conversations/{id}/messages/{$}", h.CreateMessage)
	mux.HandleFunc("GET /healthz", h.Health)

	if opts.ServeStatic {
		fs := http.FileServer(http.Dir(opts.StaticDir))
		mux.Handle("GET "+staticMountPath, http.StripPrefix(staticMountPath[:len(staticMountPath)-1], fs))
		h.logger.Info("Serving static frontend",
			zap.String("mount", staticMountPath),
			zap.String("dir", opts.StaticDir))
	}

	return cors(h.logRequests(mux))
}

// cors allows any origin, method and header.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
			header.Set("Access-Control-Allow-Headers", reqHeaders)
		} else {
			header.Set("Access-Control-Allow-Headers", "*")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

const requestIDHeader = "X-Request-ID"

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.logger.Info("request",
			zap.String("requestID", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

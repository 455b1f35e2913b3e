package middleware

import (
	"log"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// responseWriter captures HTTP status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs method, path, status and duration of every request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		if reqID := chimiddleware.GetReqID(r.Context()); reqID != "" {
			log.Printf("[HTTP] %s %s %d %s from %s (%s)", r.Method, r.URL.Path, rw.statusCode, duration, r.RemoteAddr, reqID)
			return
		}
		log.Printf("[HTTP] %s %s %d %s from %s", r.Method, r.URL.Path, rw.statusCode, duration, r.RemoteAddr)
	})
}

// UploadGate admits one request at a time and rejects the rest with 409 Conflict.
type UploadGate struct {
	slot chan struct{}
}

// NewUploadGate returns an open gate.
func NewUploadGate() *UploadGate {
	return &UploadGate{slot: make(chan struct{}, 1)}
}

// Wrap guards next with the gate.
func (g *UploadGate) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case g.slot <- struct{}{}:
		default:
			http.Error(w, "another file is being loaded", http.StatusConflict)
			return
		}
		defer func() { <-g.slot }()
		next.ServeHTTP(w, r)
	})
}

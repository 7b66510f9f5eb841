// Package middleware contains HTTP middlewares of the gateway.
package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const maxLoggedBody = 4 << 10

// LogMiddleware logs one line per request. Bearer tokens are never logged.
func LogMiddleware(logger *zap.SugaredLogger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Only the head of the body is buffered; the rest streams to next.
			head, err := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody+1))
			if err != nil {
				logger.Errorf("failed to read request body: %v", err)
			}
			r.Body = replayBody{Reader: io.MultiReader(bytes.NewReader(head), r.Body), Closer: r.Body}

			loggerBody := "<skipped>"
			if len(head) > 0 && len(head) <= maxLoggedBody && isProbablyText(head) {
				loggerBody = string(head)
			}

			lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(lrw, r)

			logger.Infow("request",
				"request_id", chiMiddleware.GetReqID(r.Context()),
				"method", r.Method,
				"uri", r.RequestURI,
				"status", lrw.statusCode,
				"size", lrw.size,
				"duration", time.Since(start),
				"auth", authScheme(r.Header.Get("Authorization")),
				"body", loggerBody,
			)
		})
	}
}

type replayBody struct {
	io.Reader
	io.Closer
}

func authScheme(h string) string {
	if h == "" {
		return "none"
	}
	for i, c := range h {
		if c == ' ' {
			return h[:i] + " <redacted>"
		}
	}
	return "<redacted>"
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

func isProbablyText(b []byte) bool {
	for _, c := range b {
		if c == 0 || c > 127 {
			return false
		}
	}
	return true
}

// Package middleware provides the HTTP middleware chain for the web
// role.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/taqastore/storefront/internal/httputil"
	"github.com/taqastore/storefront/pkg/logger"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Recovery converts handler panics into 500 responses so one bad
// request cannot take the process down.
func Recovery(log *logger.Logger) mux.MiddlewareFunc {
	if log == nil {
		log = logger.NewDefault("http")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				if rec := recover(); rec != nil {
					log.WithField("panic", fmt.Sprintf("%v", rec)).
						WithField("path", r.URL.Path).
						Error("request handler panicked")
					if !wrapped.written {
						httputil.WriteError(wrapped, http.StatusInternalServerError,
							httputil.CodeServerError,
							"internal server error",
							"Retry the request; contact support if the problem persists")
					}
				}
			}()
			next.ServeHTTP(wrapped, r)
		})
	}
}

// RequestLogging tags each request with an ID and writes one access log
// line per request.
func RequestLogging(log *logger.Logger) mux.MiddlewareFunc {
	if log == nil {
		log = logger.NewDefault("http")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			log.WithFields(map[string]interface{}{
				"request_id": requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     wrapped.statusCode,
			}).Infof("%s - %s - %s - %d completed after %.3fs",
				r.RemoteAddr, r.Method, r.URL.Path, wrapped.statusCode, duration.Seconds())
		})
	}
}

// RequestTimeout bounds each request's context so downstream calls give
// up together.
func RequestTimeout(timeout time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if timeout <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InFlightLimit bounds how many requests are served at once. Requests
// beyond the bound wait until a slot frees or their context expires,
// then get a 503.
func InFlightLimit(max int) mux.MiddlewareFunc {
	if max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	slots := make(chan struct{}, max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case slots <- struct{}{}:
				defer func() { <-slots }()
				next.ServeHTTP(w, r)
			case <-r.Context().Done():
				httputil.WriteError(w, http.StatusServiceUnavailable,
					httputil.CodeServiceUnavailable,
					"server is at capacity",
					"Retry after a short backoff")
			}
		})
	}
}

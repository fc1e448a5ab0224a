package api

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/poyrazK/authbroker/internal/core/ports"
)

type contextKey string

const (
	CtxAuthID    contextKey = "auth_id"
	CtxRequestID contextKey = "request_id"
)

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-ID"

// AuthIDFromContext returns the identifier accepted by RequireAuthID.
func AuthIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(CtxAuthID).(string)
	return id, ok && id != ""
}

// RequestIDFromContext returns the id assigned by RequestLogger.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(CtxRequestID).(string)
	return id
}

// RequireAuthID admits requests whose header carries an active auth id. Unknown or
// disabled ids get 401; a storage outage gets 503 so callers can tell the two apart.
func RequireAuthID(svc ports.AuthIDService, header string, logger *slog.Logger) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultAuthHeader
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(header))
			if id == "" {
				writeJSON(w, logger, http.StatusUnauthorized, map[string]string{"error": "missing " + header + " header"})
				return
			}

			valid, err := svc.Verify(r.Context(), id)
			if err != nil {
				logger.Warn("auth id check failed", "request_id", RequestIDFromContext(r.Context()), "error", err)
				writeJSON(w, logger, statusFor(err), map[string]string{"error": "storage unavailable"})
				return
			}
			if !valid {
				writeJSON(w, logger, http.StatusUnauthorized, map[string]string{"error": "invalid or inactive auth id"})
				return
			}

			ctx := context.WithValue(r.Context(), CtxAuthID, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CORS applies an origin allow-list. "*" admits any origin. Credentials are never
// allowed; methods and headers requested by a preflight are echoed back.
func CORS(origins []string) func(http.Handler) http.Handler {
	wildcard := slices.Contains(origins, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed := wildcard || slices.Contains(origins, origin)
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			h := w.Header()
			if !wildcard {
				h.Add("Vary", "Origin")
			}
			if !allowed {
				if preflight {
					http.Error(w, "Disallowed CORS origin", http.StatusBadRequest)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if wildcard {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}

			if preflight {
				h.Set("Access-Control-Allow-Methods", "DELETE, GET, HEAD, OPTIONS, PATCH, POST, PUT")
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				}
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RequestLogger tags each request with an id and logs its outcome. An incoming
// X-Request-ID is kept so ids survive proxy hops.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, reqID)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			ctx := context.WithValue(r.Context(), CtxRequestID, reqID)
			next.ServeHTTP(rec, r.WithContext(ctx))

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

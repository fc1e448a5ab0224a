package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/poyrazK/authbroker/internal/core/domain"
	"github.com/poyrazK/authbroker/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultAuthHeader carries the identifier on forward-auth checks.
const DefaultAuthHeader = "X-Auth-ID"

// maxBodyBytes caps request bodies; payloads are two short tags at most.
const maxBodyBytes = 16 << 10

// APIHandler serves the auth id management and verification API.
type APIHandler struct {
	svc        ports.AuthIDService
	logger     *slog.Logger
	authHeader string
}

// NewAPIHandler creates and returns a new APIHandler instance. An empty authHeader
// falls back to DefaultAuthHeader.
func NewAPIHandler(svc ports.AuthIDService, logger *slog.Logger, authHeader string) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if authHeader == "" {
		authHeader = DefaultAuthHeader
	}
	return &APIHandler{svc: svc, logger: logger, authHeader: authHeader}
}

type issueRequest struct {
	CustomerID *string `json:"customer_id"`
	Label      *string `json:"label"`
}

type verifyRequest struct {
	AuthID string `json:"auth_id"`
}

type verifyResponse struct {
	IsValid bool `json:"is_valid"`
}

// RegisterRoutes registers the API routes with the provided ServeMux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Liveness)
	mux.HandleFunc("GET /readyz", h.Readiness)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /auth-ids", h.Issue)
	mux.HandleFunc("GET /auth-ids", h.List)
	mux.HandleFunc("GET /auth-ids/{id}", h.Get)
	mux.HandleFunc("HEAD /auth-ids/{id}", h.Exists)
	mux.HandleFunc("POST /auth-ids/{id}/enable", h.Enable)
	mux.HandleFunc("POST /auth-ids/{id}/disable", h.Disable)
	mux.HandleFunc("POST /auth-ids/verify", h.Verify)

	mux.Handle("GET /verify", RequireAuthID(h.svc, h.authHeader, h.logger)(http.HandlerFunc(h.ForwardAuth)))
}

// Liveness reports that the process is serving requests.
func (h *APIHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Readiness runs the service health checks and reports each dependency.
func (h *APIHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	details := make(map[string]string)
	for name, checkErr := range h.svc.HealthCheck(r.Context()) {
		if checkErr != nil {
			status = "DEGRADED"
			details[name] = checkErr.Error()
		} else {
			details[name] = "OK"
		}
	}

	code := http.StatusOK
	if status == "DEGRADED" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, map[string]any{"status": status, "details": details})
}

func (h *APIHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	rec, err := h.svc.Issue(r.Context(), req.CustomerID, req.Label)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rec)
}

func (h *APIHandler) List(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.AuthID{}
	}
	h.writeJSON(w, http.StatusOK, recs)
}

func (h *APIHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// Exists answers HEAD probes without a body.
func (h *APIHandler) Exists(w http.ResponseWriter, r *http.Request) {
	ok, err := h.svc.Exists(r.Context(), r.PathValue("id"))
	switch {
	case err != nil:
		w.WriteHeader(statusFor(err))
	case ok:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *APIHandler) Enable(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Enable(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *APIHandler) Disable(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Disable(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *APIHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.AuthID) == "" {
		h.writeError(w, fmt.Errorf("%w: auth_id is required", domain.ErrInvalidArgument))
		return
	}

	valid, err := h.svc.Verify(r.Context(), req.AuthID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, verifyResponse{IsValid: valid})
}

// ForwardAuth answers reverse-proxy auth subrequests. RequireAuthID has already
// rejected callers without a valid identifier.
func (h *APIHandler) ForwardAuth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, verifyResponse{IsValid: true})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errors.Join(domain.ErrInvalidArgument, err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	msg := err.Error()
	switch code {
	case http.StatusServiceUnavailable:
		h.logger.Warn("storage unavailable", "error", err)
		msg = "storage unavailable"
	case http.StatusInternalServerError:
		h.logger.Error("request failed", "error", err)
		if errors.Is(err, domain.ErrExhaustedRetries) {
			msg = "could not allocate a unique auth id"
		} else {
			msg = "internal server error"
		}
	}
	h.writeJSON(w, code, map[string]string{"error": msg})
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, code int, v any) {
	writeJSON(w, h.logger, code, v)
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

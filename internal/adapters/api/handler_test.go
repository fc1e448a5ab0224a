package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/poyrazK/authbroker/internal/core/domain"
	"github.com/poyrazK/authbroker/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMux(svc *testutil.MockService) *http.ServeMux {
	mux := http.NewServeMux()
	NewAPIHandler(svc, quietLogger(), "").RegisterRoutes(mux)
	return mux
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func sampleAuthID(id string, active bool) *domain.AuthID {
	return &domain.AuthID{
		ID:         id,
		CustomerID: strPtr("customer-123"),
		Label:      strPtr("bubble-client"),
		IsActive:   active,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestIssue(t *testing.T) {
	svc := new(testutil.MockService)
	svc.On("Issue", strPtr("customer-123"), strPtr("bubble-client")).Return(sampleAuthID("abc", true), nil).Once()

	rr := do(t, newTestMux(svc), http.MethodPost, "/auth-ids", `{"customer_id":"customer-123","label":"bubble-client"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "abc", body["auth_id"])
	assert.Equal(t, "customer-123", body["customer_id"])
	assert.Equal(t, true, body["is_active"])
	svc.AssertExpectations(t)
}

func TestIssue_EmptyBody(t *testing.T) {
	svc := new(testutil.MockService)
	svc.On("Issue", (*string)(nil), (*string)(nil)).Return(&domain.AuthID{ID: "abc", IsActive: true}, nil).Once()

	rr := do(t, newTestMux(svc), http.MethodPost, "/auth-ids", "")
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"customer_id":null`)
}

func TestIssue_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
	}{
		{"malformed json", `{"label":`, nil, http.StatusBadRequest},
		{"unknown field", `{"tenant":"x"}`, nil, http.StatusBadRequest},
		{"invalid tag", `{"label":"x"}`, fmt.Errorf("%w: label too long", domain.ErrInvalidArgument), http.StatusBadRequest},
		{"unavailable", `{}`, fmt.Errorf("create: %w: %w", domain.ErrUnavailable, errors.New("dial tcp")), http.StatusServiceUnavailable},
		{"exhausted", `{}`, domain.ErrExhaustedRetries, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(testutil.MockService)
			if tt.err != nil {
				svc.On("Issue", mock.Anything, mock.Anything).Return(nil, tt.err).Once()
			}
			rr := do(t, newTestMux(svc), http.MethodPost, "/auth-ids", tt.body)
			assert.Equal(t, tt.wantCode, rr.Code)

			var body map[string]string
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
			assert.NotContains(t, body["error"], "dial tcp", "driver details must not leak")
		})
	}
}

func TestList(t *testing.T) {
	t.Run("records", func(t *testing.T) {
		svc := new(testutil.MockService)
		svc.On("List").Return([]domain.AuthID{*sampleAuthID("a", true), *sampleAuthID("b", false)}, nil).Once()

		rr := do(t, newTestMux(svc), http.MethodGet, "/auth-ids", "")
		require.Equal(t, http.StatusOK, rr.Code)

		var body []domain.AuthID
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		require.Len(t, body, 2)
		assert.Equal(t, "a", body[0].ID)
		assert.False(t, body[1].IsActive)
	})

	t.Run("empty store renders an array", func(t *testing.T) {
		svc := new(testutil.MockService)
		svc.On("List").Return(nil, nil).Once()

		rr := do(t, newTestMux(svc), http.MethodGet, "/auth-ids", "")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})
}

func TestGet(t *testing.T) {
	svc := new(testutil.MockService)
	svc.On("Get", "abc").Return(sampleAuthID("abc", true), nil).Once()
	svc.On("Get", "missing").Return(nil, domain.ErrNotFound).Once()
	mux := newTestMux(svc)

	rr := do(t, mux, http.MethodGet, "/auth-ids/abc", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"auth_id":"abc"`)

	rr = do(t, mux, http.MethodGet, "/auth-ids/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"auth id not found"}`, rr.Body.String())
}

func TestExists(t *testing.T) {
	svc := new(testutil.MockService)
	svc.On("Exists", "abc").Return(true, nil).Once()
	svc.On("Exists", "missing").Return(false, nil).Once()
	svc.On("Exists", "down").Return(false, domain.ErrUnavailable).Once()
	mux := newTestMux(svc)

	assert.Equal(t, http.StatusOK, do(t, mux, http.MethodHead, "/auth-ids/abc", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, mux, http.MethodHead, "/auth-ids/missing", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, mux, http.MethodHead, "/auth-ids/down", "").Code)
	svc.AssertNotCalled(t, "Get", mock.Anything)
}

func TestEnableDisable(t *testing.T) {
	svc := new(testutil.MockService)
	svc.On("Disable", "abc").Return(sampleAuthID("abc", false), nil).Once()
	svc.On("Enable", "abc").Return(sampleAuthID("abc", true), nil).Once()
	svc.On("Enable", "missing").Return(nil, domain.ErrNotFound).Once()
	mux := newTestMux(svc)

	rr := do(t, mux, http.MethodPost, "/auth-ids/abc/disable", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"is_active":false`)

	rr = do(t, mux, http.MethodPost, "/auth-ids/abc/enable", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"is_active":true`)

	rr = do(t, mux, http.MethodPost, "/auth-ids/missing/enable", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	svc.AssertExpectations(t)
}

func TestVerify(t *testing.T) {
	svc := new(testutil.MockService)
	svc.On("Verify", "abc").Return(true, nil).Once()
	svc.On("Verify", "gone").Return(false, nil).Once()
	svc.On("Verify", "down").Return(false, domain.ErrUnavailable).Once()
	mux := newTestMux(svc)

	rr := do(t, mux, http.MethodPost, "/auth-ids/verify", `{"auth_id":"abc"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"is_valid":true}`, rr.Body.String())

	rr = do(t, mux, http.MethodPost, "/auth-ids/verify", `{"auth_id":"gone"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"is_valid":false}`, rr.Body.String())

	rr = do(t, mux, http.MethodPost, "/auth-ids/verify", `{"auth_id":"down"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = do(t, mux, http.MethodPost, "/auth-ids/verify", `{"auth_id":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertExpectations(t)
}

func TestForwardAuth(t *testing.T) {
	svc := new(testutil.MockService)
	svc.On("Verify", "abc").Return(true, nil).Once()
	svc.On("Verify", "off").Return(false, nil).Once()
	mux := newTestMux(svc)

	rr := do(t, mux, http.MethodGet, "/verify", "", "X-Auth-ID", "abc")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, mux, http.MethodGet, "/verify", "", "X-Auth-ID", "off")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, mux, http.MethodGet, "/verify", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHealthEndpoints(t *testing.T) {
	svc := new(testutil.MockService)
	svc.On("HealthCheck").Return(map[string]error{"storage": nil, "cache": nil}).Once()
	svc.On("HealthCheck").Return(map[string]error{"storage": errors.New("connection refused")}).Once()
	mux := newTestMux(svc)

	rr := do(t, mux, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())

	rr = do(t, mux, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"UP"`)

	rr = do(t, mux, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	rr := do(t, newTestMux(new(testutil.MockService)), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, bytes.Contains(rr.Body.Bytes(), []byte("go_goroutines")))
}

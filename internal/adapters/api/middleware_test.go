package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/poyrazK/authbroker/internal/core/domain"
	"github.com/poyrazK/authbroker/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAuthID(t *testing.T) {
	svc := new(testutil.MockService)
	var logs bytes.Buffer
	handler := RequireAuthID(svc, "X-Client-ID", slog.New(slog.NewJSONHandler(&logs, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := AuthIDFromContext(r.Context())
		w.Header().Set("X-Seen", id)
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing header", func(t *testing.T) {
		rr := do(t, handler, http.MethodGet, "/", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		svc.AssertNotCalled(t, "Verify", "")
	})

	t.Run("inactive id", func(t *testing.T) {
		svc.On("Verify", "disabled").Return(false, nil).Once()
		rr := do(t, handler, http.MethodGet, "/", "", "X-Client-ID", "disabled")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("storage outage", func(t *testing.T) {
		svc.On("Verify", "any").Return(false, domain.ErrUnavailable).Once()
		rr := do(t, handler, http.MethodGet, "/", "", "X-Client-ID", "any")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, logs.String(), "auth id check failed")
		assert.Contains(t, logs.String(), domain.ErrUnavailable.Error())
	})

	t.Run("active id", func(t *testing.T) {
		svc.On("Verify", "good").Return(true, nil).Once()
		rr := do(t, handler, http.MethodGet, "/", "", "X-Client-ID", " good ")
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "good", rr.Header().Get("X-Seen"))
	})

	svc.AssertExpectations(t)
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("allowed origin", func(t *testing.T) {
		h := CORS([]string{"https://app.example"})(next)
		rr := do(t, h, http.MethodGet, "/auth-ids", "", "Origin", "https://app.example")
		assert.Equal(t, "https://app.example", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("disallowed origin", func(t *testing.T) {
		h := CORS([]string{"https://app.example"})(next)
		rr := do(t, h, http.MethodGet, "/auth-ids", "", "Origin", "https://evil.example")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		h := CORS([]string{"https://app.example"})(next)
		rr := do(t, h, http.MethodOptions, "/auth-ids", "",
			"Origin", "https://app.example",
			"Access-Control-Request-Method", "POST",
			"Access-Control-Request-Headers", "content-type,x-auth-id")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "POST")
		assert.Equal(t, "content-type,x-auth-id", rr.Header().Get("Access-Control-Allow-Headers"))
	})

	t.Run("preflight from disallowed origin", func(t *testing.T) {
		h := CORS([]string{"https://app.example"})(next)
		rr := do(t, h, http.MethodOptions, "/auth-ids", "",
			"Origin", "https://evil.example",
			"Access-Control-Request-Method", "POST")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("wildcard", func(t *testing.T) {
		h := CORS([]string{"*"})(next)
		rr := do(t, h, http.MethodGet, "/", "", "Origin", "https://anything.example")
		assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("empty list admits nobody", func(t *testing.T) {
		h := CORS(nil)(next)
		rr := do(t, h, http.MethodGet, "/", "", "Origin", "https://app.example")
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var seen string
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := do(t, h, http.MethodGet, "/auth-ids/abc", "")
	reqID := rr.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(reqID)
	require.NoError(t, err)
	assert.Equal(t, reqID, seen)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http request", entry["msg"])
	assert.Equal(t, reqID, entry["request_id"])
	assert.Equal(t, "/auth-ids/abc", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])

	rr = do(t, h, http.MethodGet, "/", "", RequestIDHeader, "upstream-id")
	assert.Equal(t, "upstream-id", rr.Header().Get(RequestIDHeader))
}

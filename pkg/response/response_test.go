package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnvelope(t *testing.T) {
	Now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.FixedZone("EST", -5*3600)) }
	t.Cleanup(func() { Now = time.Now })

	w := httptest.NewRecorder()
	Cached(w, []string{}, false)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.JSONEq(t, `{"success":true,"data":[],"cached":false,"timestamp":"2025-03-10T14:00:00Z"}`, w.Body.String())

	w = httptest.NewRecorder()
	Fail(w, http.StatusBadRequest, "search query 'q' is required")
	var env map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, false, env["success"])
	require.Equal(t, "search query 'q' is required", env["message"])
	require.NotContains(t, env, "data")
	require.NotContains(t, env, "cached")
}

package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		data     any
		expected string
	}{
		{
			name:     "map body",
			status:   http.StatusOK,
			data:     map[string]string{"state": "ready"},
			expected: `{"state":"ready"}`,
		},
		{
			name:     "slice body",
			status:   http.StatusOK,
			data:     []int{1, 2, 3},
			expected: `[1,2,3]`,
		},
		{
			name:     "accepted with struct",
			status:   http.StatusAccepted,
			data:     struct{ Queued bool }{true},
			expected: `{"Queued":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.status, tt.data)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.expected, w.Body.String())
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusConflict, "simulation already running")

	assert.Equal(t, http.StatusConflict, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "simulation already running", body.Error)
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		EventType string `json:"event_type"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr string
		want    string
	}{
		{name: "valid", body: `{"event_type":"scan_port"}`, want: "scan_port"},
		{name: "empty", body: ``, wantErr: "request body is empty"},
		{name: "unknown field", body: `{"event_type":"x","extra":1}`, wantErr: "invalid JSON body"},
		{name: "malformed", body: `{"event_type":`, wantErr: "invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := DecodeJSON(req, &p)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.EventType)
		})
	}
}

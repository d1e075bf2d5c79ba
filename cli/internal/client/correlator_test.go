package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCorrelatorClient(t *testing.T) {
	client := NewCorrelatorClient("http://localhost:8090")

	assert.Equal(t, "http://localhost:8090", client.baseURL)
	require.NotNil(t, client.client)
	assert.Equal(t, 30*time.Second, client.client.Timeout)
}

func TestListThreats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/threats", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "active", r.URL.Query().Get("status"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ThreatsResponse{
			State: "ready",
			Threats: []Threat{{
				ID:               "t-1",
				PrimaryEvent:     PrimaryEvent{Origin: "198.51.100.23", Severity: "critical"},
				CorrelationScore: 100,
				Pattern:          "Credential Stuffing Campaign",
				Status:           "active",
			}},
		})
	}))
	defer server.Close()

	resp, err := NewCorrelatorClient(server.URL).ListThreats("active")
	require.NoError(t, err)
	assert.Equal(t, "ready", resp.State)
	require.Len(t, resp.Threats, 1)
	assert.Equal(t, "198.51.100.23", resp.Threats[0].PrimaryEvent.Origin)
}

func TestListThreats_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unknown status \"bogus\""}`))
	}))
	defer server.Close()

	_, err := NewCorrelatorClient(server.URL).ListThreats("bogus")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, `unknown status "bogus"`, apiErr.Message)
}

func TestPatternsAndSummary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/patterns":
			w.Write([]byte(`{"state":"ready","patterns":[{"name":"scan_port","occurrence_count":7,"dominant_severity":"low","trend":"increasing"}]}`))
		case "/api/v1/summary":
			w.Write([]byte(`{"total_correlations":2,"average_correlation_score":73,"threats_by_status":{"active":1},"blocked_count":4,"threat_level":35,"simulation_running":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewCorrelatorClient(server.URL)

	patterns, err := client.ListPatterns()
	require.NoError(t, err)
	require.Len(t, patterns.Patterns, 1)
	assert.Equal(t, "increasing", patterns.Patterns[0].Trend)

	summary, err := client.Summary()
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalCorrelations)
	assert.Equal(t, 73, summary.AverageCorrelationScore)
	assert.Equal(t, 1, summary.ThreatsByStatus["active"])
	assert.Equal(t, int64(4), summary.BlockedCount)
	assert.True(t, summary.SimulationRunning)
}

func TestRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/correlation/refresh", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"queued":true}`))
	}))
	defer server.Close()

	queued, err := NewCorrelatorClient(server.URL).Refresh()
	require.NoError(t, err)
	assert.True(t, queued)
}

func TestSimulation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		switch r.URL.Path {
		case "/api/v1/simulation/start":
			w.Write([]byte(`{"action":"start","running":true}`))
		case "/api/v1/simulation/stop":
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"simulation not running"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewCorrelatorClient(server.URL)

	resp, err := client.Simulation("start")
	require.NoError(t, err)
	assert.True(t, resp.Running)

	_, err = client.Simulation("stop")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "simulation not running")

	_, err = client.Simulation("pause")
	assert.Error(t, err)
}

func TestAttacksAndDefense(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/attacks":
			w.Write([]byte(`{"running":true,"attacks":[{"id":"a-1","attack_type":"SQL Injection","status":"incoming","progress":42.5}]}`))
		case "/api/v1/defense":
			w.Write([]byte(`{"blocked_count":3,"mitigated_count":1,"threat_level":40,"active_node_count":12,"uptime_fraction":0.9997}`))
		}
	}))
	defer server.Close()

	client := NewCorrelatorClient(server.URL)

	attacks, err := client.ListAttacks()
	require.NoError(t, err)
	require.Len(t, attacks.Attacks, 1)
	assert.Equal(t, 42.5, attacks.Attacks[0].Progress)

	defense, err := client.Defense()
	require.NoError(t, err)
	assert.Equal(t, 12, defense.ActiveNodeCount)
	assert.Equal(t, 0.9997, defense.UptimeFraction)
}

func TestIngestEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/events", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Events []SecurityEvent `json:"events"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Events, 2)
		assert.Equal(t, "brute_force_login", body.Events[0].EventType)

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"accepted":1,"duplicates":1}`))
	}))
	defer server.Close()

	now := time.Now().UTC()
	resp, err := NewCorrelatorClient(server.URL).IngestEvents([]SecurityEvent{
		{ID: "evt-1", EventType: "brute_force_login", Severity: "high", SourceOrigin: "198.51.100.23", DetectedAt: now},
		{ID: "evt-2", EventType: "brute_force_login", Severity: "high", SourceOrigin: "198.51.100.23", DetectedAt: now},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, 1, resp.Duplicates)
}

func TestIngestEvents_ValidationErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"accepted":0,"duplicates":0,"errors":["events[0]: invalid security event: id is required"]}`))
	}))
	defer server.Close()

	_, err := NewCorrelatorClient(server.URL).IngestEvents([]SecurityEvent{{EventType: "scan"}})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "1 invalid events", apiErr.Message)
	assert.Equal(t, []string{"events[0]: invalid security event: id is required"}, apiErr.Details)
}

func TestServerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	_, err := NewCorrelatorClient(server.URL).Summary()
	assert.Error(t, err)
}

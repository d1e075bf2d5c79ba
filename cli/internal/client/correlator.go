// Package client talks to the correlator HTTP API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type CorrelatorClient struct {
	baseURL string
	client  *http.Client
}

// SecurityEvent is the intake shape of one event.
type SecurityEvent struct {
	ID           string    `json:"id"`
	EventType    string    `json:"event_type"`
	Severity     string    `json:"severity"`
	SourceOrigin string    `json:"source_origin,omitempty"`
	DetectedAt   time.Time `json:"detected_at"`
}

type PrimaryEvent struct {
	Origin     string    `json:"origin"`
	EventType  string    `json:"event_type"`
	Severity   string    `json:"severity"`
	DetectedAt time.Time `json:"detected_at"`
}

type Threat struct {
	ID                string       `json:"id"`
	PrimaryEvent      PrimaryEvent `json:"primary_event"`
	RelatedEventCount int          `json:"related_event_count"`
	CorrelationScore  int          `json:"correlation_score"`
	Pattern           string       `json:"pattern"`
	Indicators        []string     `json:"indicators"`
	Status            string       `json:"status"`
}

type Pattern struct {
	Name             string `json:"name"`
	OccurrenceCount  int    `json:"occurrence_count"`
	DominantSeverity string `json:"dominant_severity"`
	Trend            string `json:"trend"`
}

type ThreatsResponse struct {
	State       string     `json:"state"`
	Message     string     `json:"message,omitempty"`
	Threats     []Threat   `json:"threats"`
	RefreshedAt *time.Time `json:"refreshed_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

type PatternsResponse struct {
	State       string     `json:"state"`
	Message     string     `json:"message,omitempty"`
	Patterns    []Pattern  `json:"patterns"`
	RefreshedAt *time.Time `json:"refreshed_at,omitempty"`
}

type Attack struct {
	ID            string     `json:"id"`
	AttackType    string     `json:"attack_type"`
	SourceAddress string     `json:"source_address"`
	TargetLabel   string     `json:"target_label"`
	Severity      string     `json:"severity"`
	Status        string     `json:"status"`
	Progress      float64    `json:"progress"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

type AttacksResponse struct {
	Running bool     `json:"running"`
	Attacks []Attack `json:"attacks"`
}

type DefenseMetrics struct {
	BlockedCount    int64   `json:"blocked_count"`
	MitigatedCount  int64   `json:"mitigated_count"`
	ThreatLevel     float64 `json:"threat_level"`
	ActiveNodeCount int     `json:"active_node_count"`
	UptimeFraction  float64 `json:"uptime_fraction"`
}

type Summary struct {
	TotalCorrelations       int            `json:"total_correlations"`
	ActivePatternCount      int            `json:"active_pattern_count"`
	AverageCorrelationScore int            `json:"average_correlation_score"`
	EventsProcessedCount    int            `json:"events_processed_count"`
	ThreatsByStatus         map[string]int `json:"threats_by_status"`
	RecentDetectionCount    int            `json:"recent_detection_count"`
	CorrelationState        string         `json:"correlation_state"`
	CorrelationMessage      string         `json:"correlation_message,omitempty"`
	LastRefreshedAt         *time.Time     `json:"last_refreshed_at,omitempty"`

	DefenseMetrics
	LiveAttackCount   int  `json:"live_attack_count"`
	SimulationRunning bool `json:"simulation_running"`
}

type SimulationResponse struct {
	Action  string `json:"action"`
	Running bool   `json:"running"`
}

type IngestResponse struct {
	Accepted   int      `json:"accepted"`
	Duplicates int      `json:"duplicates"`
	Errors     []string `json:"errors,omitempty"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
	Details    []string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("correlator returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("correlator returned status %d: %s", e.StatusCode, e.Message)
}

func NewCorrelatorClient(baseURL string) *CorrelatorClient {
	return &CorrelatorClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *CorrelatorClient) doRequest(method, path string, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(bodyBytes)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	bodyBytes, _ := io.ReadAll(resp.Body)

	var body struct {
		Error  string   `json:"error"`
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(bodyBytes, &body); err == nil {
		apiErr.Message = body.Error
		apiErr.Details = body.Errors
	} else {
		apiErr.Message = string(bytes.TrimSpace(bodyBytes))
	}
	if apiErr.Message == "" && len(apiErr.Details) > 0 {
		apiErr.Message = fmt.Sprintf("%d invalid events", len(apiErr.Details))
	}
	return apiErr
}

// ListThreats fetches correlated threats, optionally filtered by status.
func (c *CorrelatorClient) ListThreats(status string) (*ThreatsResponse, error) {
	path := "/api/v1/threats"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out ThreatsResponse
	if err := c.doRequest(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CorrelatorClient) ListPatterns() (*PatternsResponse, error) {
	var out PatternsResponse
	if err := c.doRequest(http.MethodGet, "/api/v1/patterns", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CorrelatorClient) Summary() (*Summary, error) {
	var out Summary
	if err := c.doRequest(http.MethodGet, "/api/v1/summary", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh requests a correlation pass. queued is false when one was
// already pending.
func (c *CorrelatorClient) Refresh() (queued bool, err error) {
	var out struct {
		Queued bool `json:"queued"`
	}
	if err := c.doRequest(http.MethodPost, "/api/v1/correlation/refresh", nil, &out); err != nil {
		return false, err
	}
	return out.Queued, nil
}

func (c *CorrelatorClient) ListAttacks() (*AttacksResponse, error) {
	var out AttacksResponse
	if err := c.doRequest(http.MethodGet, "/api/v1/attacks", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CorrelatorClient) Defense() (*DefenseMetrics, error) {
	var out DefenseMetrics
	if err := c.doRequest(http.MethodGet, "/api/v1/defense", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Simulation sends a start, stop or reset action.
func (c *CorrelatorClient) Simulation(action string) (*SimulationResponse, error) {
	switch action {
	case "start", "stop", "reset":
	default:
		return nil, fmt.Errorf("unknown simulation action %q", action)
	}
	var out SimulationResponse
	if err := c.doRequest(http.MethodPost, "/api/v1/simulation/"+action, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IngestEvents posts one intake batch.
func (c *CorrelatorClient) IngestEvents(events []SecurityEvent) (*IngestResponse, error) {
	var out IngestResponse
	body := map[string]interface{}{"events": events}
	if err := c.doRequest(http.MethodPost, "/api/v1/events", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

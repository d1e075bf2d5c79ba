// Package storage provides the OpenSearch-backed event store for the correlator.
package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/telhawk-systems/threatlens/correlator/internal/config"
	"github.com/telhawk-systems/threatlens/correlator/internal/models"
)

// OpenSearchStore reads and writes security events and detections in OpenSearch.
type OpenSearchStore struct {
	client         *opensearch.Client
	eventIndex     string
	detectionIndex string
	refresh        string
}

// NewOpenSearchStore creates a new OpenSearch store and verifies the cluster is reachable.
func NewOpenSearchStore(cfg config.OpenSearchConfig) (*OpenSearchStore, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Insecure,
			},
		},
	}

	osCfg := opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer info.Body.Close()

	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	refresh := "false"
	if cfg.RefreshOnInsert {
		refresh = "wait_for"
	}

	return &OpenSearchStore{
		client:         client,
		eventIndex:     cfg.EventIndex,
		detectionIndex: cfg.DetectionIndex,
		refresh:        refresh,
	}, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// search runs a newest-first match_all query and returns the raw documents.
// A missing index yields no documents.
func (s *OpenSearchStore) search(ctx context.Context, index string, limit int) (*searchResponse, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{"match_all": map[string]interface{}{}},
		"size":  limit,
		"sort": []map[string]interface{}{
			{"detected_at": map[string]string{"order": "desc", "unmapped_type": "date"}},
		},
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search body: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(index),
		s.client.Search.WithBody(bytes.NewReader(bodyBytes)),
		s.client.Search.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("opensearch error: %s - %s", res.Status(), string(body))
	}

	var result searchResponse
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &result, nil
}

// FetchRecentEvents returns up to limit events, newest first. Documents that
// cannot be decoded are skipped; the correlator counts field-level problems itself.
func (s *OpenSearchStore) FetchRecentEvents(ctx context.Context, limit int) ([]models.SecurityEvent, error) {
	result, err := s.search(ctx, s.eventIndex, limit)
	if err != nil {
		return nil, err
	}

	events := make([]models.SecurityEvent, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		var e models.SecurityEvent
		if err := json.Unmarshal(hit.Source, &e); err != nil {
			continue
		}
		if e.ID == "" {
			e.ID = hit.ID
		}
		events = append(events, e)
	}
	return events, nil
}

// FetchRecentDetections returns up to limit detections, newest first.
func (s *OpenSearchStore) FetchRecentDetections(ctx context.Context, limit int) ([]models.Detection, error) {
	result, err := s.search(ctx, s.detectionIndex, limit)
	if err != nil {
		return nil, err
	}

	detections := make([]models.Detection, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		var d models.Detection
		if err := json.Unmarshal(hit.Source, &d); err != nil {
			continue
		}
		if d.ID == "" {
			d.ID = hit.ID
		}
		detections = append(detections, d)
	}
	return detections, nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// InsertEvents bulk-creates events keyed by event ID. Existing IDs are
// reported by OpenSearch as conflicts and are not counted.
func (s *OpenSearchStore) InsertEvents(ctx context.Context, events []models.SecurityEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		meta := map[string]interface{}{
			"create": map[string]string{"_index": s.eventIndex, "_id": e.ID},
		}
		if err := enc.Encode(meta); err != nil {
			return 0, fmt.Errorf("failed to encode bulk action: %w", err)
		}
		if err := enc.Encode(e); err != nil {
			return 0, fmt.Errorf("failed to encode event %s: %w", e.ID, err)
		}
	}

	res, err := s.client.Bulk(
		&buf,
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithRefresh(s.refresh),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk index events: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("opensearch bulk error: %s - %s", res.Status(), string(body))
	}

	var result bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode bulk response: %w", err)
	}

	inserted := 0
	for _, item := range result.Items {
		for _, op := range item {
			switch {
			case op.Status >= 200 && op.Status < 300:
				inserted++
			case op.Status == http.StatusConflict:
			default:
				reason := ""
				if op.Error != nil {
					reason = op.Error.Reason
				}
				return inserted, fmt.Errorf("failed to index event: status %d: %s", op.Status, reason)
			}
		}
	}
	return inserted, nil
}

// InsertDetection indexes a detection document.
func (s *OpenSearchStore) InsertDetection(ctx context.Context, d *models.Detection) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.DetectedAt.IsZero() {
		d.DetectedAt = time.Now().UTC()
	}

	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal detection: %w", err)
	}

	res, err := s.client.Index(
		s.detectionIndex,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(d.ID),
		s.client.Index.WithRefresh(s.refresh),
	)
	if err != nil {
		return fmt.Errorf("failed to index detection: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.Status())
	}
	return nil
}

// Ping checks the cluster is reachable.
func (s *OpenSearchStore) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch returned error: %s", res.Status())
	}
	return nil
}

// Close is a no-op; the HTTP transport has nothing to release.
func (s *OpenSearchStore) Close() {}

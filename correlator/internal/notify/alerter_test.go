package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/threatlens/common/logging"
	"github.com/telhawk-systems/threatlens/correlator/internal/metrics"
	"github.com/telhawk-systems/threatlens/correlator/internal/models"
	"github.com/telhawk-systems/threatlens/correlator/internal/refresher"
)

type mockPublisher struct {
	publishFunc func(ctx context.Context, alert models.ThreatAlert) error
	alerts      []models.ThreatAlert
}

func (m *mockPublisher) PublishThreatAlert(ctx context.Context, alert models.ThreatAlert) error {
	if m.publishFunc != nil {
		if err := m.publishFunc(ctx, alert); err != nil {
			return err
		}
	}
	m.alerts = append(m.alerts, alert)
	return nil
}

type mockRecorder struct {
	detections []models.Detection
}

func (m *mockRecorder) InsertDetection(ctx context.Context, d *models.Detection) error {
	m.detections = append(m.detections, *d)
	return nil
}

func sampleResult() *refresher.Result {
	return &refresher.Result{
		State: refresher.StateReady,
		Threats: []models.CorrelatedThreat{
			{
				ID:                "t-active",
				PrimaryEvent:      models.PrimaryEvent{Origin: "198.51.100.23", Severity: models.SeverityCritical, EventType: "brute_force_login"},
				RelatedEventCount: 4,
				CorrelationScore:  100,
				Pattern:           "Credential Stuffing Campaign",
				Indicators:        []string{"brute_force_login"},
				Status:            models.ThreatStatusActive,
			},
			{
				ID:                "t-investigating",
				PrimaryEvent:      models.PrimaryEvent{Origin: "203.0.113.7", Severity: models.SeverityLow, EventType: "scan_port"},
				RelatedEventCount: 3,
				CorrelationScore:  45,
				Pattern:           "Reconnaissance Activity",
				Status:            models.ThreatStatusInvestigating,
			},
		},
	}
}

func TestAlerter_PublishesActiveThreatsOnce(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	pub := &mockPublisher{}
	rec := &mockRecorder{}
	a := NewAlerter(pub, rec, NewStateManager(client, true), 15*time.Minute, logging.Discard())
	fixed := time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	suppressedBefore := testutil.ToFloat64(metrics.AlertsPublished.WithLabelValues("suppressed"))

	ctx := context.Background()
	a.HandleResult(ctx, sampleResult())

	require.Len(t, pub.alerts, 1, "only active threats alert")
	alert := pub.alerts[0]
	assert.Equal(t, "t-active", alert.ThreatID)
	assert.Equal(t, "198.51.100.23", alert.Origin)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, fixed, alert.RaisedAt)

	require.Len(t, rec.detections, 1)
	assert.Equal(t, "t-active", rec.detections[0].ThreatID)
	assert.Equal(t, fixed, rec.detections[0].DetectedAt)

	a.HandleResult(ctx, sampleResult())
	assert.Len(t, pub.alerts, 1, "repeat within the window is suppressed")
	assert.Len(t, rec.detections, 1)
	assert.Equal(t, suppressedBefore+1, testutil.ToFloat64(metrics.AlertsPublished.WithLabelValues("suppressed")))

	mr.FastForward(16 * time.Minute)
	a.HandleResult(ctx, sampleResult())
	assert.Len(t, pub.alerts, 2, "alerts again once the window lapses")
}

func TestAlerter_IgnoresNonReadyResults(t *testing.T) {
	pub := &mockPublisher{}
	a := NewAlerter(pub, nil, nil, time.Minute, logging.Discard())

	stale := sampleResult()
	stale.State = refresher.StateStale
	a.HandleResult(context.Background(), stale)
	a.HandleResult(context.Background(), nil)

	assert.Empty(t, pub.alerts)
}

func TestAlerter_PublishFailureDoesNotSuppress(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	fail := true
	pub := &mockPublisher{publishFunc: func(ctx context.Context, alert models.ThreatAlert) error {
		if fail {
			return errors.New("nats: connection closed")
		}
		return nil
	}}
	sm := NewStateManager(client, true)
	a := NewAlerter(pub, nil, sm, time.Hour, logging.Discard())

	ctx := context.Background()
	a.HandleResult(ctx, sampleResult())
	assert.Empty(t, pub.alerts)

	fail = false
	a.HandleResult(ctx, sampleResult())
	assert.Len(t, pub.alerts, 1)
}

func TestAlerter_RedisDownStillAlerts(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer client.Close()
	mr.Close()

	pub := &mockPublisher{}
	a := NewAlerter(pub, nil, NewStateManager(client, true), time.Hour, logging.Discard())

	a.HandleResult(context.Background(), sampleResult())
	assert.Len(t, pub.alerts, 1)
}

func TestAlerter_SuppressesInProcessWithoutRedis(t *testing.T) {
	pub := &mockPublisher{}
	rec := &mockRecorder{}
	a := NewAlerter(pub, rec, nil, 15*time.Minute, logging.Discard())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		a.HandleResult(ctx, sampleResult())
	}

	assert.Len(t, pub.alerts, 1)
	assert.Len(t, rec.detections, 1)
}

func TestAlerter_DisabledStateSuppressesInProcess(t *testing.T) {
	pub := &mockPublisher{}
	a := NewAlerter(pub, nil, NewStateManager(nil, false), time.Hour, logging.Discard())

	ctx := context.Background()
	a.HandleResult(ctx, sampleResult())
	a.HandleResult(ctx, sampleResult())

	assert.Len(t, pub.alerts, 1)
}

func TestAlerter_RedisOutageKeepsSuppression(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer client.Close()

	pub := &mockPublisher{}
	a := NewAlerter(pub, nil, NewStateManager(client, true), time.Hour, logging.Discard())

	ctx := context.Background()
	a.HandleResult(ctx, sampleResult())
	require.Len(t, pub.alerts, 1)

	mr.Close()
	a.HandleResult(ctx, sampleResult())
	assert.Len(t, pub.alerts, 1, "already alerted in this process")
}

package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/telhawk-systems/threatlens/common/messaging"
	"github.com/telhawk-systems/threatlens/correlator/internal/aggregator"
	"github.com/telhawk-systems/threatlens/correlator/internal/models"
)

// maxNotifiedIDs bounds the event IDs carried by an insert notification.
const maxNotifiedIDs = 100

// Publisher publishes correlator messages to NATS subjects.
type Publisher struct {
	client messaging.Publisher
	source string
}

// NewPublisher creates a new NATS publisher. source is sent in the X-Source header.
func NewPublisher(client messaging.Publisher, source string) *Publisher {
	return &Publisher{client: client, source: source}
}

// PublishThreatAlert publishes an active threat alert.
func (p *Publisher) PublishThreatAlert(ctx context.Context, alert models.ThreatAlert) error {
	return p.publish(ctx, messaging.SubjectCorrelatorThreatsActive, alert)
}

// PublishSummary publishes the summary computed after a correlation pass.
func (p *Publisher) PublishSummary(ctx context.Context, summary aggregator.Summary) error {
	return p.publish(ctx, messaging.SubjectCorrelatorMetricsSummary, summary)
}

// PublishSimulationState publishes a simulator start, stop or reset.
func (p *Publisher) PublishSimulationState(ctx context.Context, msg SimulationStateChanged) error {
	return p.publish(ctx, messaging.SubjectCorrelatorSimulationState, msg)
}

// PublishEventsInserted announces a committed batch so correlators refresh.
func (p *Publisher) PublishEventsInserted(ctx context.Context, msg EventsInserted) error {
	if len(msg.EventIDs) > maxNotifiedIDs {
		msg.EventIDs = msg.EventIDs[:maxNotifiedIDs]
	}
	return p.publish(ctx, messaging.SubjectEventsSecurityInserted, msg)
}

// publish marshals data to JSON and publishes it with the source and
// request ID headers.
func (p *Publisher) publish(ctx context.Context, subject string, data interface{}) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	meta := map[string]string{messaging.HeaderSource: p.source}
	if id := requestID(ctx); id != "" {
		meta[messaging.HeaderRequestID] = id
	}

	if err := p.client.PublishMsg(ctx, &messaging.Message{
		Subject:  subject,
		Data:     bytes,
		Metadata: meta,
	}); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// EventsInserted publishes an insert notification for a committed batch.
func (p *Publisher) EventsInserted(ctx context.Context, ids []string, count int) error {
	return p.PublishEventsInserted(ctx, EventsInserted{
		Count:      count,
		EventIDs:   ids,
		InsertedAt: time.Now().UTC(),
	})
}

// SimulationChanged publishes a simulator state transition.
func (p *Publisher) SimulationChanged(ctx context.Context, action string, running bool) error {
	return p.PublishSimulationState(ctx, SimulationStateChanged{
		Action:    action,
		Running:   running,
		ChangedAt: time.Now().UTC(),
	})
}

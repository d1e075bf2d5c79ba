// Package nats provides NATS message broker integration for the correlator.
package nats

import "time"

// EventsInserted is published on events.security.inserted after a batch of
// events is committed. Consumers only need to know that new data exists.
type EventsInserted struct {
	Count      int       `json:"count"`
	EventIDs   []string  `json:"event_ids,omitempty"`
	InsertedAt time.Time `json:"inserted_at"`
}

// SimulationStateChanged is published on correlator.simulation.state.
type SimulationStateChanged struct {
	Action    string    `json:"action"` // start, stop, reset
	Running   bool      `json:"running"`
	ChangedAt time.Time `json:"changed_at"`
}

package messaging

// Subjects follow {domain}.{action}.{resource}.
const (
	// Published by the event store writer after each committed insert batch.
	SubjectEventsSecurityInserted = "events.security.inserted"

	// Published by the correlator.
	SubjectCorrelatorThreatsActive   = "correlator.threats.active"   // active threat alert
	SubjectCorrelatorMetricsSummary  = "correlator.metrics.summary"  // summary after each pass
	SubjectCorrelatorSimulationState = "correlator.simulation.state" // start/stop/reset transitions
)

// Header keys carried in Message.Metadata.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderSource    = "X-Source"
)

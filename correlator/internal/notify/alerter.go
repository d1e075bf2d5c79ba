// Package notify turns active correlated threats into alerts and detection
// records, suppressing repeats per origin and pattern.
package notify

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/telhawk-systems/threatlens/common/logging"
	"github.com/telhawk-systems/threatlens/correlator/internal/metrics"
	"github.com/telhawk-systems/threatlens/correlator/internal/models"
	"github.com/telhawk-systems/threatlens/correlator/internal/refresher"
)

const (
	suppressionScope = "threat"

	// localSuppressionSize bounds the in-process suppression cache.
	localSuppressionSize = 4096
)

// AlertPublisher delivers alerts to downstream consumers.
type AlertPublisher interface {
	PublishThreatAlert(ctx context.Context, alert models.ThreatAlert) error
}

// DetectionRecorder persists alerted threats so later passes can see them.
type DetectionRecorder interface {
	InsertDetection(ctx context.Context, d *models.Detection) error
}

// Alerter is registered as a refresher result hook.
type Alerter struct {
	publisher AlertPublisher
	recorder  DetectionRecorder
	state     *StateManager
	local     *expirable.LRU[string, struct{}]
	window    time.Duration
	logger    *logging.Logger
	now       func() time.Time
}

// NewAlerter creates an Alerter. Publisher and recorder may be nil; the
// corresponding step is skipped. Suppression is kept in Redis through state
// and mirrored in process, so repeats within window stay suppressed when
// state is nil, disabled, or failing.
func NewAlerter(publisher AlertPublisher, recorder DetectionRecorder, state *StateManager, window time.Duration, logger *logging.Logger) *Alerter {
	if logger == nil {
		logger = logging.Default()
	}
	a := &Alerter{
		publisher: publisher,
		recorder:  recorder,
		state:     state,
		window:    window,
		logger:    logger,
		now:       time.Now,
	}
	if window > 0 {
		a.local = expirable.NewLRU[string, struct{}](localSuppressionSize, nil, window)
	}
	return a
}

// HandleResult alerts on every active threat in a ready result. It matches
// refresher.ResultHook.
func (a *Alerter) HandleResult(ctx context.Context, result *refresher.Result) {
	if result == nil || result.State != refresher.StateReady {
		return
	}
	for _, threat := range result.Threats {
		if threat.Status != models.ThreatStatusActive {
			continue
		}
		a.alert(ctx, threat)
	}
}

func (a *Alerter) alert(ctx context.Context, threat models.CorrelatedThreat) {
	key := map[string]string{
		"origin":  threat.PrimaryEvent.Origin,
		"pattern": threat.Pattern,
	}
	log := a.logger.With(
		logging.ThreatID(threat.ID),
		logging.Origin(threat.PrimaryEvent.Origin),
		logging.Pattern(threat.Pattern),
	)

	suppressed, err := a.state.IsSuppressed(ctx, suppressionScope, key)
	if err != nil {
		// Redis trouble must not silence alerts on its own.
		log.WarnContext(ctx, "suppression check failed", logging.Error(err))
	}
	if (err != nil || !a.state.IsEnabled()) && a.local != nil {
		suppressed = a.local.Contains(suppressionKey(suppressionScope, key))
	}
	if suppressed {
		metrics.AlertsPublished.WithLabelValues("suppressed").Inc()
		log.DebugContext(ctx, "alert suppressed")
		return
	}

	alert := models.NewThreatAlert(threat, a.now().UTC())

	if a.recorder != nil {
		detection := alert.Detection()
		if err := a.recorder.InsertDetection(ctx, &detection); err != nil {
			log.ErrorContext(ctx, "failed to record detection", logging.Error(err))
		}
	}

	if a.publisher != nil {
		if err := a.publisher.PublishThreatAlert(ctx, alert); err != nil {
			metrics.AlertsPublished.WithLabelValues("failed").Inc()
			log.ErrorContext(ctx, "failed to publish threat alert", logging.Error(err))
			return
		}
	}
	metrics.AlertsPublished.WithLabelValues("published").Inc()

	if a.local != nil {
		a.local.Add(suppressionKey(suppressionScope, key), struct{}{})
	}
	if err := a.state.RecordAlert(ctx, suppressionScope, key, a.window); err != nil {
		log.WarnContext(ctx, "failed to record suppression", logging.Error(err))
	}
	log.InfoContext(ctx, "threat alert raised", logging.Score(threat.CorrelationScore))
}

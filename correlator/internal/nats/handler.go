package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/telhawk-systems/threatlens/common/logging"
	"github.com/telhawk-systems/threatlens/common/messaging"
	"github.com/telhawk-systems/threatlens/common/middleware"
	"github.com/telhawk-systems/threatlens/correlator/internal/refresher"
)

// RefreshTrigger is the part of the refresher the handler drives.
type RefreshTrigger interface {
	Trigger(source string) bool
	SetSubscribed(ok bool)
}

// Handler processes incoming NATS messages for the correlator.
type Handler struct {
	client  messaging.Subscriber
	trigger RefreshTrigger
	self    string
	logger  *logging.Logger
	subs    []messaging.Subscription
}

// NewHandler creates a new NATS message handler. Notifications carrying self
// in their X-Source header were published by this instance, which already
// refreshed, and are ignored.
func NewHandler(client messaging.Subscriber, trigger RefreshTrigger, self string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		client:  client,
		trigger: trigger,
		self:    self,
		logger:  logger,
		subs:    make([]messaging.Subscription, 0),
	}
}

// Start subscribes to insert notifications. Every correlator instance keeps
// its own result, so this is a plain fan-out subscription rather than a
// queue group.
func (h *Handler) Start(ctx context.Context) error {
	sub, err := h.client.Subscribe(messaging.SubjectEventsSecurityInserted, h.handleEventsInserted)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", messaging.SubjectEventsSecurityInserted, err)
	}
	h.subs = append(h.subs, sub)
	h.trigger.SetSubscribed(true)

	h.logger.InfoContext(ctx, "NATS handler started", logging.Subject(messaging.SubjectEventsSecurityInserted))
	return nil
}

// Stop unsubscribes from all subjects and hands refresh back to polling.
func (h *Handler) Stop() error {
	h.trigger.SetSubscribed(false)
	for _, sub := range h.subs {
		if err := sub.Unsubscribe(); err != nil {
			h.logger.Warn("failed to unsubscribe", logging.Subject(sub.Subject()), logging.Error(err))
		}
	}
	h.subs = nil
	h.logger.Info("NATS handler stopped")
	return nil
}

// handleEventsInserted requests a refresh. The payload is informational; a
// body that does not decode still means new data exists.
func (h *Handler) handleEventsInserted(ctx context.Context, msg *messaging.Message) error {
	if id := msg.Header(messaging.HeaderRequestID); id != "" {
		ctx = context.WithValue(ctx, middleware.RequestIDKey, id)
	}
	if h.self != "" && msg.Header(messaging.HeaderSource) == h.self {
		h.logger.DebugContext(ctx, "ignoring own insert notification")
		return nil
	}

	var notice EventsInserted
	if err := json.Unmarshal(msg.Data, &notice); err != nil {
		h.logger.DebugContext(ctx, "insert notification without a readable body", logging.Error(err))
	}

	queued := h.trigger.Trigger(refresher.SourceNotification)
	h.logger.DebugContext(ctx, "insert notification received",
		logging.Count(notice.Count),
		"queued", queued,
	)
	return nil
}

func requestID(ctx context.Context) string {
	return middleware.GetRequestID(ctx)
}

package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/threatlens/correlator/internal/models"
)

// InMemoryRepository backs the correlator when no database is configured.
type InMemoryRepository struct {
	events     map[string]models.SecurityEvent
	detections []models.Detection
	mu         sync.RWMutex
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		events: make(map[string]models.SecurityEvent),
	}
}

func (r *InMemoryRepository) FetchRecentEvents(ctx context.Context, limit int) ([]models.SecurityEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]models.SecurityEvent, 0, len(r.events))
	for _, e := range r.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].DetectedAt.Equal(events[j].DetectedAt) {
			return events[i].DetectedAt.After(events[j].DetectedAt)
		}
		return events[i].ID < events[j].ID
	})
	if limit >= 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (r *InMemoryRepository) FetchRecentDetections(ctx context.Context, limit int) ([]models.Detection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Detection, 0, len(r.detections))
	for i := len(r.detections) - 1; i >= 0 && (limit < 0 || len(out) < limit); i-- {
		out = append(out, r.detections[i])
	}
	return out, nil
}

func (r *InMemoryRepository) InsertEvents(ctx context.Context, events []models.SecurityEvent) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inserted := 0
	for _, e := range events {
		if _, exists := r.events[e.ID]; exists {
			continue
		}
		r.events[e.ID] = e
		inserted++
	}
	return inserted, nil
}

func (r *InMemoryRepository) InsertDetection(ctx context.Context, d *models.Detection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.DetectedAt.IsZero() {
		d.DetectedAt = time.Now().UTC()
	}
	r.detections = append(r.detections, *d)
	return nil
}

func (r *InMemoryRepository) Ping(ctx context.Context) error { return nil }

func (r *InMemoryRepository) Close() {}

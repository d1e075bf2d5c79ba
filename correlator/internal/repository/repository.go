package repository

import (
	"context"

	"github.com/telhawk-systems/threatlens/correlator/internal/models"
)

// Repository is the correlator's relational event store. It satisfies
// refresher.EventSource.
type Repository interface {
	FetchRecentEvents(ctx context.Context, limit int) ([]models.SecurityEvent, error)
	FetchRecentDetections(ctx context.Context, limit int) ([]models.Detection, error)

	// InsertEvents stores new events and returns how many were not already present.
	InsertEvents(ctx context.Context, events []models.SecurityEvent) (int, error)
	InsertDetection(ctx context.Context, detection *models.Detection) error

	Ping(ctx context.Context) error
	Close()
}

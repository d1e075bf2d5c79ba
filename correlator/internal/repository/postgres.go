package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/threatlens/correlator/internal/models"
)

const queryTimeout = 5 * time.Second

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// FetchRecentEvents returns up to limit events, newest first.
func (r *PostgresRepository) FetchRecentEvents(ctx context.Context, limit int) ([]models.SecurityEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, event_type, severity, COALESCE(source_origin, ''), detected_at
		FROM security_events
		ORDER BY detected_at DESC, id
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	events := make([]models.SecurityEvent, 0, limit)
	for rows.Next() {
		var e models.SecurityEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Severity, &e.SourceOrigin, &e.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read security events: %w", err)
	}

	return events, nil
}

// FetchRecentDetections returns up to limit detections, newest first.
func (r *PostgresRepository) FetchRecentDetections(ctx context.Context, limit int) ([]models.Detection, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, threat_id, origin, pattern, severity, correlation_score,
		       related_event_count, indicators, status, detected_at
		FROM threat_detections
		ORDER BY detected_at DESC, id
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	detections := make([]models.Detection, 0, limit)
	for rows.Next() {
		var d models.Detection
		if err := rows.Scan(
			&d.ID, &d.ThreatID, &d.Origin, &d.Pattern, &d.Severity, &d.CorrelationScore,
			&d.RelatedEventCount, &d.Indicators, &d.Status, &d.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read detections: %w", err)
	}

	return detections, nil
}

// InsertEvents writes events in a single batch. Events whose ID already
// exists are skipped.
func (r *PostgresRepository) InsertEvents(ctx context.Context, events []models.SecurityEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO security_events (id, event_type, severity, source_origin, detected_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(query, e.ID, e.EventType, string(e.Severity), e.SourceOrigin, e.DetectedAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range events {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to insert security event: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	return inserted, nil
}

func (r *PostgresRepository) InsertDetection(ctx context.Context, d *models.Detection) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.DetectedAt.IsZero() {
		d.DetectedAt = time.Now().UTC()
	}
	indicators := d.Indicators
	if indicators == nil {
		indicators = []string{}
	}

	query := `
		INSERT INTO threat_detections (id, threat_id, origin, pattern, severity, correlation_score,
		                               related_event_count, indicators, status, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.ThreatID, d.Origin, d.Pattern, string(d.Severity), d.CorrelationScore,
		d.RelatedEventCount, indicators, string(d.Status), d.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert detection: %w", err)
	}

	return nil
}

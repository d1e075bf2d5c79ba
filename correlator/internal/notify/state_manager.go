package notify

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateManager keeps alert suppression state in Redis
type StateManager struct {
	redis   *redis.Client
	enabled bool
}

// NewStateManager creates a new state manager
func NewStateManager(redisClient *redis.Client, enabled bool) *StateManager {
	return &StateManager{
		redis:   redisClient,
		enabled: enabled,
	}
}

// IsEnabled returns whether the state manager is enabled
func (sm *StateManager) IsEnabled() bool {
	return sm != nil && sm.enabled && sm.redis != nil
}

// SuppressionState represents suppression cache state
type SuppressionState struct {
	FirstAlertTime     int64             `json:"first_alert_time"`
	LastAlertTime      int64             `json:"last_alert_time"`
	AlertCount         int               `json:"alert_count"`
	SuppressionContext map[string]string `json:"suppression_context"`
}

// IsSuppressed checks if an alert should be suppressed
func (sm *StateManager) IsSuppressed(ctx context.Context, scope string, key map[string]string) (bool, error) {
	if !sm.IsEnabled() {
		return false, nil
	}

	exists, err := sm.redis.Exists(ctx, suppressionKey(scope, key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check suppression: %w", err)
	}

	return exists > 0, nil
}

// RecordAlert records an alert and suppresses repeats for window
func (sm *StateManager) RecordAlert(ctx context.Context, scope string, key map[string]string, window time.Duration) error {
	if !sm.IsEnabled() {
		return nil
	}

	redisKey := suppressionKey(scope, key)
	now := time.Now().Unix()

	data, err := sm.redis.Get(ctx, redisKey).Result()
	var state SuppressionState
	if errors.Is(err, redis.Nil) {
		state = SuppressionState{
			FirstAlertTime:     now,
			LastAlertTime:      now,
			AlertCount:         1,
			SuppressionContext: make(map[string]string, len(key)),
		}
		for k, v := range key {
			state.SuppressionContext[k] = v
		}
	} else if err != nil {
		return fmt.Errorf("failed to get suppression state: %w", err)
	} else {
		if err := json.Unmarshal([]byte(data), &state); err != nil {
			return fmt.Errorf("failed to unmarshal suppression state: %w", err)
		}
		state.AlertCount++
		state.LastAlertTime = now
	}

	stateData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal suppression state: %w", err)
	}

	if err := sm.redis.Set(ctx, redisKey, stateData, window).Err(); err != nil {
		return fmt.Errorf("failed to save suppression state: %w", err)
	}

	return nil
}

// getSuppression returns the stored state, or nil when nothing is suppressed
func (sm *StateManager) getSuppression(ctx context.Context, scope string, key map[string]string) (*SuppressionState, error) {
	if !sm.IsEnabled() {
		return nil, nil
	}

	data, err := sm.redis.Get(ctx, suppressionKey(scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get suppression state: %w", err)
	}

	var state SuppressionState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal suppression state: %w", err)
	}
	return &state, nil
}

// suppressionKey generates a Redis key for suppression state
func suppressionKey(scope string, key map[string]string) string {
	return fmt.Sprintf("suppression:%s:%s", scope, hashMap(key))
}

// hashMap generates a consistent hash for a map; json.Marshal sorts map keys
func hashMap(m map[string]string) string {
	data, err := json.Marshal(m)
	if err != nil {
		data = []byte{}
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash[:8])
}

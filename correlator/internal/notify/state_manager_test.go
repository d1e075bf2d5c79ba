package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis instance and client for testing
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return mr, client
}

func TestStateManager_IsEnabled(t *testing.T) {
	tests := []struct {
		name     string
		client   *redis.Client
		enabled  bool
		expected bool
	}{
		{name: "enabled with client", client: &redis.Client{}, enabled: true, expected: true},
		{name: "disabled", client: &redis.Client{}, enabled: false, expected: false},
		{name: "no client", client: nil, enabled: true, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateManager(tt.client, tt.enabled)
			assert.Equal(t, tt.expected, sm.IsEnabled())
		})
	}

	var nilManager *StateManager
	assert.False(t, nilManager.IsEnabled())
}

func TestStateManager_Suppression(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	sm := NewStateManager(client, true)
	ctx := context.Background()
	key := map[string]string{"origin": "198.51.100.23", "pattern": "Credential Stuffing Campaign"}

	suppressed, err := sm.IsSuppressed(ctx, "threat", key)
	require.NoError(t, err)
	assert.False(t, suppressed)

	require.NoError(t, sm.RecordAlert(ctx, "threat", key, time.Hour))

	suppressed, err = sm.IsSuppressed(ctx, "threat", key)
	require.NoError(t, err)
	assert.True(t, suppressed)

	other := map[string]string{"origin": "203.0.113.7", "pattern": "Credential Stuffing Campaign"}
	suppressed, err = sm.IsSuppressed(ctx, "threat", other)
	require.NoError(t, err)
	assert.False(t, suppressed, "a different origin is not suppressed")

	require.NoError(t, sm.RecordAlert(ctx, "threat", key, time.Hour))
	state, err := sm.getSuppression(ctx, "threat", key)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 2, state.AlertCount)
	assert.Equal(t, "198.51.100.23", state.SuppressionContext["origin"])

	mr.FastForward(2 * time.Hour)

	suppressed, err = sm.IsSuppressed(ctx, "threat", key)
	require.NoError(t, err)
	assert.False(t, suppressed, "suppression expires after the window")
}

func TestStateManager_Disabled(t *testing.T) {
	sm := NewStateManager(nil, false)
	ctx := context.Background()
	key := map[string]string{"origin": "x"}

	suppressed, err := sm.IsSuppressed(ctx, "threat", key)
	require.NoError(t, err)
	assert.False(t, suppressed)
	assert.NoError(t, sm.RecordAlert(ctx, "threat", key, time.Minute))

	state, err := sm.getSuppression(ctx, "threat", key)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestSuppressionKey_Deterministic(t *testing.T) {
	a := suppressionKey("threat", map[string]string{"origin": "o", "pattern": "p"})
	b := suppressionKey("threat", map[string]string{"pattern": "p", "origin": "o"})
	c := suppressionKey("threat", map[string]string{"origin": "o2", "pattern": "p"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^suppression:threat:[0-9a-f]{16}$`, a)
}

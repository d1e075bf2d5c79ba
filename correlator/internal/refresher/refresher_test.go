package refresher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/threatlens/common/logging"
	"github.com/telhawk-systems/threatlens/correlator/internal/correlation"
	"github.com/telhawk-systems/threatlens/correlator/internal/models"
)

type mockSource struct {
	fetchEventsFunc     func(ctx context.Context, limit int) ([]models.SecurityEvent, error)
	fetchDetectionsFunc func(ctx context.Context, limit int) ([]models.Detection, error)
}

func (m *mockSource) FetchRecentEvents(ctx context.Context, limit int) ([]models.SecurityEvent, error) {
	if m.fetchEventsFunc != nil {
		return m.fetchEventsFunc(ctx, limit)
	}
	return nil, nil
}

func (m *mockSource) FetchRecentDetections(ctx context.Context, limit int) ([]models.Detection, error) {
	if m.fetchDetectionsFunc != nil {
		return m.fetchDetectionsFunc(ctx, limit)
	}
	return []models.Detection{}, nil
}

func bruteForceEvents() []models.SecurityEvent {
	now := time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC)
	var events []models.SecurityEvent
	for i := 0; i < 4; i++ {
		events = append(events, models.SecurityEvent{
			ID:           fmt.Sprintf("evt-%d", i),
			EventType:    "brute_force_login",
			Severity:     models.SeverityCritical,
			SourceOrigin: "198.51.100.23",
			DetectedAt:   now.Add(time.Duration(i) * time.Second),
		})
	}
	return events
}

func newTestRefresher(source EventSource, mutate func(*Config)) *Refresher {
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return New(source, correlation.NewEngine(correlation.DefaultTuning()), cfg, logging.Discard())
}

func TestRefresher_InitialStateIsPending(t *testing.T) {
	r := newTestRefresher(&mockSource{}, nil)

	cur := r.Current()
	require.NotNil(t, cur)
	assert.Equal(t, StatePending, cur.State)
	assert.Equal(t, MessagePending, cur.Message)
	assert.NotNil(t, cur.Threats)
	assert.NotNil(t, cur.Patterns)
}

func TestRefresher_Refresh(t *testing.T) {
	tests := []struct {
		name        string
		events      []models.SecurityEvent
		wantThreats int
		wantMessage string
	}{
		{
			name:        "threats correlated",
			events:      bruteForceEvents(),
			wantThreats: 1,
		},
		{
			name:        "nothing correlated",
			events:      nil,
			wantThreats: 0,
			wantMessage: MessageNoThreats,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLimit int
			source := &mockSource{
				fetchEventsFunc: func(ctx context.Context, limit int) ([]models.SecurityEvent, error) {
					gotLimit = limit
					return tt.events, nil
				},
			}
			r := newTestRefresher(source, nil)

			require.NoError(t, r.Refresh(context.Background()))

			cur := r.Current()
			assert.Equal(t, 100, gotLimit)
			assert.Equal(t, StateReady, cur.State)
			assert.Len(t, cur.Threats, tt.wantThreats)
			assert.Equal(t, tt.wantMessage, cur.Message)
			assert.Equal(t, len(tt.events), cur.EventsProcessed)
			assert.False(t, cur.RefreshedAt.IsZero())
		})
	}
}

func TestRefresher_FailureKeepsPreviousResults(t *testing.T) {
	fail := atomic.Bool{}
	source := &mockSource{
		fetchEventsFunc: func(ctx context.Context, limit int) ([]models.SecurityEvent, error) {
			if fail.Load() {
				return nil, errors.New("connection refused")
			}
			return bruteForceEvents(), nil
		},
	}
	r := newTestRefresher(source, nil)

	require.NoError(t, r.Refresh(context.Background()))
	good := r.Current()
	require.Len(t, good.Threats, 1)

	fail.Store(true)
	err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch recent events")

	stale := r.Current()
	assert.Equal(t, StateStale, stale.State)
	assert.Equal(t, MessageStale, stale.Message)
	assert.Contains(t, stale.LastError, "connection refused")
	assert.Equal(t, good.Threats, stale.Threats)
	assert.Equal(t, good.Patterns, stale.Patterns)
	assert.Equal(t, good.RefreshedAt, stale.RefreshedAt)
	assert.Equal(t, StateReady, good.State, "published results are never mutated")

	fail.Store(false)
	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, StateReady, r.Current().State)
	assert.Empty(t, r.Current().LastError)
}

func TestRefresher_FirstPassFailureIsStaleNotPending(t *testing.T) {
	source := &mockSource{
		fetchDetectionsFunc: func(ctx context.Context, limit int) ([]models.Detection, error) {
			return nil, errors.New("detections table missing")
		},
	}
	r := newTestRefresher(source, nil)

	err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch recent detections")

	cur := r.Current()
	assert.Equal(t, StateStale, cur.State)
	assert.Empty(t, cur.Threats)
	assert.True(t, cur.RefreshedAt.IsZero())
}

func TestRefresher_FetchTimeout(t *testing.T) {
	source := &mockSource{
		fetchEventsFunc: func(ctx context.Context, limit int) ([]models.SecurityEvent, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	r := newTestRefresher(source, func(c *Config) { c.FetchTimeout = 20 * time.Millisecond })

	err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateStale, r.Current().State)
}

func TestRefresher_HooksRunOnSuccessOnly(t *testing.T) {
	fail := atomic.Bool{}
	source := &mockSource{
		fetchEventsFunc: func(ctx context.Context, limit int) ([]models.SecurityEvent, error) {
			if fail.Load() {
				return nil, errors.New("down")
			}
			return bruteForceEvents(), nil
		},
	}
	r := newTestRefresher(source, nil)

	var seen []*Result
	r.OnResult(func(ctx context.Context, res *Result) { seen = append(seen, res) })

	require.NoError(t, r.Refresh(context.Background()))
	fail.Store(true)
	require.Error(t, r.Refresh(context.Background()))

	require.Len(t, seen, 1)
	assert.Equal(t, StateReady, seen[0].State)
}

func TestRefresher_TriggerCoalesces(t *testing.T) {
	r := newTestRefresher(&mockSource{}, nil)

	assert.True(t, r.Trigger(SourceManual))
	assert.False(t, r.Trigger(SourceNotification))
	assert.False(t, r.Trigger(SourceNotification))
}

func TestRefresher_RunAtMostOneInFlightPlusTrailing(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	source := &mockSource{
		fetchEventsFunc: func(ctx context.Context, limit int) ([]models.SecurityEvent, error) {
			if calls.Add(1) == 1 {
				<-release
			}
			return bruteForceEvents(), nil
		},
	}
	r := newTestRefresher(source, func(c *Config) { c.PollInterval = time.Hour })
	r.SetSubscribed(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Run(ctx)
	}()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	for i := 0; i < 5; i++ {
		r.Trigger(SourceNotification)
	}
	close(release)

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 2, calls.Load(), "five triggers during one pass collapse to one trailing pass")

	cancel()
	wg.Wait()
}

func TestRefresher_PollFallback(t *testing.T) {
	tests := []struct {
		name       string
		subscribed bool
		wantPolls  bool
	}{
		{name: "no subscription polls", subscribed: false, wantPolls: true},
		{name: "live subscription does not poll", subscribed: true, wantPolls: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			source := &mockSource{
				fetchEventsFunc: func(ctx context.Context, limit int) ([]models.SecurityEvent, error) {
					calls.Add(1)
					return nil, nil
				},
			}
			r := newTestRefresher(source, func(c *Config) { c.PollInterval = 5 * time.Millisecond })
			r.SetSubscribed(tt.subscribed)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				r.Run(ctx)
			}()

			if tt.wantPolls {
				require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
			} else {
				time.Sleep(60 * time.Millisecond)
				assert.EqualValues(t, 1, calls.Load())
			}

			cancel()
			<-done
		})
	}
}

func TestRefresher_SubscribedStillRetriesWhenStale(t *testing.T) {
	var calls atomic.Int32
	source := &mockSource{
		fetchEventsFunc: func(ctx context.Context, limit int) ([]models.SecurityEvent, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("transient")
			}
			return nil, nil
		},
	}
	r := newTestRefresher(source, func(c *Config) { c.PollInterval = 5 * time.Millisecond })
	r.SetSubscribed(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	require.Eventually(t, func() bool { return r.Current().State == StateReady }, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestRefresher_ConcurrentReadersSeeWholeResults(t *testing.T) {
	source := &mockSource{
		fetchEventsFunc: func(ctx context.Context, limit int) ([]models.SecurityEvent, error) {
			return bruteForceEvents(), nil
		},
	}
	r := newTestRefresher(source, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				cur := r.Current()
				if cur.State == StateReady {
					assert.Len(t, cur.Threats, 1)
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		require.NoError(t, r.Refresh(context.Background()))
	}
	cancel()
	wg.Wait()
}

package maintenance

import (
	"context"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/guildmind/plugin/ai/aitime"
)

func TestScheduler_RunOnceSingleFlight(t *testing.T) {
	fs := newFakeStore()
	fs.add("u1", userFact("a", 0.9, daysAgo(40)))
	fs.block = make(chan struct{})

	s := NewScheduler(NewSweeper(fs, nil, nil, aitime.NewMockClock(now), Config{}), SchedulerConfig{})

	var wg sync.WaitGroup
	var first *Report
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = s.RunOnce(context.Background())
	}()

	// Wait until the first sweep holds the in-flight flag.
	for !s.inFlight.Load() {
		runtime.Gosched()
	}
	assert.Nil(t, s.RunOnce(context.Background()))

	close(fs.block)
	wg.Wait()
	require.NotNil(t, first)
	assert.Equal(t, 1, first.ProfilesProcessed)
	assert.Same(t, first, s.LastReport())

	again := s.RunOnce(context.Background())
	require.NotNil(t, again)
	assert.NotEqual(t, first.RunID, again.RunID)
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(NewSweeper(newFakeStore(), nil, nil, nil, Config{}), SchedulerConfig{})
	assert.Equal(t, DefaultSpec, s.config.Spec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Start(ctx))

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := NewScheduler(NewSweeper(newFakeStore(), nil, nil, nil, Config{}), SchedulerConfig{Spec: "every tuesday"})
	err := s.Start(context.Background())
	assert.Error(t, err)
	assert.False(t, s.IsRunning())
}

package observability

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, 100.0, m.Snapshot().SuccessRate())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Record("GET /envelope", 10*time.Millisecond, i%5 == 0)
		}(i)
	}
	wg.Wait()
	m.Record("POST /facts", 30*time.Millisecond, false)

	snap := m.Snapshot()
	assert.Equal(t, int64(11), snap.RequestTotal)
	assert.Equal(t, int64(2), snap.RequestFailed)
	require.Len(t, snap.Operations, 2)
	assert.Equal(t, "GET /envelope", snap.Operations[0].Operation)
	assert.Equal(t, int64(10), snap.Operations[0].Count)
	assert.Equal(t, int64(2), snap.Operations[0].Errors)
	assert.Equal(t, int64(10), snap.Operations[0].AvgLatencyMs)
	assert.Equal(t, int64(30), snap.Operations[1].AvgLatencyMs)
}

func TestRequestContext(t *testing.T) {
	reqCtx := NewRequestContext(nil, "", "GET /envelope")
	assert.NotEmpty(t, reqCtx.RequestID)
	reqCtx.SetScope("u1", "g1")

	ctx := WithRequestContext(t.Context(), reqCtx)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, reqCtx, got)
	assert.Equal(t, "g1", got.GuildID)
}

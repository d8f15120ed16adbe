package tracker

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestTracker_CleanupRunsTimersAndListenersExactlyOnce(t *testing.T) {
	tr := New(Config{Logger: testLogger()})
	tr.Register("greeter", &struct{}{})

	var timerStops, listenerRemoves int32
	tr.RegisterTimer("greeter", TimerHandle{ID: "ttl", Stop: func() { atomic.AddInt32(&timerStops, 1) }})
	tr.RegisterListener("greeter", ListenerHandle{Target: "bus", Event: "tick", Remove: func() { atomic.AddInt32(&listenerRemoves, 1) }})

	tr.Cleanup("greeter")
	tr.Cleanup("greeter") // idempotent

	assert.Equal(t, int32(1), atomic.LoadInt32(&timerStops))
	assert.Equal(t, int32(1), atomic.LoadInt32(&listenerRemoves))
	assert.False(t, tr.Alive("greeter"))
}

func TestTracker_RegisterReplacesPriorRecord(t *testing.T) {
	tr := New(Config{Logger: testLogger()})
	var firstStop int32
	tr.Register("greeter", &struct{}{})
	tr.RegisterTimer("greeter", TimerHandle{ID: "a", Stop: func() { atomic.AddInt32(&firstStop, 1) }})

	tr.Register("greeter", &struct{}{})
	assert.Equal(t, int32(1), atomic.LoadInt32(&firstStop))
	assert.True(t, tr.Alive("greeter"))
}

func TestTracker_ScheduledSweepReclaimsDeadInstances(t *testing.T) {
	tr := New(Config{Logger: testLogger(), CleanupInterval: 20 * time.Millisecond, PressureCheckInterval: time.Hour})
	tr.Register("greeter", &struct{}{})

	var stopped int32
	tr.RegisterTimer("greeter", TimerHandle{ID: "a", Stop: func() { atomic.AddInt32(&stopped, 1) }})
	tr.MarkDead("greeter")

	ctx, cancel := context.WithCancel(context.Background())
	tr.Start(ctx)
	defer func() {
		cancel()
		tr.Stop()
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&stopped) == 1 }, time.Second, 10*time.Millisecond)
}

func TestTracker_HeapPressureDisabledByDefault(t *testing.T) {
	tr := New(Config{Logger: testLogger()})
	assert.False(t, tr.heapPressureExceeded())
}

func TestTracker_HeapPressureThresholdZeroNeverForces(t *testing.T) {
	tr := New(Config{Logger: testLogger(), MemoryPressureThreshold: 0})
	assert.False(t, tr.heapPressureExceeded())
}

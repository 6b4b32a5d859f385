package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TubeArticles/internal/domain"
)

type gaugeRecorder struct {
	fakeMetrics
	last chan int
}

type fakeMetrics struct{}

func (fakeMetrics) ObserveOutcome(string, domain.OutcomeKind) {}
func (fakeMetrics) ObservePoll(string, error, time.Duration) {}

func (g *gaugeRecorder) SetRunning(n int) {
	select {
	case g.last <- n:
	default:
	}
}

func newTestRegistry(dedup *memDedup) *Registry {
	return NewRegistry(Deps{Feed: &fakeFeed{}, Dedup: dedup, Settings: fastSettings()})
}

func spec(ref string, h VideoHandler) Spec {
	return Spec{Channel: domain.Channel{ID: ref, ExternalID: "UC" + ref}, Handler: h}
}

func TestRegistryStartIsIdempotent(t *testing.T) {
	t.Parallel()

	dedup := newMemDedup()
	h := &recordingHandler{dedup: dedup}
	r := newTestRegistry(dedup)
	ctx := context.Background()

	require.True(t, r.StartChannel(ctx, spec("a", h)))
	require.False(t, r.StartChannel(ctx, spec("a", h)))
	require.True(t, r.StartChannel(ctx, spec("b", h)))

	assert.Equal(t, []string{"a", "b"}, r.ListActive())
	assert.True(t, r.IsRunning("a"))
	assert.False(t, r.IsRunning("zzz"))

	require.True(t, r.StopChannel("a"))
	require.False(t, r.StopChannel("a"))
	require.False(t, r.StopChannel("zzz"))
	assert.Equal(t, []string{"b"}, r.ListActive())

	assert.Equal(t, 1, r.StopAll())
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(waitCtx))
	assert.Empty(t, r.ListActive())
}

func TestRegistryRestartReusesMonitor(t *testing.T) {
	t.Parallel()

	dedup := newMemDedup()
	h := &recordingHandler{dedup: dedup}
	r := newTestRegistry(dedup)
	ctx := context.Background()

	require.True(t, r.StartChannel(ctx, spec("a", h)))
	first := r.Snapshot()[0].RunID
	require.True(t, r.StopChannel("a"))
	require.True(t, r.StartChannel(ctx, spec("a", h)))

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].Running)
	assert.NotEqual(t, first, snap[0].RunID)

	r.StopAll()
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(waitCtx))
}

func TestRegistryForgetKeepsWaitingOnLoop(t *testing.T) {
	t.Parallel()

	dedup := newMemDedup()
	h := &recordingHandler{dedup: dedup}
	r := newTestRegistry(dedup)
	ctx := context.Background()

	require.True(t, r.StartChannel(ctx, spec("a", h)))
	r.Forget("a")
	assert.Empty(t, r.Snapshot())

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(waitCtx))
}

func TestRegistryStartAfterForgetWaitsForDrainingLoop(t *testing.T) {
	t.Parallel()

	feed := &fakeFeed{videos: []domain.Video{video("v1", time.Hour), video("v2", 30*time.Minute)}}
	dedup := newMemDedup()
	h := &recordingHandler{dedup: dedup, block: make(chan struct{})}
	r := NewRegistry(Deps{Feed: feed, Dedup: dedup, Settings: fastSettings()})
	ctx := context.Background()

	require.True(t, r.StartChannel(ctx, spec("a", h)))
	require.Eventually(t, func() bool { return h.active.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	r.Forget("a")
	require.True(t, r.StartChannel(ctx, spec("a", h)))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, feed.Calls())

	close(h.block)
	require.Eventually(t, func() bool { return len(h.Handled()) == 2 }, 2*time.Second, 5*time.Millisecond)
	r.StopAll()
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(waitCtx))

	assert.Equal(t, int32(1), h.maxActive.Load())
	assert.Equal(t, []string{"v1", "v2"}, h.Handled())
}

func TestRegistryWaitHonoursContext(t *testing.T) {
	t.Parallel()

	dedup := newMemDedup()
	h := &recordingHandler{dedup: dedup}
	r := newTestRegistry(dedup)

	require.True(t, r.StartChannel(context.Background(), spec("a", h)))
	defer r.StopAll()

	waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, r.Wait(waitCtx), context.DeadlineExceeded)
}

func TestRegistryPublishesRunningCount(t *testing.T) {
	t.Parallel()

	dedup := newMemDedup()
	g := &gaugeRecorder{last: make(chan int, 1)}
	r := NewRegistry(Deps{Feed: &fakeFeed{}, Dedup: dedup, Metrics: g, Settings: fastSettings()})

	require.True(t, r.StartChannel(context.Background(), spec("a", &recordingHandler{dedup: dedup})))
	assert.Equal(t, 1, <-g.last)
	r.StopAll()
	assert.Equal(t, 0, <-g.last)
}

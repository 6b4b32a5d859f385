package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TubeArticles/internal/domain"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate("*/5 * * * *"))
	require.ErrorIs(t, Validate("every now and then"), domain.ErrConfiguration)
}

func TestStartRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("61 * * * *", nil)
	err := s.Start(context.Background(), func(time.Time) {})
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("@every 1h", time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx, func(time.Time) {}))
	require.NoError(t, s.Start(ctx, func(time.Time) {}))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	assert.NoError(t, s.Stop(stopCtx))
	assert.NoError(t, s.Stop(stopCtx))
}

func TestNilJobIsIgnored(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("*/5 * * * *", nil)
	require.NoError(t, s.Start(context.Background(), nil))
	require.NoError(t, s.Stop(context.Background()))
}

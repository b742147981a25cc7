package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fleetopt/internal/model"
	"fleetopt/internal/opt"
	"fleetopt/internal/store"
)

func TestRetentionRunOnce(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	done, err := st.CreateSolve(ctx, model.SolveRecord{})
	require.NoError(t, err)
	require.NoError(t, st.FailSolve(ctx, done.ID, "boom"))
	queued, err := st.CreateSolve(ctx, model.SolveRecord{})
	require.NoError(t, err)
	opt.RecordMetrics(done.ID, opt.Metrics{Iterations: 3})

	r, err := NewRetention(st, "@hourly", time.Hour)
	require.NoError(t, err)
	r.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = st.GetSolve(ctx, done.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetSolve(ctx, queued.ID)
	require.NoError(t, err)
	_, ok := opt.GetMetrics(done.ID)
	require.False(t, ok)
}

func TestRetentionRejectsBadSchedule(t *testing.T) {
	_, err := NewRetention(store.NewMemory(), "every tuesday", time.Hour)
	require.Error(t, err)

	r, err := NewRetention(store.NewMemory(), "*/5 * * * *", time.Hour)
	require.NoError(t, err)
	r.Start()
	r.Stop()
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"fleetopt/internal/model"
)

var sample = model.SolutionResponse{
	TotalCost:      42,
	UnassignedJobs: []string{"r9"},
	Routes:         []model.RouteOut{{Vehicle: "v1", Jobs: []model.ActivityOut{{Request: "r1", ArrivalTime: 10, DepartureTime: 25}}}},
}

func TestMemoryEvictsOldest(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(2)
	require.NoError(t, c.Set(ctx, "a", sample))
	require.NoError(t, c.Set(ctx, "b", sample))
	require.NoError(t, c.Set(ctx, "a", sample))
	require.NoError(t, c.Set(ctx, "c", sample))
	require.Equal(t, 2, c.Len())

	_, ok, _ := c.Get(ctx, "a")
	require.False(t, ok)
	got, ok, err := c.Get(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sample, got)
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := NewRedis(rdb, time.Minute)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", sample))
	require.True(t, mr.Exists(keyPrefix+"k"))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sample, got)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

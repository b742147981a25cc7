package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterDefaultIsIdempotent(t *testing.T) {
	RegisterDefault()
	RegisterDefault()

	before := testutil.ToFloat64(Solves.WithLabelValues("sync", "succeeded"))
	Solves.WithLabelValues("sync", "succeeded").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(Solves.WithLabelValues("sync", "succeeded")))

	n, err := testutil.GatherAndCount(Registry, "solves_total")
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 1)
}

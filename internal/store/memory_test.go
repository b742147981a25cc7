package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"fleetopt/internal/model"
)

func TestMemoryContract(t *testing.T) {
	runContract(t, NewMemory())
}

func TestClampLimit(t *testing.T) {
	require.Equal(t, defaultLimit, clampLimit(0))
	require.Equal(t, defaultLimit, clampLimit(-3))
	require.Equal(t, defaultLimit, clampLimit(maxLimit+1))
	require.Equal(t, 7, clampLimit(7))
}

func TestSortByIDFollowsCreationOrder(t *testing.T) {
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, uuid.Must(uuid.NewV7()).String())
	}
	recs := []model.SolveRecord{{ID: ids[3]}, {ID: ids[0]}, {ID: ids[4]}, {ID: ids[2]}, {ID: ids[1]}}
	sortByID(recs)
	for i, rec := range recs {
		require.Equal(t, ids[i], rec.ID)
	}
}

package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/internal/testutil"
)

func TestInMemoryStore_UpdateSnapshotRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	tbl := testutil.Salaries()

	assert.False(t, s.IsActive("s1"))
	require.NoError(t, s.Update("s1", tbl, "salaries.csv"))
	assert.True(t, s.IsActive("s1"))

	snap, ok := s.Snapshot("s1")
	require.True(t, ok)
	assert.True(t, snap.Table.Equal(tbl))
	assert.NotSame(t, tbl, snap.Table)
	assert.Equal(t, "salaries.csv", snap.Origin)
	assert.Equal(t, 2, snap.Rows)
	assert.Len(t, snap.Columns, 2)
	assert.False(t, snap.UpdatedAt.IsZero())
}

func TestInMemoryStore_UpdateRejectsInvalid(t *testing.T) {
	s := NewInMemoryStore()
	err := s.Update("s1", nil, "x")
	assert.True(t, core.IsKind(err, core.KindValidation))
	assert.False(t, s.IsActive("s1"))
}

func TestInMemoryStore_SwapKeepsOrigin(t *testing.T) {
	s := NewInMemoryStore()
	assert.Error(t, s.Swap("s1", testutil.Sales()))

	require.NoError(t, s.Update("s1", testutil.Prices(), "prices.csv"))
	require.NoError(t, s.Swap("s1", testutil.Sales()))

	snap, ok := s.Snapshot("s1")
	require.True(t, ok)
	assert.Equal(t, "prices.csv", snap.Origin)
	assert.True(t, snap.Table.Equal(testutil.Sales()))
}

func TestInMemoryStore_ClearDestroysSession(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Update("s1", testutil.Salaries(), ""))
	s.Append("s1", core.HistoryEntry{Query: "q"})

	s.Clear("s1")

	assert.False(t, s.IsActive("s1"))
	_, ok := s.Snapshot("s1")
	assert.False(t, ok)
	assert.Empty(t, s.History("s1"))
}

func TestInMemoryStore_HistoryBoundedAndCopied(t *testing.T) {
	s := NewInMemoryStore(func(o *Options) { o.MaxHistory = 3 })
	for i := 0; i < 5; i++ {
		s.Append("s1", core.HistoryEntry{
			Query:  fmt.Sprintf("q%d", i),
			Steps:  []string{"planner", "insight", "critique"},
			Result: &core.Result{Agent: "insight", Success: true},
		})
	}

	h := s.History("s1")
	require.Len(t, h, 3)
	assert.Equal(t, "q2", h[0].Query)
	assert.Equal(t, "q4", h[2].Query)
	assert.False(t, h[0].Timestamp.IsZero())

	h[0].Steps[0] = "mutated"
	h[0].Result.Agent = "mutated"
	again := s.History("s1")
	assert.Equal(t, "planner", again[0].Steps[0])
	assert.Equal(t, "insight", again[0].Result.Agent)
}

func TestInMemoryStore_ConcurrentSessions(t *testing.T) {
	s := NewInMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i%4)
			_ = s.Update(id, testutil.Salaries(), "")
			s.Append(id, core.HistoryEntry{Query: "q"})
			_, _ = s.Snapshot(id)
			_ = s.History(id)
		}(i)
	}
	wg.Wait()
	assert.Len(t, s.Sessions(), 4)
	assert.Len(t, s.History("s0"), 5)
}

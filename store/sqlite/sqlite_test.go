package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/credit-engine/reward"
	"github.com/warp/credit-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func event(forID string, amount int64, status reward.EventStatus) *reward.RewardEvent {
	return &reward.RewardEvent{
		EventKey:    reward.EventKey{Type: "goodPost", ToUserID: "bob", ByUserID: "alice", ForID: forID},
		AwardAmount: amount,
		Status:      status,
	}
}

func TestStore_AppendAssignsVersionsAndKeepsArrivalTime(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := event("p1", 5, reward.StatusPending)
	require.NoError(t, store.Append(ctx, first))
	assert.Equal(t, 1, first.Version)
	assert.False(t, first.Time.IsZero())

	second := *first
	second.Status = reward.StatusAwarded
	require.NoError(t, store.Append(ctx, &second))
	assert.Equal(t, 2, second.Version)
	assert.True(t, second.Time.Equal(first.Time), "re-writes must keep the first version's time")

	evs, err := store.Latest(ctx, reward.Filter{Types: []string{"goodPost"}})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, 2, evs[0].Version)
	assert.Equal(t, reward.StatusAwarded, evs[0].Status)
}

func TestStore_LatestArrivalOrderAndFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, event("p1", 5, reward.StatusPending)))
	require.NoError(t, store.Append(ctx, event("p2", 5, reward.StatusPending)))
	require.NoError(t, store.Append(ctx, event("p3", 5, reward.StatusPending)))

	// Re-write p1; it must keep its arrival slot.
	require.NoError(t, store.Append(ctx, event("p1", 5, reward.StatusAwarded)))

	evs, err := store.Latest(ctx, reward.Filter{Types: []string{"goodPost"}})
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.Equal(t, "p1", evs[0].ForID)
	assert.Equal(t, "p2", evs[1].ForID)
	assert.Equal(t, "p3", evs[2].ForID)

	pending, err := store.Latest(ctx, reward.Filter{Types: []string{"goodPost"}, Status: reward.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	other := &reward.RewardEvent{
		EventKey: reward.EventKey{Type: "kudos", ToUserID: "carol", ForID: "x"},
		Status:   reward.StatusAwarded,
	}
	require.NoError(t, store.Append(ctx, other))

	scoped, err := store.Latest(ctx, reward.Filter{Types: []string{"goodPost"}, ToUserID: "bob"})
	require.NoError(t, err)
	assert.Len(t, scoped, 3, "foreign types and users must not leak in")
}

func TestStore_SumAwarded(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, time.June, 2, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	require.NoError(t, store.Append(ctx, event("p1", 5, reward.StatusAwarded)))
	require.NoError(t, store.Append(ctx, event("p2", 7, reward.StatusCapped)))

	yesterday := event("p3", 3, reward.StatusAwarded)
	yesterday.Time = now.AddDate(0, 0, -1)
	require.NoError(t, store.Append(ctx, yesterday))

	// A superseded awarded version must not count once the latest version
	// is pending again.
	reset := event("p4", 9, reward.StatusAwarded)
	require.NoError(t, store.Append(ctx, reset))
	back := *reset
	back.Status = reward.StatusPending
	require.NoError(t, store.Append(ctx, &back))

	all, err := store.SumAwarded(ctx, reward.AggregateQuery{Types: []string{"goodPost"}, ToUserID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(8), all)

	window, _ := reward.WindowFor(reward.IntervalDay, now)
	today, err := store.SumAwarded(ctx, reward.AggregateQuery{Types: []string{"goodPost"}, ToUserID: "bob", Window: &window})
	require.NoError(t, err)
	assert.Equal(t, int64(5), today)

	byPair, err := store.SumAwarded(ctx, reward.AggregateQuery{Types: []string{"goodPost"}, ToUserID: "bob", ByUserID: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), byPair)
}

func TestStore_SettlesAgainstEngine(t *testing.T) {
	// The sqlite store must satisfy the same engine flow the memory store
	// does: pending events settle under a cap in arrival order.

	store := newTestStore(t)
	ctx := context.Background()

	for _, forID := range []string{"p1", "p2", "p3"} {
		require.NoError(t, store.Append(ctx, event(forID, 5, reward.StatusPending)))
	}

	pending, err := store.Latest(ctx, reward.Filter{Types: []string{"goodPost"}, Status: reward.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 3)

	for i := range pending {
		if i < 2 {
			pending[i].Status = reward.StatusAwarded
		} else {
			pending[i].Status = reward.StatusCapped
			pending[i].AwardAmount = 0
		}
		require.NoError(t, store.Append(ctx, &pending[i]))
	}

	sum, err := store.SumAwarded(ctx, reward.AggregateQuery{Types: []string{"goodPost"}, ToUserID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), sum)
}

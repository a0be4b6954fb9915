package matchmaking

import (
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// push appends an entry with an explicit rating.
func push(q *Queue, connID string, rating int, joined time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, Entry{ConnID: connID, Name: connID, JoinedAt: joined, Rating: rating})
}

func ratings(group []Entry) []int {
	out := make([]int, len(group))
	for i, e := range group {
		out[i] = e.Rating
	}
	return out
}

func TestRating(t *testing.T) {
	tests := []struct {
		h    History
		want int
	}{
		{History{}, 1000},
		{History{Wins: 0, Games: 1}, 1005},
		{History{Wins: 3, Games: 10}, 1080},
		{History{Wins: 30, Games: 500}, 1400},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Rating(tt.h), "%+v", tt.h)
	}
}

func TestQueue_EnqueueIsIdempotentPerConnection(t *testing.T) {
	q := NewQueue(DefaultConfig())

	assert.Equal(t, 1, q.Enqueue("c1", "alice", History{}, t0))
	assert.Equal(t, 2, q.Enqueue("c2", "bob", History{}, t0))
	assert.Equal(t, 2, q.Enqueue("c1", "alice2", History{Wins: 1}, t0.Add(time.Second)))

	q.mu.Lock()
	last := q.entries[len(q.entries)-1]
	q.mu.Unlock()
	assert.Equal(t, "alice2", last.Name)
	assert.Equal(t, 1010, last.Rating)
	assert.Equal(t, t0.Add(time.Second), last.JoinedAt)
}

func TestQueue_Dequeue(t *testing.T) {
	q := NewQueue(DefaultConfig())
	q.Enqueue("c1", "alice", History{}, t0)

	assert.True(t, q.Contains("c1"))
	assert.True(t, q.Dequeue("c1"))
	assert.False(t, q.Dequeue("c1"))
	assert.False(t, q.Contains("c1"))
	assert.Equal(t, 0, q.Len())
}

func TestQueue_TickBelowMinimumFormsNothing(t *testing.T) {
	q := NewQueue(DefaultConfig())
	q.Enqueue("c1", "alice", History{}, t0)

	res := q.Tick(t0.Add(5 * time.Second))
	assert.Empty(t, res.Matches)
	assert.Empty(t, res.Expired)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_SpreadTooWideFallsBackToPairs(t *testing.T) {
	q := NewQueue(DefaultConfig())
	for i, r := range []int{1420, 1000, 1410, 1005, 1400} {
		push(q, "c"+strconv.Itoa(i), r, t0)
	}

	res := q.Tick(t0.Add(5 * time.Second))

	require.Len(t, res.Matches, 2)
	assert.Equal(t, []int{1000, 1005}, ratings(res.Matches[0]))
	assert.Equal(t, []int{1400, 1410}, ratings(res.Matches[1]))
	assert.Equal(t, 1, q.Len(), "1420 stays queued")
	assert.True(t, q.Contains("c0"))
}

func TestQueue_WaitForcesFullGroup(t *testing.T) {
	q := NewQueue(DefaultConfig())
	push(q, "a", 1000, t0)
	push(q, "b", 1005, t0)
	push(q, "c", 1400, t0.Add(-26*time.Second)) // waited 31s at tick time
	push(q, "d", 1410, t0)
	push(q, "e", 1420, t0)

	res := q.Tick(t0.Add(5 * time.Second))

	require.Len(t, res.Matches, 1)
	assert.Equal(t, []int{1000, 1005, 1400, 1410}, ratings(res.Matches[0]))
	assert.True(t, q.Contains("e"))
}

func TestQueue_ForcedWindowSlides(t *testing.T) {
	q := NewQueue(DefaultConfig())
	push(q, "a", 1000, t0)
	push(q, "b", 1005, t0)
	push(q, "c", 1400, t0)
	push(q, "d", 1410, t0)
	push(q, "e", 1420, t0.Add(-40*time.Second))

	res := q.Tick(t0)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, []int{1005, 1400, 1410, 1420}, ratings(res.Matches[0]))
	assert.True(t, q.Contains("a"))
}

func TestQueue_FairFullGroup(t *testing.T) {
	q := NewQueue(DefaultConfig())
	for i, r := range []int{1000, 1050, 1100, 1150, 1190} {
		push(q, "c"+strconv.Itoa(i), r, t0)
	}

	res := q.Tick(t0)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, []int{1000, 1050, 1100, 1150}, ratings(res.Matches[0]))
	assert.Equal(t, 1, q.Len())
}

func TestQueue_ExpiresAfterMaxWait(t *testing.T) {
	q := NewQueue(DefaultConfig())
	q.Enqueue("old", "old", History{}, t0)

	res := q.Tick(t0.Add(61 * time.Second))
	assert.Empty(t, res.Matches)
	require.Len(t, res.Expired, 1)
	assert.Equal(t, "old", res.Expired[0].ConnID)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_MatchedBeforeExpiry(t *testing.T) {
	q := NewQueue(DefaultConfig())
	q.Enqueue("old", "old", History{}, t0)
	q.Enqueue("new", "new", History{}, t0.Add(60*time.Second))

	res := q.Tick(t0.Add(61 * time.Second))
	require.Len(t, res.Matches, 1)
	assert.Empty(t, res.Expired)
}

func TestQueue_FullGroupsRespectFairness(t *testing.T) {
	cfg := DefaultConfig()
	rng := rand.New(rand.NewPCG(11, 13))

	for round := 0; round < 200; round++ {
		q := NewQueue(cfg)
		n := 2 + rng.IntN(15)
		for i := 0; i < n; i++ {
			joined := t0.Add(-time.Duration(rng.IntN(40)) * time.Second)
			push(q, "c"+strconv.Itoa(i), 1000+rng.IntN(600), joined)
		}

		res := q.Tick(t0)

		matched := 0
		for _, group := range res.Matches {
			matched += len(group)
			require.GreaterOrEqual(t, len(group), cfg.MinPlayers)
			require.LessOrEqual(t, len(group), cfg.MaxPlayers)
			if len(group) != cfg.MaxPlayers {
				continue
			}
			lo, hi := group[0].Rating, group[len(group)-1].Rating
			forced := false
			for _, e := range group {
				if t0.Sub(e.JoinedAt) > cfg.MaxWait/2 {
					forced = true
				}
			}
			assert.True(t, hi-lo <= cfg.FairnessThreshold || forced,
				"round %d: unfair group %v", round, ratings(group))
		}
		assert.Equal(t, n, matched+q.Len(), "every entry is matched or still queued")
		assert.Less(t, q.Len(), cfg.MinPlayers, "pairs absorb all but a lone leftover")
	}
}

func TestQueue_Status(t *testing.T) {
	q := NewQueue(DefaultConfig())
	q.Enqueue("c1", "alice", History{}, t0)

	st := q.Status(t0.Add(10 * time.Second))
	assert.Equal(t, 1, st.Waiting)
	assert.Nil(t, st.EstimatedWait)
	require.Len(t, st.Players, 1)
	assert.Equal(t, 10*time.Second, st.Players[0].WaitingTime)

	q.Enqueue("c2", "bob", History{}, t0)
	q.Enqueue("c3", "carol", History{}, t0)
	st = q.Status(t0)
	require.NotNil(t, st.EstimatedWait)
	assert.Equal(t, 15*time.Second, *st.EstimatedWait)
}

package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(now *time.Time) *Registry {
	return NewRegistry(
		WithIDGenerator(NewSequence("s")),
		WithNow(func() time.Time { return *now }),
	)
}

func TestRegistry_CreateIndexesMembers(t *testing.T) {
	now := t0
	r := newTestRegistry(&now)

	s, err := r.Create(twoPlayers())
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, StatusWaiting, s.Status())
	assert.Equal(t, 30*time.Second, s.Budget)

	got, ok := r.FindByConn("c2")
	require.True(t, ok)
	assert.Same(t, s, got)

	got, ok = r.Find("s1")
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestRegistry_CreateRejectsBadSizes(t *testing.T) {
	now := t0
	r := newTestRegistry(&now)

	_, err := r.Create([]Member{{ConnID: "c1", Name: "a"}})
	assert.ErrorIs(t, err, ErrInvalidGroupSize)

	five := []Member{{"a", "a"}, {"b", "b"}, {"c", "c"}, {"d", "d"}, {"e", "e"}}
	_, err = r.Create(five)
	assert.ErrorIs(t, err, ErrInvalidGroupSize)

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.Indexed())
}

func TestRegistry_CreateRejectsSeatedConnections(t *testing.T) {
	now := t0
	r := newTestRegistry(&now)

	_, err := r.Create(twoPlayers())
	require.NoError(t, err)

	_, err = r.Create([]Member{{ConnID: "c1", Name: "alice"}, {ConnID: "c3", Name: "carol"}})
	assert.ErrorIs(t, err, ErrAlreadySeated)
	_, ok := r.FindByConn("c3")
	assert.False(t, ok, "rejected create must not index anyone")
}

func TestRegistry_NotFoundIsNotAnError(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Find("missing")
	assert.False(t, ok)
	_, ok = r.FindByConn("missing")
	assert.False(t, ok)
	_, ok = r.RemovePlayer("missing")
	assert.False(t, ok)
	assert.False(t, r.Remove("missing"))
}

func TestRegistry_AddPlayer(t *testing.T) {
	now := t0
	r := newTestRegistry(&now)
	s, err := r.Create(twoPlayers())
	require.NoError(t, err)

	require.NoError(t, r.AddPlayer("s1", Member{ConnID: "c3", Name: "carol"}))
	require.NoError(t, r.AddPlayer("s1", Member{ConnID: "c4", Name: "dave"}))
	assert.ErrorIs(t, r.AddPlayer("s1", Member{ConnID: "c5", Name: "erin"}), ErrSessionFull)
	assert.ErrorIs(t, r.AddPlayer("s1", Member{ConnID: "c3", Name: "carol"}), ErrAlreadySeated)
	assert.ErrorIs(t, r.AddPlayer("nope", Member{ConnID: "c6", Name: "x"}), ErrSessionNotFound)
	assert.Equal(t, 4, s.Len())

	got, ok := r.FindByConn("c4")
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestRegistry_AddPlayerRequiresWaiting(t *testing.T) {
	now := t0
	r := newTestRegistry(&now)
	s, _ := r.Create(twoPlayers())
	s.Activate()

	assert.ErrorIs(t, r.AddPlayer("s1", Member{ConnID: "c3", Name: "carol"}), ErrNotWaiting)
	_, ok := r.FindByConn("c3")
	assert.False(t, ok)
}

func TestRegistry_RemovePlayerKeepsLargeSessionAlive(t *testing.T) {
	now := t0
	r := newTestRegistry(&now)
	s, _ := r.Create([]Member{{"c1", "alice"}, {"c2", "bob"}, {"c3", "carol"}})
	s.Activate()

	rem, ok := r.RemovePlayer("c2")
	require.True(t, ok)
	assert.Equal(t, "bob", rem.Player.Name)
	assert.Equal(t, 2, rem.Remaining)
	assert.False(t, rem.Finished)
	assert.Equal(t, StatusActive, s.Status())

	_, ok = r.FindByConn("c2")
	assert.False(t, ok)
	assert.Equal(t, 2, r.Indexed())
}

func TestRegistry_RemovePlayerForcesFinish(t *testing.T) {
	now := t0
	r := newTestRegistry(&now)
	s, _ := r.Create(twoPlayers())
	s.Activate()

	rem, ok := r.RemovePlayer("c1")
	require.True(t, ok)
	assert.True(t, rem.Finished)
	assert.Equal(t, "bob", rem.Winner)
	assert.Equal(t, StatusFinished, s.Status())
	assert.Equal(t, "bob", s.Winner())
}

func TestRegistry_RemovePlayerFromWaitingDoesNotFinish(t *testing.T) {
	now := t0
	r := newTestRegistry(&now)
	s, _ := r.Create(twoPlayers())

	rem, ok := r.RemovePlayer("c1")
	require.True(t, ok)
	assert.False(t, rem.Finished)
	assert.Equal(t, StatusWaiting, s.Status())
}

func TestRegistry_Sweep(t *testing.T) {
	now := t0
	r := newTestRegistry(&now)

	_, err := r.Create([]Member{{"a1", "a"}, {"a2", "b"}})
	require.NoError(t, err)

	now = t0.Add(50 * time.Minute)
	done, err := r.Create([]Member{{"b1", "c"}, {"b2", "d"}})
	require.NoError(t, err)
	done.Activate()
	done.Finish("c")

	fresh, err := r.Create([]Member{{"c1", "e"}, {"c2", "f"}})
	require.NoError(t, err)
	fresh.Activate()

	now = t0.Add(61 * time.Minute)
	removed := r.Sweep(time.Hour)

	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 2, r.Indexed())
	_, ok := r.Find(fresh.ID)
	assert.True(t, ok)
	for _, conn := range []string{"a1", "a2", "b1", "b2"} {
		_, ok := r.FindByConn(conn)
		assert.False(t, ok, conn)
	}
}

func TestRegistry_SweepConcurrentWithTraffic(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				a := string(rune('a'+i)) + "-" + string(rune('A'+j%26)) + "1"
				b := string(rune('a'+i)) + "-" + string(rune('A'+j%26)) + "2"
				s, err := r.Create([]Member{{a, "x"}, {b, "y"}})
				if err != nil {
					continue
				}
				s.Activate()
				s.Finish("x")
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			r.Sweep(time.Hour)
		}
	}()
	wg.Wait()

	r.Sweep(time.Hour)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.Indexed())
}

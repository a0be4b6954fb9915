package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quizarena/internal/quiz"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func twoPlayers() []Member {
	return []Member{{ConnID: "c1", Name: "alice"}, {ConnID: "c2", Name: "bob"}}
}

func testProblem(answer float64) quiz.Problem {
	return quiz.Problem{
		Numbers:    []int{1, 2, 3, 4},
		Operations: []quiz.Operator{quiz.OpAdd, quiz.OpAdd, quiz.OpAdd},
		Answer:     answer,
	}
}

func TestSession_StatusIsMonotonic(t *testing.T) {
	s := newSession("s1", twoPlayers(), 30*time.Second, t0)
	assert.Equal(t, StatusWaiting, s.Status())

	require.True(t, s.Activate())
	assert.False(t, s.Activate(), "active cannot re-activate")
	assert.Equal(t, StatusActive, s.Status())

	require.True(t, s.Finish("alice"))
	assert.False(t, s.Finish("bob"), "second finish must not win the transition")
	assert.False(t, s.Activate(), "finished never regresses")
	assert.Equal(t, StatusFinished, s.Status())
	assert.Equal(t, "alice", s.Winner())
}

func TestSession_ForcedFinishFromWaiting(t *testing.T) {
	s := newSession("s1", twoPlayers(), 30*time.Second, t0)
	require.True(t, s.Finish("bob"))
	assert.Equal(t, StatusFinished, s.Status())
	assert.False(t, s.Activate())
}

func TestSession_BeginCycleRequiresActive(t *testing.T) {
	s := newSession("s1", twoPlayers(), 30*time.Second, t0)

	_, ok := s.BeginCycle(testProblem(1), t0)
	assert.False(t, ok, "waiting sessions do not issue problems")

	s.Activate()
	seq, ok := s.BeginCycle(testProblem(1), t0)
	require.True(t, ok)
	assert.Equal(t, int64(1), seq)

	seq, ok = s.BeginCycle(testProblem(2), t0.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, int64(2), seq)

	p, started, cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, 2.0, p.Answer)
	assert.Equal(t, t0.Add(time.Second), started)
	assert.Equal(t, int64(2), cur)

	s.Finish("")
	_, ok = s.BeginCycle(testProblem(3), t0)
	assert.False(t, ok)
}

func TestSession_ResolveCycleOnlyOnce(t *testing.T) {
	s := newSession("s1", twoPlayers(), 30*time.Second, t0)
	s.Activate()
	seq, _ := s.BeginCycle(testProblem(1), t0)

	assert.True(t, s.ResolveCycle(seq))
	assert.False(t, s.ResolveCycle(seq), "second resolution is a duplicate")

	next, _ := s.BeginCycle(testProblem(2), t0)
	assert.False(t, s.ResolveCycle(seq), "stale sequence")
	assert.True(t, s.IsCurrent(next))
	assert.False(t, s.IsCurrent(seq))

	s.Finish("")
	assert.False(t, s.ResolveCycle(next))
	assert.False(t, s.IsCurrent(next))
}

func TestSession_ScoreClampsAtZero(t *testing.T) {
	s := newSession("s1", twoPlayers(), 30*time.Second, t0)
	s.Activate()

	p, ok := s.Score("c1", -50, false, 0)
	require.True(t, ok)
	assert.Equal(t, 0, p.Score)
	assert.Equal(t, 0, p.Correct)

	p, _ = s.Score("c1", 350, true, 5*time.Second)
	assert.Equal(t, 350, p.Score)
	assert.Equal(t, 1, p.Correct)
	assert.Equal(t, 5*time.Second, p.BestTime)

	p, _ = s.Score("c1", 200, true, 8*time.Second)
	assert.Equal(t, 5*time.Second, p.BestTime, "slower answer keeps best time")

	p, _ = s.Score("c1", -1000, false, 0)
	assert.Equal(t, 0, p.Score)

	_, ok = s.Score("nobody", 100, true, 0)
	assert.False(t, ok)
}

func TestSession_ScoreFrozenAfterFinish(t *testing.T) {
	s := newSession("s1", twoPlayers(), 30*time.Second, t0)
	s.Activate()
	s.Score("c1", 500, true, time.Second)
	s.Finish("alice")

	_, ok := s.Score("c1", 100, true, time.Second)
	assert.False(t, ok)
	p, _ := s.Player("c1")
	assert.Equal(t, 500, p.Score)
}

func TestSession_Snapshot(t *testing.T) {
	s := newSession("s1", twoPlayers(), 30*time.Second, t0)
	s.Activate()
	s.BeginCycle(testProblem(1), t0)
	s.SetConnected("c2", false)

	snap := s.Snapshot()
	assert.Equal(t, "s1", snap.ID)
	assert.Equal(t, StatusActive, snap.Status)
	assert.Equal(t, int64(1), snap.Seq)
	require.Len(t, snap.Players, 2)
	assert.False(t, snap.Players[1].Connected)

	snap.Players[0].Score = 999
	p, _ := s.Player("c1")
	assert.Equal(t, 0, p.Score, "snapshot is a copy")
}

func TestSession_ExpireWithdrawsProblem(t *testing.T) {
	s := newSession("s1", twoPlayers(), 30*time.Second, t0)
	s.Activate()
	seq, _ := s.BeginCycle(testProblem(1), t0)

	require.True(t, s.Expire(seq))
	_, _, _, ok := s.Current()
	assert.False(t, ok, "expired cycle has no current problem")
	assert.False(t, s.Expire(seq), "second expiry is a duplicate")
	assert.False(t, s.ResolveCycle(seq), "expired cycle is already resolved")

	next, _ := s.BeginCycle(testProblem(2), t0.Add(32*time.Second))
	assert.False(t, s.Expire(seq), "stale sequence")
	assert.True(t, s.IsCurrent(next))
}

func TestSession_ExpireAfterCorrectAnswerIsNoop(t *testing.T) {
	s := newSession("s1", twoPlayers(), 30*time.Second, t0)
	s.Activate()
	seq, _ := s.BeginCycle(testProblem(1), t0)

	require.True(t, s.ResolveCycle(seq))
	assert.False(t, s.Expire(seq))
	_, _, _, ok := s.Current()
	assert.True(t, ok)
}

func TestSession_OneSolvePerCycle(t *testing.T) {
	s := newSession("s1", twoPlayers(), 30*time.Second, t0)
	s.Activate()
	s.BeginCycle(testProblem(1), t0)

	p, ok := s.Score("c1", 300, true, time.Second)
	require.True(t, ok)
	assert.Equal(t, 300, p.Score)

	_, ok = s.Score("c1", 300, true, time.Second)
	assert.False(t, ok, "same player cannot solve the cycle twice")
	_, ok = s.Score("c1", -50, false, 0)
	assert.False(t, ok, "solved player's later answers are ignored")

	p, ok = s.Score("c2", 250, true, 2*time.Second)
	require.True(t, ok, "other players may still solve")
	assert.Equal(t, 250, p.Score)

	s.BeginCycle(testProblem(2), t0.Add(time.Minute))
	p, ok = s.Score("c1", 200, true, time.Second)
	require.True(t, ok, "next cycle reopens scoring")
	assert.Equal(t, 500, p.Score)
}

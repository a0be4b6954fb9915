package session

import (
	"sync"
	"time"

	"github.com/roach88/quizarena/internal/quiz"
)

// Status is a session lifecycle state.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Member identifies a connection joining a session.
type Member struct {
	ConnID string
	Name   string
}

// Player is a participant's in-session record. Values handed out by Session
// are copies; only Session methods mutate the original.
type Player struct {
	ConnID    string        `json:"-"`
	Name      string        `json:"playerName"`
	Score     int           `json:"score"`
	Correct   int           `json:"correctAnswers"`
	Connected bool          `json:"connected"`
	BestTime  time.Duration `json:"-"` // fastest correct answer, zero if none

	solvedSeq int64
}

// Snapshot is a point-in-time view of a session for status endpoints.
type Snapshot struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Players   []Player  `json:"players"`
	Seq       int64     `json:"problemNumber"`
	Winner    string    `json:"winner,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is one live match of 2–4 players.
type Session struct {
	ID        string
	Budget    time.Duration // per-problem time budget
	CreatedAt time.Time

	mu       sync.Mutex
	players  []*Player
	status   Status
	problem  *quiz.Problem
	started  time.Time
	seq      int64
	resolved int64 // highest cycle already timed out or answered first
	winner   string
}

func newSession(id string, members []Member, budget time.Duration, now time.Time) *Session {
	s := &Session{
		ID:        id,
		Budget:    budget,
		CreatedAt: now,
		status:    StatusWaiting,
		players:   make([]*Player, 0, len(members)),
	}
	for _, m := range members {
		s.players = append(s.players, &Player{ConnID: m.ConnID, Name: m.Name, Connected: true})
	}
	return s
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Seq returns the current problem sequence number (0 before the first cycle).
func (s *Session) Seq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Winner returns the recorded winner, empty if none.
func (s *Session) Winner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winner
}

// Activate moves waiting → active. Returns false from any other state.
func (s *Session) Activate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusWaiting {
		return false
	}
	s.status = StatusActive
	return true
}

// Finish moves waiting or active → finished and records winner.
// Only the call that performs the transition returns true.
func (s *Session) Finish(winner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishLocked(winner)
}

func (s *Session) finishLocked(winner string) bool {
	if s.status == StatusFinished {
		return false
	}
	s.status = StatusFinished
	s.winner = winner
	return true
}

// BeginCycle installs p as the current problem and returns its sequence
// number. Only legal while active.
func (s *Session) BeginCycle(p quiz.Problem, now time.Time) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return 0, false
	}
	s.seq++
	s.problem = &p
	s.started = now
	return s.seq, true
}

// Current returns the live problem, its start time and sequence number.
func (s *Session) Current() (quiz.Problem, time.Time, int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.problem == nil {
		return quiz.Problem{}, time.Time{}, 0, false
	}
	return *s.problem, s.started, s.seq, true
}

// ResolveCycle marks cycle seq as resolved (first correct answer or timeout).
// It returns true only for the first resolution of the still-current cycle of
// an active session; stale or repeated resolutions return false.
func (s *Session) ResolveCycle(seq int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive || seq != s.seq || s.resolved >= seq {
		return false
	}
	s.resolved = seq
	return true
}

// Expire resolves cycle seq by timeout and withdraws its problem, so later
// submissions for it find no current problem. Same guards as ResolveCycle.
func (s *Session) Expire(seq int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive || seq != s.seq || s.resolved >= seq {
		return false
	}
	s.resolved = seq
	s.problem = nil
	return true
}

// IsCurrent reports whether seq is still the live cycle of an active session.
func (s *Session) IsCurrent(seq int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusActive && seq == s.seq
}

// Score applies delta to a player's score, clamping at zero. A correct answer
// also increments the correct count and records elapsed as a best time when
// it improves on the previous one. No-op once finished, and for a player who
// already solved the current cycle.
func (s *Session) Score(connID string, delta int, correct bool, elapsed time.Duration) (Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusFinished {
		return Player{}, false
	}
	p := s.find(connID)
	if p == nil || (s.seq > 0 && p.solvedSeq == s.seq) {
		return Player{}, false
	}
	p.Score = max(0, p.Score+delta)
	if correct {
		p.solvedSeq = s.seq
		p.Correct++
		if p.BestTime == 0 || elapsed < p.BestTime {
			p.BestTime = elapsed
		}
	}
	return *p, true
}

// SetConnected flags a member as connected or not.
func (s *Session) SetConnected(connID string, connected bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.find(connID)
	if p == nil {
		return false
	}
	p.Connected = connected
	return true
}

// Player returns a copy of the member with connID.
func (s *Session) Player(connID string) (Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.find(connID)
	if p == nil {
		return Player{}, false
	}
	return *p, true
}

// Players returns copies of all members in join order.
func (s *Session) Players() []Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyPlayers()
}

// Members returns the connection ids of all members in join order.
func (s *Session) Members() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.players))
	for i, p := range s.players {
		ids[i] = p.ConnID
	}
	return ids
}

// Len returns the member count.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

// Snapshot returns a consistent view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:        s.ID,
		Status:    s.status,
		Players:   s.copyPlayers(),
		Seq:       s.seq,
		Winner:    s.winner,
		CreatedAt: s.CreatedAt,
	}
}

func (s *Session) copyPlayers() []Player {
	out := make([]Player, len(s.players))
	for i, p := range s.players {
		out[i] = *p
	}
	return out
}

func (s *Session) find(connID string) *Player {
	for _, p := range s.players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

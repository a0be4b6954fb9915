package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// MinPlayers is the smallest viable session.
	MinPlayers = 2
	// MaxPlayers is the session capacity.
	MaxPlayers = 4
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionFull      = errors.New("session is full")
	ErrNotWaiting       = errors.New("session is not waiting for players")
	ErrInvalidGroupSize = errors.New("invalid group size")
	ErrAlreadySeated    = errors.New("connection already belongs to a session")
)

// Removal describes the outcome of RemovePlayer.
type Removal struct {
	SessionID string
	Player    Player
	Remaining int
	// Finished is true when the removal forced the session to finish.
	Finished bool
	Winner   string
}

// Registry owns the authoritative set of sessions and the connection→session
// reverse index.
//
// Thread-safety: all methods are safe for concurrent use. Sweep may run
// concurrently with live traffic.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byConn   map[string]string

	ids    IDGenerator
	now    func() time.Time
	budget time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithIDGenerator overrides the session id generator (default UUIDv7).
func WithIDGenerator(g IDGenerator) RegistryOption {
	return func(r *Registry) { r.ids = g }
}

// WithNow overrides the time source used for creation timestamps.
func WithNow(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithBudget sets the per-problem time budget stamped on new sessions.
func WithBudget(d time.Duration) RegistryOption {
	return func(r *Registry) { r.budget = d }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		byConn:   make(map[string]string),
		ids:      UUIDv7Generator{},
		now:      time.Now,
		budget:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create allocates a waiting session for members and indexes every member.
// The caller activates it once problem delivery begins.
func (r *Registry) Create(members []Member) (*Session, error) {
	if len(members) < MinPlayers || len(members) > MaxPlayers {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGroupSize, len(members))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if _, ok := r.byConn[m.ConnID]; ok || seen[m.ConnID] {
			return nil, fmt.Errorf("%w: %s", ErrAlreadySeated, m.ConnID)
		}
		seen[m.ConnID] = true
	}

	s := newSession(r.ids.Generate(), members, r.budget, r.now())
	r.sessions[s.ID] = s
	for _, m := range members {
		r.byConn[m.ConnID] = s.ID
	}
	return s, nil
}

// Find returns the session with id.
func (r *Registry) Find(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// FindByConn returns the session a connection belongs to.
func (r *Registry) FindByConn(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byConn[connID]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[id]
	return s, ok
}

// AddPlayer seats m in a waiting session that has room.
func (r *Registry) AddPlayer(id string, m Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if _, seated := r.byConn[m.ConnID]; seated {
		return ErrAlreadySeated
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusWaiting {
		return ErrNotWaiting
	}
	if len(s.players) >= MaxPlayers {
		return ErrSessionFull
	}
	s.players = append(s.players, &Player{ConnID: m.ConnID, Name: m.Name, Connected: true})
	r.byConn[m.ConnID] = id
	return nil
}

// RemovePlayer removes a connection from its session and from the index.
// If an active session drops below MinPlayers it is forced to finish, and a
// sole survivor becomes the winner.
func (r *Registry) RemovePlayer(connID string) (Removal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byConn[connID]
	if !ok {
		return Removal{}, false
	}
	delete(r.byConn, connID)

	s, ok := r.sessions[id]
	if !ok {
		return Removal{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, p := range s.players {
		if p.ConnID == connID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Removal{}, false
	}

	removed := *s.players[idx]
	s.players = append(s.players[:idx], s.players[idx+1:]...)

	out := Removal{SessionID: id, Player: removed, Remaining: len(s.players)}
	if len(s.players) < MinPlayers && s.status == StatusActive {
		winner := ""
		if len(s.players) == 1 {
			winner = s.players[0].Name
		}
		out.Finished = s.finishLocked(winner)
		out.Winner = winner
	}
	return out, true
}

// Remove destroys a session and unindexes all its members.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

func (r *Registry) removeLocked(id string) bool {
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	for _, connID := range s.Members() {
		if r.byConn[connID] == id {
			delete(r.byConn, connID)
		}
	}
	delete(r.sessions, id)
	return true
}

// Sweep removes every finished session and every session older than maxAge,
// whatever its status. Returns the number removed.
func (r *Registry) Sweep(maxAge time.Duration) int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var doomed []string
	for id, s := range r.sessions {
		if s.Status() == StatusFinished || now.Sub(s.CreatedAt) > maxAge {
			doomed = append(doomed, id)
		}
	}
	for _, id := range doomed {
		r.removeLocked(id)
	}
	return len(doomed)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Indexed returns the number of connections in the reverse index.
func (r *Registry) Indexed() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

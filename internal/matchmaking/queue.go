package matchmaking

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// Defaults mirror the documented tuning.
const (
	DefaultTickInterval      = 5 * time.Second
	DefaultMaxWait           = 60 * time.Second
	DefaultFairnessThreshold = 200
	DefaultMinPlayers        = 2
	DefaultMaxPlayers        = 4

	// perPlayerWait is the rough time one more player takes to arrive.
	perPlayerWait = 15 * time.Second
)

// Config tunes match formation.
type Config struct {
	MinPlayers        int
	MaxPlayers        int
	MaxWait           time.Duration
	FairnessThreshold int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MinPlayers:        DefaultMinPlayers,
		MaxPlayers:        DefaultMaxPlayers,
		MaxWait:           DefaultMaxWait,
		FairnessThreshold: DefaultFairnessThreshold,
	}
}

// Entry is one waiting player.
type Entry struct {
	ConnID   string
	Name     string
	JoinedAt time.Time
	Rating   int
}

// TickResult is the outcome of one matchmaking tick.
type TickResult struct {
	Matches [][]Entry
	Expired []Entry
}

// WaitingPlayer is a public view of a queue entry.
type WaitingPlayer struct {
	Name        string        `json:"playerName"`
	WaitingTime time.Duration `json:"waitingTime"`
}

// Status summarises the queue.
type Status struct {
	Waiting       int             `json:"waiting"`
	EstimatedWait *time.Duration  `json:"estimatedWait"`
	Players       []WaitingPlayer `json:"players"`
}

// Queue holds players awaiting a session.
//
// Thread-safety: all methods are safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	cfg     Config
	entries []Entry
}

// NewQueue creates an empty queue.
func NewQueue(cfg Config) *Queue {
	return &Queue{cfg: cfg}
}

// Enqueue adds a player, replacing any earlier entry for the same connection.
// Returns the queue length afterwards.
func (q *Queue) Enqueue(connID, name string, h History, now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.removeLocked(connID)
	q.entries = append(q.entries, Entry{
		ConnID:   connID,
		Name:     name,
		JoinedAt: now,
		Rating:   Rating(h),
	})
	return len(q.entries)
}

// Dequeue removes a connection's entry. Returns whether one was removed.
func (q *Queue) Dequeue(connID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(connID)
}

func (q *Queue) removeLocked(connID string) bool {
	i := slices.IndexFunc(q.entries, func(e Entry) bool { return e.ConnID == connID })
	if i < 0 {
		return false
	}
	q.entries = slices.Delete(q.entries, i, i+1)
	return true
}

// Contains reports whether connID is waiting.
func (q *Queue) Contains(connID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.ContainsFunc(q.entries, func(e Entry) bool { return e.ConnID == connID })
}

// Len returns the number of waiting players.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Tick forms matches and then evicts entries older than MaxWait.
func (q *Queue) Tick(now time.Time) TickResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	var res TickResult
	if len(q.entries) >= q.cfg.MinPlayers {
		var used map[string]bool
		res.Matches, used = q.formMatches(now)
		q.entries = slices.DeleteFunc(q.entries, func(e Entry) bool { return used[e.ConnID] })
	}

	q.entries = slices.DeleteFunc(q.entries, func(e Entry) bool {
		if now.Sub(e.JoinedAt) > q.cfg.MaxWait {
			res.Expired = append(res.Expired, e)
			return true
		}
		return false
	})
	return res
}

// formMatches partitions a sorted copy of the entries without touching
// q.entries, so indices stay stable for the whole scan.
func (q *Queue) formMatches(now time.Time) ([][]Entry, map[string]bool) {
	sorted := slices.Clone(q.entries)
	slices.SortStableFunc(sorted, func(a, b Entry) int {
		if c := cmp.Compare(a.Rating, b.Rating); c != 0 {
			return c
		}
		return a.JoinedAt.Compare(b.JoinedAt)
	})

	used := make(map[string]bool, len(sorted))
	var matches [][]Entry

	size := q.cfg.MaxPlayers
	for i := 0; i+size <= len(sorted); {
		window := sorted[i : i+size]
		if q.fair(window) || q.forced(window, now) {
			matches = append(matches, slices.Clone(window))
			for _, e := range window {
				used[e.ConnID] = true
			}
			i += size
			continue
		}
		i++
	}

	for _, e := range sorted {
		if used[e.ConnID] {
			continue
		}
		var partners []Entry
		for _, o := range sorted {
			if !used[o.ConnID] && o.ConnID != e.ConnID {
				partners = append(partners, o)
			}
		}
		need := q.cfg.MinPlayers - 1
		if len(partners) < need {
			break
		}
		slices.SortStableFunc(partners, func(a, b Entry) int {
			return cmp.Compare(abs(a.Rating-e.Rating), abs(b.Rating-e.Rating))
		})
		group := append([]Entry{e}, partners[:need]...)
		matches = append(matches, group)
		for _, g := range group {
			used[g.ConnID] = true
		}
	}

	return matches, used
}

func (q *Queue) fair(window []Entry) bool {
	return window[len(window)-1].Rating-window[0].Rating <= q.cfg.FairnessThreshold
}

func (q *Queue) forced(window []Entry, now time.Time) bool {
	return slices.ContainsFunc(window, func(e Entry) bool {
		return now.Sub(e.JoinedAt) > q.cfg.MaxWait/2
	})
}

// Status reports queue length, a rough wait estimate and per-player waits.
// The estimate is nil when fewer than MinPlayers are waiting.
func (q *Queue) Status(now time.Time) Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := Status{Waiting: len(q.entries), Players: make([]WaitingPlayer, 0, len(q.entries))}
	for _, e := range q.entries {
		st.Players = append(st.Players, WaitingPlayer{Name: e.Name, WaitingTime: now.Sub(e.JoinedAt)})
	}
	if len(q.entries) >= q.cfg.MinPlayers {
		needed := q.cfg.MaxPlayers - len(q.entries)%q.cfg.MaxPlayers
		est := time.Duration(needed) * perPlayerWait
		st.EstimatedWait = &est
	}
	return st
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const (
	// DefaultLimit is the page size used when a ranked read asks for none.
	DefaultLimit = 50
	// MaxLimit caps a single ranked page.
	MaxLimit = 500
)

// ErrNotFound is returned when a player has no stored record.
var ErrNotFound = errors.New("player not found")

// rankingOrder is the leaderboard order. Players with no best time sort after
// those with one at equal score and problems solved.
var rankingOrder = []string{
	"score DESC",
	"problems_solved DESC",
	"best_time_ms IS NULL",
	"best_time_ms ASC",
	"name ASC",
}

var playerColumns = []string{
	"name", "score", "problems_solved", "best_time_ms",
	"games_played", "wins", "last_played", "joined",
}

const upsertConflict = `ON CONFLICT(name) DO UPDATE SET
	score = MAX(players.score, excluded.score),
	problems_solved = players.problems_solved + excluded.problems_solved,
	best_time_ms = CASE
		WHEN excluded.best_time_ms IS NOT NULL
		 AND (players.best_time_ms IS NULL OR excluded.best_time_ms < players.best_time_ms)
		THEN excluded.best_time_ms
		ELSE players.best_time_ms END,
	games_played = players.games_played + 1,
	wins = players.wins + excluded.wins,
	last_played = excluded.last_played`

// PlayerRecord is a stored player.
type PlayerRecord struct {
	Name           string    `json:"name"`
	Score          int       `json:"score"`
	ProblemsSolved int       `json:"problemsSolved"`
	BestTimeMs     *int64    `json:"bestTime"`
	GamesPlayed    int       `json:"gamesPlayed"`
	Wins           int       `json:"wins"`
	LastPlayed     time.Time `json:"lastPlayed"`
	Joined         time.Time `json:"joined"`
}

// Result is one player's outcome to merge into the store.
type Result struct {
	Name           string
	Score          int
	ProblemsSolved int
	// BestTime is the fastest correct answer; zero means none.
	BestTime time.Duration
	Won      bool
}

// Page is one slice of the ranked leaderboard.
type Page struct {
	Players []PlayerRecord `json:"players"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// Rank is a player's position on the leaderboard (1-based).
type Rank struct {
	Rank         int          `json:"rank"`
	Player       PlayerRecord `json:"player"`
	TotalPlayers int          `json:"totalPlayers"`
}

// Stats summarises the whole leaderboard.
type Stats struct {
	TopScore            int    `json:"topScore"`
	MostProblems        int    `json:"mostProblems"`
	BestTimeMs          *int64 `json:"bestTime"`
	TotalPlayers        int    `json:"totalPlayers"`
	TotalProblemsSolved int    `json:"totalProblemsSolved"`
}

// Upsert merges r into the player's stored record, creating it on first
// sight, and returns the merged record.
func (s *Store) Upsert(ctx context.Context, r Result) (PlayerRecord, error) {
	if r.Name == "" {
		return PlayerRecord{}, errors.New("upsert: empty player name")
	}

	now := s.now().UnixMilli()
	var best any
	if r.BestTime > 0 {
		best = r.BestTime.Milliseconds()
	}
	wins := 0
	if r.Won {
		wins = 1
	}

	query, args, err := sq.Insert("players").
		Columns(playerColumns...).
		Values(r.Name, max(0, r.Score), max(0, r.ProblemsSolved), best, 1, wins, now, now).
		Suffix(upsertConflict).
		ToSql()
	if err != nil {
		return PlayerRecord{}, fmt.Errorf("building upsert: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PlayerRecord{}, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return PlayerRecord{}, fmt.Errorf("upserting player %q: %w", r.Name, err)
	}

	rec, err := lookup(ctx, tx, r.Name)
	if err != nil {
		return PlayerRecord{}, err
	}

	if err := tx.Commit(); err != nil {
		return PlayerRecord{}, fmt.Errorf("commit upsert: %w", err)
	}
	return rec, nil
}

// Lookup returns the stored record for name, or ErrNotFound.
func (s *Store) Lookup(ctx context.Context, name string) (PlayerRecord, error) {
	return lookup(ctx, s.db, name)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lookup(ctx context.Context, db queryRower, name string) (PlayerRecord, error) {
	query, args, err := sq.Select(playerColumns...).
		From("players").
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return PlayerRecord{}, fmt.Errorf("building lookup: %w", err)
	}

	rec, err := scanPlayer(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return PlayerRecord{}, ErrNotFound
	}
	if err != nil {
		return PlayerRecord{}, fmt.Errorf("looking up player %q: %w", name, err)
	}
	return rec, nil
}

// Ranked returns one page of the leaderboard plus the total player count.
// A non-positive limit selects DefaultLimit; limits above MaxLimit are capped.
func (s *Store) Ranked(ctx context.Context, limit, offset int) (Page, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	offset = max(0, offset)

	query, args, err := sq.Select(playerColumns...).
		From("players").
		OrderBy(rankingOrder...).
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return Page{}, fmt.Errorf("building ranked query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer func() { _ = rows.Close() }()

	page := Page{Players: make([]PlayerRecord, 0, limit), Limit: limit, Offset: offset}
	for rows.Next() {
		rec, err := scanPlayer(rows)
		if err != nil {
			return Page{}, fmt.Errorf("scanning leaderboard row: %w", err)
		}
		page.Players = append(page.Players, rec)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterating leaderboard rows: %w", err)
	}

	total, err := s.count(ctx)
	if err != nil {
		return Page{}, err
	}
	page.Total = total
	return page, nil
}

func (s *Store) count(ctx context.Context) (int, error) {
	query, args, err := sq.Select("COUNT(*)").From("players").ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting players: %w", err)
	}
	return n, nil
}

// RankOf returns name's leaderboard position, or ErrNotFound.
func (s *Store) RankOf(ctx context.Context, name string) (Rank, error) {
	ranked := sq.Select(playerColumns...).
		Column("ROW_NUMBER() OVER (ORDER BY " + strings.Join(rankingOrder, ", ") + ") AS player_rank").
		Column("COUNT(*) OVER () AS total_players").
		From("players")

	cols := append(append([]string{}, playerColumns...), "player_rank", "total_players")
	query, args, err := sq.Select(cols...).
		FromSelect(ranked, "ranked").
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return Rank{}, fmt.Errorf("building rank query: %w", err)
	}

	var (
		out        Rank
		best       sql.NullInt64
		last, join int64
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&out.Player.Name, &out.Player.Score, &out.Player.ProblemsSolved, &best,
		&out.Player.GamesPlayed, &out.Player.Wins, &last, &join,
		&out.Rank, &out.TotalPlayers,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Rank{}, ErrNotFound
	}
	if err != nil {
		return Rank{}, fmt.Errorf("ranking player %q: %w", name, err)
	}
	fillPlayer(&out.Player, best, last, join)
	return out, nil
}

// TopStats summarises the leaderboard. An empty store yields zero values and
// a nil best time.
func (s *Store) TopStats(ctx context.Context) (Stats, error) {
	query, args, err := sq.Select(
		"COALESCE(MAX(score), 0)",
		"COALESCE(MAX(problems_solved), 0)",
		"MIN(best_time_ms)",
		"COUNT(*)",
		"COALESCE(SUM(problems_solved), 0)",
	).From("players").ToSql()
	if err != nil {
		return Stats{}, fmt.Errorf("building stats query: %w", err)
	}

	var (
		st   Stats
		best sql.NullInt64
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&st.TopScore, &st.MostProblems, &best, &st.TotalPlayers, &st.TotalProblemsSolved,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("querying stats: %w", err)
	}
	if best.Valid {
		v := best.Int64
		st.BestTimeMs = &v
	}
	return st, nil
}

// PruneInactive deletes players whose last game is older than inactive.
// Returns the number deleted.
func (s *Store) PruneInactive(ctx context.Context, inactive time.Duration) (int64, error) {
	cutoff := s.now().Add(-inactive).UnixMilli()
	query, args, err := sq.Delete("players").Where(sq.Lt{"last_played": cutoff}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("building prune query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("pruning inactive players: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning inactive players: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row scanner) (PlayerRecord, error) {
	var (
		rec        PlayerRecord
		best       sql.NullInt64
		last, join int64
	)
	if err := row.Scan(&rec.Name, &rec.Score, &rec.ProblemsSolved, &best,
		&rec.GamesPlayed, &rec.Wins, &last, &join); err != nil {
		return PlayerRecord{}, err
	}
	fillPlayer(&rec, best, last, join)
	return rec, nil
}

func fillPlayer(rec *PlayerRecord, best sql.NullInt64, last, join int64) {
	if best.Valid {
		v := best.Int64
		rec.BestTimeMs = &v
	}
	rec.LastPlayed = time.UnixMilli(last).UTC()
	rec.Joined = time.UnixMilli(join).UTC()
}

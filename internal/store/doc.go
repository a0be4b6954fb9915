// Package store provides the SQLite-backed Score Store: a durable, ranked
// record of players keyed by display name.
//
// # Merge semantics
//
// Upsert never lowers what a player has achieved:
//   - score becomes max(stored, submitted)
//   - problems_solved accumulates
//   - best_time_ms is replaced only by a strictly faster time
//   - games_played and wins accumulate; last_played refreshes
//
// # Ranking
//
// Ranked reads order by score DESC, problems_solved DESC, then best time ASC
// with players lacking a best time last, and finally name for determinism.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - schema managed by golang-migrate from embedded migrations/*.sql
//
// Timestamps are stored as INTEGER unix milliseconds.
package store

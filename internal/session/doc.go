// Package session owns live game sessions and the connection→session index.
//
// A Session moves through a strictly monotonic status machine:
//
//	waiting → active → finished
//
// waiting → finished is permitted only as a forced end (e.g. a disconnect
// before the first problem). Nothing leaves finished; every mutator checks
// status first and becomes a no-op once the session has finished.
//
// Each Session guards its own fields with a mutex so status reads from the
// HTTP surface never race the engine. Multi-step decisions (score, then check
// the winning threshold) are serialized by the engine's single event loop,
// not by this package.
//
// The Registry keeps the reverse index (connection id → session id) strictly
// consistent with membership: every add, remove, create, and sweep updates
// both maps under one registry lock.
package session

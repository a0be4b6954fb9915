// Package gateway is the network boundary of the arena.
//
// A Hub tracks live WebSocket connections and implements engine.Transport:
// each connection owns a buffered send queue drained by a write pump, so the
// engine loop never blocks on a slow client. Frames that do not fit in the
// buffer are dropped and logged.
//
// Server routes HTTP traffic with httprouter:
//
//	GET  /ws                      WebSocket upgrade (multiplayer protocol)
//	GET  /api/queue               matchmaking queue status
//	GET  /api/sessions/:id        session snapshot
//	POST /api/sessions/:id/end    force-end a session, optional {"winner": name}
//	GET  /api/problem             one generated problem (single-player)
//	POST /api/score               merge a single-player result
//	GET  /api/leaderboard         ranked players, ?limit=&offset=
//	GET  /api/leaderboard/:name   one player's rank
//	GET  /api/stats               leaderboard summary
//
// Inbound WebSocket frames are decoded with protocol.Decode. Decode failures
// are answered with an error frame; valid requests are forwarded to the
// engine, which only enqueues. When a connection's read pump ends the engine
// is told the connection is gone.
package gateway

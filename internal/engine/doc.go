// Package engine implements the arena session engine.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every mutation of the matchmaking queue, the session registry and the
// sessions themselves happens on one goroutine, the one running Run. This
// gives:
// - No two events ever mutate the same session concurrently
// - Timer firings serialised with live traffic
// - Simple reasoning about ordering
//
// Event Processing Flow:
// 1. Transport callbacks (Join, Leave, Submit, Disconnect, ForceEnd) enqueue
// 2. Timers armed through the Scheduler enqueue when they fire
// 3. Run dequeues events one at a time in FIFO order
// 4. processEvent routes to the handler for the event kind
// 5. Handlers mutate state and deliver outbound messages via the Transport
//
// Timers never touch state directly. A timer armed for problem cycle N
// carries N in its event; the handler discards the event if the session has
// moved past N or finished. Ending a session stops its timers, but a timer
// that already fired is harmless because of that check.
//
// Score Store writes happen in the loop with a bounded timeout; a failed
// write is logged and never blocks the end-of-session broadcast.
package engine

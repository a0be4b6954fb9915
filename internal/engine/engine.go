package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/quizarena/internal/matchmaking"
	"github.com/roach88/quizarena/internal/protocol"
	"github.com/roach88/quizarena/internal/quiz"
	"github.com/roach88/quizarena/internal/session"
	"github.com/roach88/quizarena/internal/store"
)

// Transport delivers outbound messages to connections. Delivery to an
// unknown or closed connection is silently dropped.
type Transport interface {
	Deliver(connID string, msg protocol.Outbound)
	DeliverAll(connIDs []string, msg protocol.Outbound)
}

// ScoreStore is the durable player record the engine reads ratings from and
// flushes results to. Implemented by *store.Store.
type ScoreStore interface {
	Upsert(ctx context.Context, r store.Result) (store.PlayerRecord, error)
	Lookup(ctx context.Context, name string) (store.PlayerRecord, error)
	PruneInactive(ctx context.Context, inactive time.Duration) (int64, error)
}

// Engine is the single-writer session engine.
//
// CRITICAL: All mutations happen in the goroutine running Run (or Drain).
// External callers use Join, Leave, Submit, Disconnect and ForceEnd, which
// only enqueue.
//
// Thread-safety model:
//   - Join/Leave/Submit/Disconnect/ForceEnd: safe from any goroutine
//   - Registry/QueueStatus: safe from any goroutine (read-only views)
//   - Run/Drain: must be called from exactly one goroutine
type Engine struct {
	cfg       Config
	inbox     *inbox
	clock     *Clock
	sched     Scheduler
	waiting   *matchmaking.Queue
	registry  *session.Registry
	problems  quiz.Source
	scores    ScoreStore
	transport Transport

	// Loop-only state.
	timers  map[string][]Timer // armed per-session timers
	ticker  Timer
	sweeper Timer
	started bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default game rules.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithScheduler overrides the time source and timers (default SystemScheduler).
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// WithRegistry supplies a pre-built session registry. By default one is built
// from the scheduler's clock and the configured problem budget.
func WithRegistry(r *session.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// New creates an Engine.
func New(problems quiz.Source, scores ScoreStore, transport Transport, opts ...Option) *Engine {
	e := &Engine{
		cfg:       DefaultConfig(),
		inbox:     newInbox(),
		clock:     NewClock(),
		sched:     SystemScheduler{},
		problems:  problems,
		scores:    scores,
		transport: transport,
		timers:    make(map[string][]Timer),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.waiting = matchmaking.NewQueue(e.cfg.Matchmaking)
	if e.registry == nil {
		e.registry = session.NewRegistry(
			session.WithNow(e.sched.Now),
			session.WithBudget(e.cfg.ProblemBudget),
		)
	}
	return e
}

// Config returns the active game rules.
func (e *Engine) Config() Config {
	return e.cfg
}

// Registry exposes the session registry for read-only status queries.
func (e *Engine) Registry() *session.Registry {
	return e.registry
}

// QueueStatus summarises the matchmaking queue.
func (e *Engine) QueueStatus() matchmaking.Status {
	return e.waiting.Status(e.sched.Now())
}

// Join queues connID for matchmaking under name. Name must already be
// normalised. Returns false if the engine has been stopped.
func (e *Engine) Join(connID, name string) bool {
	return e.enqueue(Event{Kind: EventJoin, ConnID: connID, Name: name})
}

// Leave withdraws connID from matchmaking.
func (e *Engine) Leave(connID string) bool {
	return e.enqueue(Event{Kind: EventLeave, ConnID: connID})
}

// Submit answers the current problem of sessionID on behalf of connID.
func (e *Engine) Submit(connID, sessionID string, answer float64) bool {
	return e.enqueue(Event{Kind: EventSubmit, ConnID: connID, SessionID: sessionID, Answer: answer})
}

// Disconnect reports that connID has gone away.
func (e *Engine) Disconnect(connID string) bool {
	return e.enqueue(Event{Kind: EventDisconnect, ConnID: connID})
}

// ForceEnd ends sessionID, crediting winner (may be empty).
func (e *Engine) ForceEnd(sessionID, winner string) bool {
	return e.enqueue(Event{Kind: EventForceEnd, SessionID: sessionID, Winner: winner})
}

func (e *Engine) enqueue(ev Event) bool {
	ev.Stamp = e.clock.Next()
	return e.inbox.post(ev)
}

// Start arms the periodic matchmaking and sweep timers. Run calls it; hosts
// that drive the engine with Drain call it once themselves. Idempotent.
func (e *Engine) Start() {
	if e.started {
		return
	}
	e.started = true
	e.armTick()
	e.armSweep()
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: On event processing failure, the error is logged with full
// event context and processing continues. No event error stops the loop.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting")
	e.Start()
	defer e.stopAllTimers()

	for {
		if batch := e.inbox.take(); len(batch) > 0 {
			e.process(ctx, batch)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.inbox.shutdown()
			return ctx.Err()
		case <-e.inbox.wake():
			// wake is closed on shutdown.
			if e.inbox.isShut() && e.inbox.size() == 0 {
				slog.Info("engine stopping: inbox closed")
				return nil
			}
		}
	}
}

// Drain processes every queued event on the caller's goroutine, including
// events enqueued while draining, and returns how many it processed.
// Must not be called concurrently with Run.
func (e *Engine) Drain(ctx context.Context) int {
	n := 0
	for {
		batch := e.inbox.take()
		if len(batch) == 0 {
			return n
		}
		e.process(ctx, batch)
		n += len(batch)
	}
}

func (e *Engine) process(ctx context.Context, batch []Event) {
	for _, ev := range batch {
		if err := e.processEvent(ctx, ev); err != nil {
			logEventError(ev, err)
		}
	}
}

// Stop gracefully shuts down the engine.
// Pending events are still processed before Run returns.
func (e *Engine) Stop() {
	e.inbox.shutdown()
}

// processEvent routes an event to the appropriate handler.
// CRITICAL: Called only from the loop goroutine - single-writer guarantee.
func (e *Engine) processEvent(ctx context.Context, ev Event) error {
	slog.Debug("processing event", "kind", ev.Kind, "stamp", ev.Stamp,
		"session_id", ev.SessionID, "conn_id", ev.ConnID, "seq", ev.Seq)

	var err error
	switch ev.Kind {
	case EventJoin:
		err = e.handleJoin(ctx, ev)
	case EventLeave:
		e.handleLeave(ev)
	case EventSubmit:
		err = e.handleSubmit(ctx, ev)
	case EventDisconnect:
		err = e.handleDisconnect(ctx, ev)
	case EventForceEnd:
		err = e.handleForceEnd(ctx, ev)
	case EventMatchTick:
		e.handleMatchTick()
	case EventSweep:
		e.handleSweep(ctx)
	case EventStart:
		err = e.handleStart(ev)
	case EventTimeout:
		err = e.handleTimeout(ev)
	case EventAdvance:
		err = e.handleAdvance(ev)
	default:
		err = fmt.Errorf("%w: %d", ErrUnknownEvent, int(ev.Kind))
	}
	if err != nil {
		return eventError(ev, err)
	}
	return nil
}

// arm schedules ev for sessionID after d. The callback only enqueues.
func (e *Engine) arm(sessionID string, d time.Duration, ev Event) {
	t := e.sched.AfterFunc(d, func() { e.enqueue(ev) })
	e.timers[sessionID] = append(e.timers[sessionID], t)
}

// stopTimers cancels every timer armed for sessionID.
func (e *Engine) stopTimers(sessionID string) {
	for _, t := range e.timers[sessionID] {
		t.Stop()
	}
	delete(e.timers, sessionID)
}

func (e *Engine) stopAllTimers() {
	for id := range e.timers {
		e.stopTimers(id)
	}
	if e.ticker != nil {
		e.ticker.Stop()
	}
	if e.sweeper != nil {
		e.sweeper.Stop()
	}
}

func (e *Engine) armTick() {
	if e.cfg.TickInterval <= 0 || e.inbox.isShut() {
		return
	}
	e.ticker = e.sched.AfterFunc(e.cfg.TickInterval, func() { e.enqueue(Event{Kind: EventMatchTick}) })
}

func (e *Engine) armSweep() {
	if e.cfg.SweepInterval <= 0 || e.inbox.isShut() {
		return
	}
	e.sweeper = e.sched.AfterFunc(e.cfg.SweepInterval, func() { e.enqueue(Event{Kind: EventSweep}) })
}

// broadcast delivers msg to every connected member of s.
func (e *Engine) broadcast(s *session.Session, msg protocol.Outbound) {
	var ids []string
	for _, p := range s.Players() {
		if p.Connected {
			ids = append(ids, p.ConnID)
		}
	}
	if len(ids) > 0 {
		e.transport.DeliverAll(ids, msg)
	}
}

// storeContext bounds one Score Store call.
func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.StoreTimeout)
}

// logEventError logs an event processing failure with full context.
func logEventError(ev Event, err error) {
	slog.Error("event processing failed",
		"error", err,
		"kind", ev.Kind,
		"stamp", ev.Stamp,
		"session_id", ev.SessionID,
		"conn_id", ev.ConnID,
		"seq", ev.Seq,
	)
}

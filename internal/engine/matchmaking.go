package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/quizarena/internal/matchmaking"
	"github.com/roach88/quizarena/internal/protocol"
	"github.com/roach88/quizarena/internal/session"
	"github.com/roach88/quizarena/internal/store"
)

const (
	waitingMessage = "Waiting for other players..."
	expiredMessage = "No match found. Please try again."
)

func (e *Engine) handleJoin(ctx context.Context, ev Event) error {
	if ev.ConnID == "" || ev.Name == "" {
		return ErrMissingField
	}
	if _, seated := e.registry.FindByConn(ev.ConnID); seated {
		e.transport.Deliver(ev.ConnID, protocol.Error{
			Code:    protocol.CodeAlreadyPlaying,
			Message: "already in a session",
		})
		return nil
	}

	n := e.waiting.Enqueue(ev.ConnID, ev.Name, e.history(ctx, ev.Name), e.sched.Now())
	e.transport.Deliver(ev.ConnID, protocol.Waiting{Message: waitingMessage, QueueLength: n})

	slog.Info("player queued", "conn_id", ev.ConnID, "player", ev.Name, "queue_length", n)
	return nil
}

// history reads the player's record for rating. Unknown players and store
// failures rate as newcomers.
func (e *Engine) history(ctx context.Context, name string) matchmaking.History {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()

	rec, err := e.scores.Lookup(ctx, name)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("rating lookup failed", "player", name, "error", err)
		}
		return matchmaking.History{}
	}
	return matchmaking.History{Wins: rec.Wins, Games: rec.GamesPlayed}
}

func (e *Engine) handleLeave(ev Event) {
	if e.waiting.Dequeue(ev.ConnID) {
		slog.Info("player left queue", "conn_id", ev.ConnID)
	}
}

func (e *Engine) handleMatchTick() {
	defer e.armTick()

	res := e.waiting.Tick(e.sched.Now())
	for _, x := range res.Expired {
		slog.Info("matchmaking expired", "conn_id", x.ConnID, "player", x.Name)
		e.transport.Deliver(x.ConnID, protocol.MatchmakingExpired{Message: expiredMessage})
	}
	for _, group := range res.Matches {
		e.startMatch(group)
	}
}

// startMatch seats a formed group in a new waiting session and schedules its
// first problem.
func (e *Engine) startMatch(group []matchmaking.Entry) {
	members := make([]session.Member, len(group))
	for i, g := range group {
		members[i] = session.Member{ConnID: g.ConnID, Name: g.Name}
	}

	s, err := e.registry.Create(members)
	if err != nil {
		slog.Error("session creation failed", "error", err, "players", len(members))
		for _, m := range members {
			e.transport.Deliver(m.ConnID, protocol.MatchmakingExpired{Message: expiredMessage})
		}
		return
	}

	e.broadcast(s, protocol.MatchFound{
		SessionID: s.ID,
		Players:   protocol.Scores(s.Players()),
		StartsIn:  e.cfg.StartDelay.Milliseconds(),
	})
	e.arm(s.ID, e.cfg.StartDelay, Event{Kind: EventStart, SessionID: s.ID})

	slog.Info("session created", "session_id", s.ID, "players", len(members))
}

func (e *Engine) handleSweep(ctx context.Context) {
	defer e.armSweep()

	n := e.registry.Sweep(e.cfg.SweepMaxAge)
	for id := range e.timers {
		if _, ok := e.registry.Find(id); !ok {
			e.stopTimers(id)
		}
	}
	if n > 0 {
		slog.Info("swept sessions", "removed", n, "remaining", e.registry.Len())
	}

	if e.cfg.PruneAfter <= 0 {
		return
	}
	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	pruned, err := e.scores.PruneInactive(sctx, e.cfg.PruneAfter)
	if err != nil {
		slog.Error("pruning inactive players failed", "error", err)
		return
	}
	if pruned > 0 {
		slog.Info("pruned inactive players", "removed", pruned)
	}
}

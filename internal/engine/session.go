package engine

import (
	"context"
	"log/slog"
	"math"

	"github.com/roach88/quizarena/internal/protocol"
	"github.com/roach88/quizarena/internal/session"
	"github.com/roach88/quizarena/internal/store"
)

// handleStart activates a matched session and issues its first problem.
func (e *Engine) handleStart(ev Event) error {
	s, ok := e.registry.Find(ev.SessionID)
	if !ok {
		slog.Debug("start for unknown session", "session_id", ev.SessionID)
		return nil
	}
	if !s.Activate() {
		slog.Debug("start for session not waiting", "session_id", s.ID, "status", s.Status())
		return nil
	}
	slog.Info("session started", "session_id", s.ID)
	e.beginCycle(s)
	return nil
}

// beginCycle issues a fresh problem and arms its timeout. Timers left over
// from the previous cycle are stopped first.
func (e *Engine) beginCycle(s *session.Session) {
	e.stopTimers(s.ID)

	p := e.problems.Generate()
	seq, ok := s.BeginCycle(p, e.sched.Now())
	if !ok {
		slog.Debug("cycle not begun, session inactive", "session_id", s.ID)
		return
	}

	e.broadcast(s, protocol.NewProblem{
		ProblemNumber: seq,
		Problem:       protocol.ViewOf(p),
		TimeLimit:     s.Budget.Milliseconds(),
	})
	e.arm(s.ID, s.Budget, Event{Kind: EventTimeout, SessionID: s.ID, Seq: seq})

	slog.Debug("problem issued", "session_id", s.ID, "seq", seq)
}

// handleTimeout reveals the answer of an unsolved cycle and schedules the
// next one. Stale or already-resolved cycles are discarded.
func (e *Engine) handleTimeout(ev Event) error {
	s, ok := e.registry.Find(ev.SessionID)
	if !ok {
		slog.Debug("timeout for unknown session", "session_id", ev.SessionID, "seq", ev.Seq)
		return nil
	}
	p, _, seq, ok := s.Current()
	if !ok || seq != ev.Seq || !s.Expire(ev.Seq) {
		slog.Debug("stale timeout discarded", "session_id", s.ID, "seq", ev.Seq, "current", s.Seq())
		return nil
	}

	e.broadcast(s, protocol.TimeUp{CorrectAnswer: p.Answer})
	e.arm(s.ID, e.cfg.AdvanceDelay, Event{Kind: EventAdvance, SessionID: s.ID, Seq: ev.Seq})

	slog.Debug("problem timed out", "session_id", s.ID, "seq", ev.Seq)
	return nil
}

// handleAdvance begins the next cycle if ev's cycle is still the live one.
func (e *Engine) handleAdvance(ev Event) error {
	s, ok := e.registry.Find(ev.SessionID)
	if !ok {
		slog.Debug("advance for unknown session", "session_id", ev.SessionID, "seq", ev.Seq)
		return nil
	}
	if !s.IsCurrent(ev.Seq) {
		slog.Debug("stale advance discarded", "session_id", s.ID, "seq", ev.Seq, "current", s.Seq())
		return nil
	}
	e.beginCycle(s)
	return nil
}

// handleSubmit scores an answer. Only the first correct answer of a cycle
// schedules the next one.
func (e *Engine) handleSubmit(ctx context.Context, ev Event) error {
	s, ok := e.registry.Find(ev.SessionID)
	if !ok {
		slog.Debug("answer for unknown session", "session_id", ev.SessionID, "conn_id", ev.ConnID)
		return nil
	}
	if s.Status() != session.StatusActive {
		slog.Debug("answer for inactive session", "session_id", s.ID, "status", s.Status())
		return nil
	}
	p, started, seq, ok := s.Current()
	if !ok {
		slog.Debug("answer with no current problem", "session_id", s.ID, "conn_id", ev.ConnID)
		return nil
	}

	elapsed := e.sched.Now().Sub(started)
	correct := math.Abs(ev.Answer-p.Answer) < e.cfg.AnswerEpsilon
	delta := -e.cfg.PenaltyPoints
	if correct {
		delta = e.cfg.points(s.Budget, elapsed)
	}

	player, ok := s.Score(ev.ConnID, delta, correct, elapsed)
	if !ok {
		slog.Debug("answer not scored", "session_id", s.ID, "conn_id", ev.ConnID, "seq", seq)
		return nil
	}

	e.broadcast(s, protocol.AnswerResult{
		PlayerName: player.Name,
		Correct:    correct,
		Points:     delta,
		NewScore:   player.Score,
	})

	if player.Score >= e.cfg.WinningScore {
		e.endSession(ctx, s, player.Name)
		return nil
	}
	if correct && s.ResolveCycle(seq) {
		e.arm(s.ID, e.cfg.AdvanceDelay, Event{Kind: EventAdvance, SessionID: s.ID, Seq: seq})
	}
	return nil
}

// handleDisconnect drops a connection from the queue and from its session.
// A two-player session ends with the other player as winner; larger
// sessions carry on without the leaver.
func (e *Engine) handleDisconnect(ctx context.Context, ev Event) error {
	if e.waiting.Dequeue(ev.ConnID) {
		slog.Debug("disconnected player left queue", "conn_id", ev.ConnID)
	}

	s, ok := e.registry.FindByConn(ev.ConnID)
	if !ok {
		return nil
	}
	if s.Status() == session.StatusFinished {
		return nil
	}

	leaver, _ := s.Player(ev.ConnID)
	if s.Len() <= session.MinPlayers {
		s.SetConnected(ev.ConnID, false)
		winner := ""
		for _, p := range s.Players() {
			if p.ConnID != ev.ConnID {
				winner = p.Name
			}
		}
		slog.Info("player disconnected, ending session", "session_id", s.ID, "player", leaver.Name)
		e.endSession(ctx, s, winner)
		return nil
	}

	rem, ok := e.registry.RemovePlayer(ev.ConnID)
	if !ok {
		return nil
	}
	e.broadcast(s, protocol.PlayerLeft{PlayerName: rem.Player.Name})
	slog.Info("player left session", "session_id", s.ID, "player", rem.Player.Name, "remaining", rem.Remaining)

	if rem.Finished {
		// Only reachable when membership fell below the minimum.
		e.finishEnded(ctx, s, rem.Winner)
	}
	return nil
}

func (e *Engine) handleForceEnd(ctx context.Context, ev Event) error {
	s, ok := e.registry.Find(ev.SessionID)
	if !ok {
		slog.Debug("force end for unknown session", "session_id", ev.SessionID)
		return nil
	}
	e.endSession(ctx, s, ev.Winner)
	return nil
}

// endSession finishes s once. Only the call that performs the transition
// broadcasts results and flushes scores; repeats return false.
func (e *Engine) endSession(ctx context.Context, s *session.Session, winner string) bool {
	if !s.Finish(winner) {
		slog.Debug("session already finished", "session_id", s.ID)
		return false
	}
	e.finishEnded(ctx, s, winner)
	return true
}

// finishEnded broadcasts, flushes and unregisters a session whose finished
// transition has just been won by the caller.
func (e *Engine) finishEnded(ctx context.Context, s *session.Session, winner string) {
	e.stopTimers(s.ID)

	players := s.Players()
	e.broadcast(s, protocol.SessionEnd{Winner: winner, FinalScores: protocol.Scores(players)})

	for _, p := range players {
		e.flush(ctx, s.ID, p, winner)
	}

	e.registry.Remove(s.ID)
	slog.Info("session ended", "session_id", s.ID, "winner", winner, "players", len(players))
}

// flush merges one player's result into the Score Store. Failures are logged.
func (e *Engine) flush(ctx context.Context, sessionID string, p session.Player, winner string) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()

	_, err := e.scores.Upsert(ctx, store.Result{
		Name:           p.Name,
		Score:          p.Score,
		ProblemsSolved: p.Correct,
		BestTime:       p.BestTime,
		Won:            winner != "" && p.Name == winner,
	})
	if err != nil {
		slog.Error("score flush failed", "session_id", sessionID, "player", p.Name, "error", err)
	}
}

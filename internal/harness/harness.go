package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/roach88/quizarena/internal/engine"
	"github.com/roach88/quizarena/internal/protocol"
	"github.com/roach88/quizarena/internal/quiz"
	"github.com/roach88/quizarena/internal/session"
	"github.com/roach88/quizarena/internal/store"
	"github.com/roach88/quizarena/internal/testutil"
)

// Harness executes one scenario. The engine is driven with Drain on the
// caller's goroutine, so timers fire only when a wait step moves the clock.
type Harness struct {
	clock    *testutil.FakeClock
	store    *store.Store
	engine   *engine.Engine
	registry *session.Registry
	result   *Result
}

// Run executes a scenario and returns the result.
//
// Each run uses a fresh SQLite file under dir for isolation. The returned
// error covers setup and step failures; assertion failures are reported in
// the Result.
func Run(ctx context.Context, scenario *Scenario, dir string) (*Result, error) {
	problems := make([]quiz.Problem, len(scenario.Problems))
	for i, spec := range scenario.Problems {
		p, err := spec.Problem()
		if err != nil {
			return nil, fmt.Errorf("problem %d: %w", i, err)
		}
		problems[i] = p
	}

	clock := testutil.NewFakeClock()
	st, err := store.Open(filepath.Join(dir, "arena.db"), store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if err := seed(ctx, st, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	cfg := engine.DefaultConfig()
	scenario.Rules.apply(&cfg)

	result := NewResult()
	registry := session.NewRegistry(
		session.WithIDGenerator(session.NewSequence("s")),
		session.WithNow(clock.Now),
		session.WithBudget(cfg.ProblemBudget),
	)
	h := &Harness{
		clock:    clock,
		store:    st,
		registry: registry,
		result:   result,
	}
	h.engine = engine.New(&playlist{problems: problems}, st, &recorder{clock: clock, result: result},
		engine.WithConfig(cfg),
		engine.WithScheduler(scheduler{clock}),
		engine.WithRegistry(registry),
	)
	h.engine.Start()

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, result, scenario.Assertions, st) {
		result.AddError(msg)
	}
	return result, nil
}

func (r Rules) apply(cfg *engine.Config) {
	if r.WinningScore > 0 {
		cfg.WinningScore = r.WinningScore
	}
	if r.BonusUnit > 0 {
		cfg.BonusUnit = r.BonusUnit
	}
	if r.NoBonus {
		cfg.BonusUnit = 0
	}
}

func seed(ctx context.Context, st *store.Store, records []SeedRecord) error {
	for _, r := range records {
		for range max(r.Games, 1) {
			_, err := st.Upsert(ctx, store.Result{
				Name:           r.Name,
				Score:          r.Score,
				ProblemsSolved: r.ProblemsSolved,
				BestTime:       r.BestTime,
				Won:            r.Won,
			})
			if err != nil {
				return fmt.Errorf("seed %q: %w", r.Name, err)
			}
		}
	}
	return nil
}

// execute performs one step and processes everything it caused.
func (h *Harness) execute(ctx context.Context, step Step) error {
	switch step.Action {
	case StepJoin:
		name, err := session.NormalizeName(step.Name)
		if err != nil {
			return err
		}
		h.engine.Join(step.Conn, name)
	case StepLeave:
		h.engine.Leave(step.Conn)
	case StepSubmit:
		sessionID := step.Session
		if sessionID == "" {
			if s, ok := h.registry.FindByConn(step.Conn); ok {
				sessionID = s.ID
			}
		}
		h.engine.Submit(step.Conn, sessionID, step.Answer)
	case StepDisconnect:
		h.engine.Disconnect(step.Conn)
	case StepEnd:
		h.engine.ForceEnd(step.Session, step.Winner)
	case StepWait:
		h.advance(ctx, step.For)
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	h.engine.Drain(ctx)
	return nil
}

// advance moves the clock forward by d, stopping at each timer deadline so
// the events it enqueues are processed at the instant it fires.
func (h *Harness) advance(ctx context.Context, d time.Duration) {
	target := h.clock.Now().Add(d)
	for {
		h.engine.Drain(ctx)
		next, ok := h.clock.NextDeadline()
		if !ok || next.After(target) {
			break
		}
		h.clock.AdvanceTo(next)
	}
	h.clock.AdvanceTo(target)
}

// scheduler adapts testutil.FakeClock to engine.Scheduler.
type scheduler struct{ *testutil.FakeClock }

func (s scheduler) AfterFunc(d time.Duration, fn func()) engine.Timer {
	return s.FakeClock.AfterFunc(d, fn)
}

// recorder is the engine Transport; it appends every delivery to the
// transcript. Only called from the draining goroutine.
type recorder struct {
	clock  *testutil.FakeClock
	result *Result
}

func (r *recorder) Deliver(connID string, msg protocol.Outbound) {
	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Error("harness: encoding delivery", "type", msg.Type(), "error", err)
		return
	}
	r.result.Transcript = append(r.result.Transcript, Line{
		At:      r.clock.Now().Sub(testutil.Epoch),
		ConnID:  connID,
		Type:    msg.Type(),
		Payload: payload,
	})
}

func (r *recorder) DeliverAll(connIDs []string, msg protocol.Outbound) {
	for _, id := range connIDs {
		r.Deliver(id, msg)
	}
}

// playlist hands out the scenario's problems in order, cycling.
type playlist struct {
	problems []quiz.Problem
	next     int
}

func (p *playlist) Generate() quiz.Problem {
	pr := p.problems[p.next%len(p.problems)]
	p.next++
	return pr
}

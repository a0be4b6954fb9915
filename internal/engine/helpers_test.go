package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/roach88/quizarena/internal/protocol"
	"github.com/roach88/quizarena/internal/quiz"
	"github.com/roach88/quizarena/internal/session"
	"github.com/roach88/quizarena/internal/store"
	"github.com/roach88/quizarena/internal/testutil"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

// fakeScheduler adapts testutil.FakeClock to Scheduler.
type fakeScheduler struct{ *testutil.FakeClock }

func (f fakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return f.FakeClock.AfterFunc(d, fn)
}

// delivery is one recorded outbound message.
type delivery struct {
	At     time.Duration // since testutil.Epoch
	ConnID string
	Msg    protocol.Outbound
}

// recorder is a Transport that keeps every delivery.
type recorder struct {
	mu    sync.Mutex
	clock interface{ Now() time.Time }
	out   []delivery
}

func (r *recorder) Deliver(connID string, msg protocol.Outbound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, delivery{At: r.clock.Now().Sub(testutil.Epoch), ConnID: connID, Msg: msg})
}

func (r *recorder) DeliverAll(connIDs []string, msg protocol.Outbound) {
	for _, id := range connIDs {
		r.Deliver(id, msg)
	}
}

// all returns every delivery so far.
func (r *recorder) all() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.out...)
}

// to returns the messages delivered to connID with type typ.
func (r *recorder) to(connID, typ string) []protocol.Outbound {
	var msgs []protocol.Outbound
	for _, d := range r.all() {
		if d.ConnID == connID && d.Msg.Type() == typ {
			msgs = append(msgs, d.Msg)
		}
	}
	return msgs
}

// count returns how many messages of typ were delivered in total.
func (r *recorder) count(typ string) int {
	n := 0
	for _, d := range r.all() {
		if d.Msg.Type() == typ {
			n++
		}
	}
	return n
}

// memScores is an in-memory ScoreStore.
type memScores struct {
	mu        sync.Mutex
	recs      map[string]store.PlayerRecord
	upserts   []store.Result
	fail      map[string]error
	lookupErr error
	prunes    int
}

func newMemScores() *memScores {
	return &memScores{recs: make(map[string]store.PlayerRecord), fail: make(map[string]error)}
}

func (m *memScores) Upsert(_ context.Context, r store.Result) (store.PlayerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, r)
	if err := m.fail[r.Name]; err != nil {
		return store.PlayerRecord{}, err
	}
	rec := m.recs[r.Name]
	rec.Name = r.Name
	rec.Score = max(rec.Score, r.Score)
	rec.ProblemsSolved += r.ProblemsSolved
	rec.GamesPlayed++
	if r.Won {
		rec.Wins++
	}
	m.recs[r.Name] = rec
	return rec, nil
}

func (m *memScores) Lookup(_ context.Context, name string) (store.PlayerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return store.PlayerRecord{}, m.lookupErr
	}
	rec, ok := m.recs[name]
	if !ok {
		return store.PlayerRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (m *memScores) PruneInactive(context.Context, time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prunes++
	return 0, nil
}

func (m *memScores) results() []store.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Result(nil), m.upserts...)
}

// fixedProblems hands out a fixed list of problems, cycling.
type fixedProblems struct {
	mu   sync.Mutex
	list []quiz.Problem
	next int
}

func (f *fixedProblems) Generate() quiz.Problem {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.list[f.next%len(f.list)]
	f.next++
	return p
}

func problem(answer float64, numbers ...int) quiz.Problem {
	ops := make([]quiz.Operator, len(numbers)-1)
	steps := make([]string, 0, len(numbers))
	for i := range ops {
		ops[i] = quiz.OpAdd
		steps = append(steps, "add")
	}
	return quiz.Problem{Numbers: numbers, Operations: ops, Steps: steps, Answer: answer}
}

var (
	p1 = problem(24.44, 2, 18, 200, 9)
	p2 = problem(10, 1, 2, 3, 4)
	p3 = problem(15, 1, 2, 3, 4, 5)
)

var errStoreDown = errors.New("store down")

// testEngine drives an Engine deterministically on a fake clock.
type testEngine struct {
	t      *testing.T
	clock  *testutil.FakeClock
	eng    *Engine
	rec    *recorder
	scores *memScores
}

func newTestEngine(t *testing.T, tweak ...func(*Config)) *testEngine {
	t.Helper()
	clock := testutil.NewFakeClock()
	cfg := DefaultConfig()
	for _, f := range tweak {
		f(&cfg)
	}

	te := &testEngine{
		t:      t,
		clock:  clock,
		rec:    &recorder{clock: clock},
		scores: newMemScores(),
	}
	registry := session.NewRegistry(
		session.WithIDGenerator(session.NewSequence("s")),
		session.WithNow(clock.Now),
		session.WithBudget(cfg.ProblemBudget),
	)
	te.eng = New(&fixedProblems{list: []quiz.Problem{p1, p2, p3}}, te.scores, te.rec,
		WithConfig(cfg),
		WithScheduler(fakeScheduler{clock}),
		WithRegistry(registry),
	)
	te.eng.Start()
	return te
}

func (te *testEngine) drain() {
	te.eng.Drain(context.Background())
}

// advance moves time forward by d, processing every event each timer
// produces at the instant it fires.
func (te *testEngine) advance(d time.Duration) {
	target := te.clock.Now().Add(d)
	for {
		te.drain()
		next, ok := te.clock.NextDeadline()
		if !ok || next.After(target) {
			break
		}
		te.clock.AdvanceTo(next)
	}
	te.clock.AdvanceTo(target)
	te.drain()
}

// matchPair joins alice (c1) and bob (c2) and runs until problem 1 is live.
func (te *testEngine) matchPair() *session.Session {
	te.t.Helper()
	te.eng.Join("c1", "alice")
	te.eng.Join("c2", "bob")
	te.drain()
	te.advance(te.eng.cfg.TickInterval + te.eng.cfg.StartDelay)

	s, ok := te.eng.registry.Find("s1")
	if !ok {
		te.t.Fatal("session s1 was not created")
	}
	return s
}

func (te *testEngine) submit(connID string, answer float64) {
	te.eng.Submit(connID, "s1", answer)
	te.drain()
}

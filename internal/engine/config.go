package engine

import (
	"time"

	"github.com/roach88/quizarena/internal/matchmaking"
)

// Config tunes game timing, scoring and housekeeping.
type Config struct {
	ProblemBudget time.Duration // time allowed per problem
	AdvanceDelay  time.Duration // pause between a resolved cycle and the next
	StartDelay    time.Duration // pause between match-found and the first problem
	WinningScore  int
	BasePoints    int
	PenaltyPoints int
	BonusUnit     time.Duration // one bonus point per unit of time left
	AnswerEpsilon float64

	SweepInterval time.Duration
	SweepMaxAge   time.Duration
	PruneAfter    time.Duration // store inactivity cutoff; zero disables pruning
	StoreTimeout  time.Duration

	Matchmaking  matchmaking.Config
	TickInterval time.Duration
}

// DefaultConfig returns the standard game rules.
func DefaultConfig() Config {
	return Config{
		ProblemBudget: 30 * time.Second,
		AdvanceDelay:  2 * time.Second,
		StartDelay:    3 * time.Second,
		WinningScore:  500,
		BasePoints:    100,
		PenaltyPoints: 50,
		BonusUnit:     100 * time.Millisecond,
		AnswerEpsilon: 0.01,

		SweepInterval: 10 * time.Minute,
		SweepMaxAge:   time.Hour,
		PruneAfter:    90 * 24 * time.Hour,
		StoreTimeout:  2 * time.Second,

		Matchmaking:  matchmaking.DefaultConfig(),
		TickInterval: matchmaking.DefaultTickInterval,
	}
}

// points returns the award for a correct answer given the cycle's budget and
// the time already elapsed.
func (c Config) points(budget, elapsed time.Duration) int {
	left := budget - elapsed
	if left < 0 || c.BonusUnit <= 0 {
		return c.BasePoints
	}
	return c.BasePoints + int(left/c.BonusUnit)
}

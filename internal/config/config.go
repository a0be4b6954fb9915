// Package config loads arena configuration from YAML.
//
// Loading expands ${VAR} references from the environment, validates the
// document against an embedded CUE schema, decodes it and fills in
// defaults for every omitted field.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/quizarena/internal/engine"
	"github.com/roach88/quizarena/internal/matchmaking"
	"github.com/roach88/quizarena/internal/session"
)

// Config is the complete arena configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Matchmaking MatchmakingConfig `yaml:"matchmaking"`
	Game        GameConfig        `yaml:"game"`
	Sweep       SweepConfig       `yaml:"sweep"`
	Problems    ProblemsConfig    `yaml:"problems"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig configures the HTTP and WebSocket listener.
type ServerConfig struct {
	Address           string        `yaml:"address"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	AllowedOrigins    []string      `yaml:"allowed_origins"` // empty allows any origin
}

// StoreConfig configures the Score Store.
type StoreConfig struct {
	Path       string        `yaml:"path"`
	Timeout    time.Duration `yaml:"timeout"`
	PruneAfter time.Duration `yaml:"prune_after"`
}

// MatchmakingConfig tunes match formation.
type MatchmakingConfig struct {
	TickInterval      time.Duration `yaml:"tick_interval"`
	MaxWait           time.Duration `yaml:"max_wait"`
	FairnessThreshold int           `yaml:"fairness_threshold"`
	MinPlayers        int           `yaml:"min_players"`
	MaxPlayers        int           `yaml:"max_players"`
}

// GameConfig holds timing and scoring rules.
type GameConfig struct {
	ProblemBudget time.Duration `yaml:"problem_budget"`
	AdvanceDelay  time.Duration `yaml:"advance_delay"`
	StartDelay    time.Duration `yaml:"start_delay"`
	WinningScore  int           `yaml:"winning_score"`
	BasePoints    int           `yaml:"base_points"`
	PenaltyPoints int           `yaml:"penalty_points"`
	BonusUnit     time.Duration `yaml:"bonus_unit"`
	AnswerEpsilon float64       `yaml:"answer_epsilon"`
}

// SweepConfig controls stale-session cleanup.
type SweepConfig struct {
	Interval time.Duration `yaml:"interval"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// ProblemsConfig tunes the problem generator.
type ProblemsConfig struct {
	History int `yaml:"history"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults.
const (
	DefaultAddress           = ":3000"
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultStorePath         = "arena.db"
	DefaultProblemHistory    = 100
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

var envVar = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads, validates and decodes the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates and decodes config YAML.
func Parse(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// expandEnvVars expands ${VAR} patterns in the string. Unset variables
// expand to the empty string.
func expandEnvVars(s string) string {
	return envVar.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// applyDefaults fills every zero field with its default.
func applyDefaults(cfg *Config) {
	game := engine.DefaultConfig()
	mm := matchmaking.DefaultConfig()

	if cfg.Server.Address == "" {
		cfg.Server.Address = DefaultAddress
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}
	if cfg.Store.Timeout == 0 {
		cfg.Store.Timeout = game.StoreTimeout
	}
	if cfg.Store.PruneAfter == 0 {
		cfg.Store.PruneAfter = game.PruneAfter
	}

	if cfg.Matchmaking.TickInterval == 0 {
		cfg.Matchmaking.TickInterval = game.TickInterval
	}
	if cfg.Matchmaking.MaxWait == 0 {
		cfg.Matchmaking.MaxWait = mm.MaxWait
	}
	if cfg.Matchmaking.FairnessThreshold == 0 {
		cfg.Matchmaking.FairnessThreshold = mm.FairnessThreshold
	}
	if cfg.Matchmaking.MinPlayers == 0 {
		cfg.Matchmaking.MinPlayers = mm.MinPlayers
	}
	if cfg.Matchmaking.MaxPlayers == 0 {
		cfg.Matchmaking.MaxPlayers = mm.MaxPlayers
	}

	if cfg.Game.ProblemBudget == 0 {
		cfg.Game.ProblemBudget = game.ProblemBudget
	}
	if cfg.Game.AdvanceDelay == 0 {
		cfg.Game.AdvanceDelay = game.AdvanceDelay
	}
	if cfg.Game.StartDelay == 0 {
		cfg.Game.StartDelay = game.StartDelay
	}
	if cfg.Game.WinningScore == 0 {
		cfg.Game.WinningScore = game.WinningScore
	}
	if cfg.Game.BasePoints == 0 {
		cfg.Game.BasePoints = game.BasePoints
	}
	if cfg.Game.PenaltyPoints == 0 {
		cfg.Game.PenaltyPoints = game.PenaltyPoints
	}
	if cfg.Game.BonusUnit == 0 {
		cfg.Game.BonusUnit = game.BonusUnit
	}
	if cfg.Game.AnswerEpsilon == 0 {
		cfg.Game.AnswerEpsilon = game.AnswerEpsilon
	}

	if cfg.Sweep.Interval == 0 {
		cfg.Sweep.Interval = game.SweepInterval
	}
	if cfg.Sweep.MaxAge == 0 {
		cfg.Sweep.MaxAge = game.SweepMaxAge
	}

	if cfg.Problems.History == 0 {
		cfg.Problems.History = DefaultProblemHistory
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// Validate checks the constraints that span fields.
func (c *Config) Validate() error {
	if c.Matchmaking.MinPlayers < session.MinPlayers || c.Matchmaking.MaxPlayers > session.MaxPlayers {
		return fmt.Errorf("matchmaking: players must be within %d..%d", session.MinPlayers, session.MaxPlayers)
	}
	if c.Matchmaking.MinPlayers > c.Matchmaking.MaxPlayers {
		return fmt.Errorf("matchmaking: min_players (%d) exceeds max_players (%d)",
			c.Matchmaking.MinPlayers, c.Matchmaking.MaxPlayers)
	}
	if c.Game.AdvanceDelay >= c.Game.ProblemBudget {
		return fmt.Errorf("game: advance_delay (%s) must be shorter than problem_budget (%s)",
			c.Game.AdvanceDelay, c.Game.ProblemBudget)
	}
	if c.Sweep.MaxAge < c.Game.ProblemBudget {
		return fmt.Errorf("sweep: max_age (%s) must be at least problem_budget (%s)",
			c.Sweep.MaxAge, c.Game.ProblemBudget)
	}
	return nil
}

// Engine converts the config to engine rules.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		ProblemBudget: c.Game.ProblemBudget,
		AdvanceDelay:  c.Game.AdvanceDelay,
		StartDelay:    c.Game.StartDelay,
		WinningScore:  c.Game.WinningScore,
		BasePoints:    c.Game.BasePoints,
		PenaltyPoints: c.Game.PenaltyPoints,
		BonusUnit:     c.Game.BonusUnit,
		AnswerEpsilon: c.Game.AnswerEpsilon,

		SweepInterval: c.Sweep.Interval,
		SweepMaxAge:   c.Sweep.MaxAge,
		PruneAfter:    c.Store.PruneAfter,
		StoreTimeout:  c.Store.Timeout,

		Matchmaking: matchmaking.Config{
			MinPlayers:        c.Matchmaking.MinPlayers,
			MaxPlayers:        c.Matchmaking.MaxPlayers,
			MaxWait:           c.Matchmaking.MaxWait,
			FairnessThreshold: c.Matchmaking.FairnessThreshold,
		},
		TickInterval: c.Matchmaking.TickInterval,
	}
}

// SlogLevel maps log.level to a slog level. Unknown values map to Info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

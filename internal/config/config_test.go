package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quizarena/internal/engine"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arena.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":3000", cfg.Server.Address)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadHeaderTimeout)
	assert.Equal(t, "arena.db", cfg.Store.Path)
	assert.Equal(t, 2*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 90*24*time.Hour, cfg.Store.PruneAfter)
	assert.Equal(t, 100, cfg.Problems.History)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, engine.DefaultConfig(), cfg.Engine(), "defaults round-trip to engine rules")
}

func TestLoad_ValidFile(t *testing.T) {
	path := writeTestConfig(t, `
server:
  address: "127.0.0.1:8080"
  allowed_origins: ["https://arena.example"]
store:
  path: /var/lib/arena/scores.db
  prune_after: 720h
matchmaking:
  tick_interval: 2s
  max_players: 3
game:
  problem_budget: 20s
  winning_score: 300
  bonus_unit: 50ms
  answer_epsilon: 0.005
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Address)
	assert.Equal(t, []string{"https://arena.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "/var/lib/arena/scores.db", cfg.Store.Path)
	assert.Equal(t, 720*time.Hour, cfg.Store.PruneAfter)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())

	ec := cfg.Engine()
	assert.Equal(t, 2*time.Second, ec.TickInterval)
	assert.Equal(t, 3, ec.Matchmaking.MaxPlayers)
	assert.Equal(t, 2, ec.Matchmaking.MinPlayers, "unset fields keep defaults")
	assert.Equal(t, 20*time.Second, ec.ProblemBudget)
	assert.Equal(t, 300, ec.WinningScore)
	assert.Equal(t, 50*time.Millisecond, ec.BonusUnit)
	assert.Equal(t, 0.005, ec.AnswerEpsilon)
	assert.Equal(t, 100, ec.BasePoints)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/arena.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("ARENA_DB", "/data/arena.db")
	t.Setenv("ARENA_PORT", "9000")

	cfg, err := Parse([]byte(`
server:
  address: ":${ARENA_PORT}"
store:
  path: ${ARENA_DB}
`))
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, "/data/arena.db", cfg.Store.Path)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("ARENA_SET", "yes")

	assert.Equal(t, "a=yes", expandEnvVars("a=${ARENA_SET}"))
	assert.Equal(t, "b=", expandEnvVars("b=${ARENA_UNSET_FOR_TEST}"))
	assert.Equal(t, "plain $HOME", expandEnvVars("plain $HOME"), "only braced references expand")
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown section", "metrics:\n  enabled: true\n", "metrics"},
		{"unknown field", "server:\n  port: 80\n", "port"},
		{"bad duration", "game:\n  problem_budget: thirty\n", "problem_budget"},
		{"duration as number", "game:\n  advance_delay: 2\n", "advance_delay"},
		{"too many players", "matchmaking:\n  max_players: 6\n", "max_players"},
		{"too few players", "matchmaking:\n  min_players: 1\n", "min_players"},
		{"negative penalty", "game:\n  penalty_points: -5\n", "penalty_points"},
		{"epsilon too large", "game:\n  answer_epsilon: 2\n", "answer_epsilon"},
		{"bad log level", "log:\n  level: verbose\n", "level"},
		{"empty store path", "store:\n  path: \"\"\n", "path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var se *SchemaError
			require.True(t, errors.As(err, &se), "want SchemaError, got %T: %v", err, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_CrossFieldValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "min above max",
			yaml:    "matchmaking:\n  min_players: 4\n  max_players: 3\n",
			wantErr: "min_players (4) exceeds max_players (3)",
		},
		{
			name:    "advance longer than budget",
			yaml:    "game:\n  problem_budget: 5s\n  advance_delay: 10s\n",
			wantErr: "advance_delay",
		},
		{
			name:    "sweep age below budget",
			yaml:    "sweep:\n  max_age: 10s\n",
			wantErr: "max_age",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := Config{Log: LogConfig{Level: tt.level}}
			assert.Equal(t, tt.want, cfg.SlogLevel())
		})
	}
}

func TestLoad_Example(t *testing.T) {
	cfg, err := Load("testdata/arena.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg, "the example documents the defaults")
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/quizarena/internal/session"
	"github.com/roach88/quizarena/internal/store"
)

// StoreOptions holds flags shared by commands that read the score store.
type StoreOptions struct {
	*RootOptions
	Config   string
	Database string
}

func (o *StoreOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Config, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&o.Database, "db", "", "path to SQLite database (overrides store.path)")
}

// openStore opens an existing score store. Read commands never create one.
func (o *StoreOptions) openStore() (*store.Store, error) {
	cfg, err := loadConfig(o.Config, "", o.Database)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "invalid configuration", err)
	}
	if _, err := os.Stat(cfg.Store.Path); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("database not found: %s", cfg.Store.Path), err)
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// LeaderboardOptions holds flags for the leaderboard command.
type LeaderboardOptions struct {
	StoreOptions
	Limit  int
	Offset int
}

// NewLeaderboardCommand creates the leaderboard command.
func NewLeaderboardCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LeaderboardOptions{StoreOptions: StoreOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the ranked leaderboard",
		Long: `Print one page of the leaderboard, ordered by score, then problems
solved, then best time.

Example:
  arena leaderboard --db ./arena.db
  arena leaderboard --limit 10 --offset 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLeaderboard(opts, cmd)
		},
	}

	opts.bind(cmd)
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", store.DefaultLimit, "players per page")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "players to skip")

	return cmd
}

func runLeaderboard(opts *LeaderboardOptions, cmd *cobra.Command) error {
	if opts.Limit < 0 || opts.Offset < 0 {
		return NewExitError(ExitCommandError, "limit and offset must not be negative")
	}
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	page, err := st.Ranked(commandContext(cmd), opts.Limit, opts.Offset)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read leaderboard", err)
	}

	return newFormatter(opts.RootOptions, cmd).Success(page, func(w io.Writer) {
		if len(page.Players) == 0 {
			fmt.Fprintln(w, "No players yet.")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RANK\tPLAYER\tSCORE\tSOLVED\tBEST\tGAMES\tWINS")
		for i, p := range page.Players {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%d\t%d\n",
				page.Offset+i+1, p.Name, p.Score, p.ProblemsSolved, formatBest(p.BestTimeMs), p.GamesPlayed, p.Wins)
		}
		_ = tw.Flush()
		fmt.Fprintf(w, "\nShowing %d of %d players\n", len(page.Players), page.Total)
	})
}

// NewRankCommand creates the rank command.
func NewRankCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rank <player>",
		Short: "Show one player's leaderboard position",
		Long: `Show one player's leaderboard position and stored record.

Exit codes:
  0 - Player found
  1 - Player not found
  2 - Command error (database not found, etc.)

Example:
  arena rank alice --db ./arena.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRank(opts, args[0], cmd)
		},
	}

	opts.bind(cmd)
	return cmd
}

func runRank(opts *StoreOptions, raw string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	name, err := session.NormalizeName(raw)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid player name", err)
	}
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rank, err := st.RankOf(commandContext(cmd), name)
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("player %q not found", name), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("player %q not found", name))
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read rank", err)
	}

	return formatter.Success(rank, func(w io.Writer) {
		p := rank.Player
		fmt.Fprintf(w, "%s is ranked #%d of %d\n", p.Name, rank.Rank, rank.TotalPlayers)
		fmt.Fprintf(w, "  score:   %d\n", p.Score)
		fmt.Fprintf(w, "  solved:  %d\n", p.ProblemsSolved)
		fmt.Fprintf(w, "  best:    %s\n", formatBest(p.BestTimeMs))
		fmt.Fprintf(w, "  games:   %d (%d won)\n", p.GamesPlayed, p.Wins)
	})
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "stats",
		Short:         "Summarise the leaderboard",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.TopStats(commandContext(cmd))
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read stats", err)
			}
			return newFormatter(opts.RootOptions, cmd).Success(stats, func(w io.Writer) {
				fmt.Fprintf(w, "players:        %d\n", stats.TotalPlayers)
				fmt.Fprintf(w, "top score:      %d\n", stats.TopScore)
				fmt.Fprintf(w, "most solved:    %d\n", stats.MostProblems)
				fmt.Fprintf(w, "best time:      %s\n", formatBest(stats.BestTimeMs))
				fmt.Fprintf(w, "total solved:   %d\n", stats.TotalProblemsSolved)
			})
		},
	}

	opts.bind(cmd)
	return cmd
}

func formatBest(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return (time.Duration(*ms) * time.Millisecond).String()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/quizarena/internal/config"
)

// ValidationResult holds the outcome of validating a config file.
type ValidationResult struct {
	Valid  bool           `json:"valid"`
	Path   string         `json:"path"`
	Config *config.Config `json:"config,omitempty"`
}

// ValidationDetail locates a schema violation.
type ValidationDetail struct {
	Field string `json:"field,omitempty"`
	Line  int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a config file without starting the server",
		Long: `Validate an arena config file against the config schema and the
cross-field rules, then print the effective configuration with defaults
filled in.

Exit codes:
  0 - Config is valid
  1 - Config is invalid
  2 - Command error (file not found, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if _, err := os.Stat(path); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("config file not found: %s", path), nil)
		return WrapExitError(ExitCommandError, "config file not found", err)
	}

	formatter.VerboseLog("Validating %s", path)
	cfg, err := config.Load(path)
	if err != nil {
		var detail *ValidationDetail
		var se *config.SchemaError
		if errors.As(err, &se) {
			detail = &ValidationDetail{Field: se.Path}
			if se.Pos.IsValid() {
				detail.Line = se.Pos.Line()
			}
		}
		_ = formatter.Error(ErrCodeConfig, err.Error(), detail)
		return WrapExitError(ExitFailure, "invalid configuration", err)
	}

	result := ValidationResult{Valid: true, Path: path, Config: cfg}
	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s is valid\n", path)
		fmt.Fprintf(w, "  listen:      %s\n", cfg.Server.Address)
		fmt.Fprintf(w, "  store:       %s\n", cfg.Store.Path)
		fmt.Fprintf(w, "  players:     %d-%d\n", cfg.Matchmaking.MinPlayers, cfg.Matchmaking.MaxPlayers)
		fmt.Fprintf(w, "  budget:      %s\n", cfg.Game.ProblemBudget)
		fmt.Fprintf(w, "  win at:      %d\n", cfg.Game.WinningScore)
	})
}

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/quizarena/internal/quiz"
)

// ProblemOptions holds flags for the problem command.
type ProblemOptions struct {
	*RootOptions
	Count  int
	Seed   uint64
	Answer bool
}

// NewProblemCommand creates the problem command.
func NewProblemCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProblemOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "problem",
		Short: "Generate practice problems",
		Long: `Generate multi-step arithmetic problems with the same generator the
server uses. Problems within one run never repeat.

Example:
  arena problem
  arena problem --count 5 --answer
  arena problem --seed 42 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProblem(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 1, "number of problems")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "random seed (0 picks one)")
	cmd.Flags().BoolVar(&opts.Answer, "answer", false, "print answers in text output")

	return cmd
}

func runProblem(opts *ProblemOptions, cmd *cobra.Command) error {
	if opts.Count < 1 {
		return NewExitError(ExitCommandError, "count must be at least 1")
	}

	var genOpts []quiz.GeneratorOption
	if opts.Seed != 0 {
		genOpts = append(genOpts, quiz.WithSeed(opts.Seed))
	}
	gen := quiz.NewGenerator(genOpts...)

	problems := make([]quiz.Problem, opts.Count)
	for i := range problems {
		problems[i] = gen.Generate()
	}

	return newFormatter(opts.RootOptions, cmd).Success(problems, func(w io.Writer) {
		for i, p := range problems {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "Problem %d:\n", i+1)
			for _, step := range p.Steps {
				fmt.Fprintf(w, "  %s\n", step)
			}
			if opts.Answer {
				fmt.Fprintf(w, "  answer: %g\n", p.Answer)
			}
		}
	})
}

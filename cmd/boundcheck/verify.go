package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lhaig/boundcheck/internal/compiler"
)

var replay bool

var verifyCmd = &cobra.Command{
	Use:   "verify [paths...]",
	Short: "Verify every class found in the given files and directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		proj, err := compileProject(args)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		r, err := newRunner(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer r.Close()

		return runVerify(ctx, r, proj)
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&replay, "replay", false, "execute every counterexample to confirm it")
}

func runVerify(ctx context.Context, r *runner, proj *compiler.Project) error {
	outcomes, err := r.verifyProject(ctx, proj)
	if err != nil {
		return err
	}
	reps := reports(outcomes)
	printReport(os.Stdout, reps)
	if replay {
		fmt.Fprintln(os.Stdout)
		printReplays(os.Stdout, outcomes)
	}
	if hasFindings(reps) {
		return errFindings
	}
	return nil
}

// compileProject compiles every source under paths and prints the diagnostics.
// Syntax errors stop the command.
func compileProject(paths []string) (*compiler.Project, error) {
	proj, err := compiler.CompileProject(paths...)
	if err != nil {
		return nil, err
	}
	printDiagnostics(os.Stderr, proj.Diagnostics)
	if proj.Diagnostics.HasErrors() {
		return nil, errFindings
	}
	return proj, nil
}

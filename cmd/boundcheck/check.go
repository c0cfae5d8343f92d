package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check [paths...]",
	Short: "Parse and check sources without verifying them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		proj, err := compileProject(args)
		if err != nil {
			return err
		}

		eligible := 0
		classes := proj.Classes()
		for _, c := range classes {
			if c.IsEligible() {
				eligible++
			}
		}
		fmt.Printf("%d file(s), %d class(es), %d eligible for verification.\n",
			len(proj.Files), len(classes), eligible)
		return nil
	},
}

var lintCmd = &cobra.Command{
	Use:   "lint [paths...]",
	Short: "Report style and contract coverage warnings",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		proj, err := compileProject(args)
		if err != nil {
			return err
		}

		diag := proj.Lint()
		if diag.Count() == 0 {
			fmt.Println("No lint warnings.")
			return nil
		}
		printDiagnostics(os.Stdout, diag)
		fmt.Printf("\n%d warning(s) found.\n", diag.Count())
		return nil
	},
}

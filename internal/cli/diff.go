package cli

import (
	"fmt"
	"os"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/anvilengine/anvil/internal/output"
)

func newDiffCommand() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "diff <manifest-a> <manifest-b>",
		Short: "Diff two build manifests",
		Long: `Render a unified diff of two manifest JSON files, for checking build
reproducibility or inspecting what a pass changed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := os.ReadFile(args[0])
			if err != nil {
				return &ExitError{Code: 1, Err: fmt.Errorf("reading %s: %w", args[0], err)}
			}

			after, err := os.ReadFile(args[1])
			if err != nil {
				return &ExitError{Code: 1, Err: fmt.Errorf("reading %s: %w", args[1], err)}
			}

			diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
				A:        difflib.SplitLines(string(before)),
				B:        difflib.SplitLines(string(after)),
				FromFile: args[0],
				ToFile:   args[1],
				Context:  3,
			})
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			var writer output.Writer = output.NewStdoutWriter(cmd.OutOrStdout())
			if outPath != "" {
				writer = output.NewFileWriter(outPath)
			}

			if err := writer.Write([]byte(diff)); err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			// Differing manifests exit 3 so scripts can branch on it.
			if diff != "" {
				return &ExitError{Code: 3}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the diff to a file instead of stdout")

	return cmd
}

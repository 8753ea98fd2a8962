package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/anvilengine/anvil/internal/config"
	"github.com/anvilengine/anvil/internal/logging"
	"github.com/anvilengine/anvil/pkg/anvil"
)

func newBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run a build pass over the project",
		Long: `Re-import any source files that changed since their import data was
written, recompute the combined build hash, and when it moved run the job
graph and publish a fresh manifest. Unchanged projects are a no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			logger := logging.FromContext(ctx)

			project, err := anvil.Open(ctx, cfg.Project, anvil.WithWorkers(cfg.EffectiveWorkers()))
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			defer project.Close()

			result, err := project.Build(ctx)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			for _, event := range result.ImportEvents {
				logger.Log(ctx, event.Level, event.Message, slog.String("source", event.Path))
			}

			errorCount := 0

			for _, event := range result.BuildEvents {
				logger.Log(ctx, event.Level, event.Message, slog.String("job", event.JobID.UUID().String()))

				if event.Level >= slog.LevelError {
					errorCount++
				}
			}

			if err := project.SaveAssets(); err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			if !result.BuildRan {
				fmt.Fprintln(cmd.OutOrStdout(), "up to date")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "built %d artifact(s) (combined hash %016x)\n",
				len(result.Manifest.Entries), result.CombinedBuildHash)

			if errorCount > 0 {
				return &ExitError{Code: 1, Err: fmt.Errorf("%d job(s) failed", errorCount)}
			}

			return nil
		},
	}

	return cmd
}

package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/anvilengine/anvil/internal/config"
	"github.com/anvilengine/anvil/internal/logging"
	"github.com/anvilengine/anvil/internal/watch"
	"github.com/anvilengine/anvil/pkg/anvil"
)

func newWatchCommand() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the project whenever its files change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			logger := logging.FromContext(ctx)

			project, err := anvil.Open(ctx, cfg.Project, anvil.WithWorkers(cfg.EffectiveWorkers()))
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			defer project.Close()

			opts := watch.DefaultOptions()
			opts.Roots = []string{
				cfg.SchemaDir(),
				cfg.AssetsIDRoot(),
				cfg.AssetsPathRoot(),
			}
			opts.Debounce = debounce
			opts.Logger = logger
			opts.Out = cmd.OutOrStdout()

			runErr := watch.Run(ctx, opts, func(runCtx context.Context) (*watch.RunResult, error) {
				result, buildErr := project.Build(runCtx)
				if buildErr != nil {
					return nil, buildErr
				}

				errorCount := 0

				for _, event := range result.BuildEvents {
					if event.Level >= slog.LevelError {
						errorCount++
					}
				}

				out := &watch.RunResult{
					ImportedAnything: result.ImportedAnything,
					BuildRan:         result.BuildRan,
					ErrorEvents:      errorCount,
				}
				if result.Manifest != nil {
					out.ArtifactCount = len(result.Manifest.Entries)
				}

				return out, nil
			})
			if runErr != nil {
				return &ExitError{Code: 1, Err: runErr}
			}

			return nil
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period before a rebuild triggers")

	return cmd
}

package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/anvilengine/anvil/internal/config"
	"github.com/anvilengine/anvil/internal/logging"
	"github.com/anvilengine/anvil/pkg/anvil"
)

func newImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <source-file>...",
		Short: "Import source files into the project",
		Long: `Scan each source file, create assets for its importables (including
recursively referenced files), run the import jobs, and save the resulting
assets and import data into the project.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			logger := logging.FromContext(ctx)

			project, err := anvil.Open(ctx, cfg.Project, anvil.WithWorkers(cfg.EffectiveWorkers()))
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			defer project.Close()

			for _, sourcePath := range args {
				assetID, importErr := project.ImportFile(ctx, sourcePath)
				if importErr != nil {
					return &ExitError{Code: 1, Err: fmt.Errorf("importing %s: %w", sourcePath, importErr)}
				}

				logger.Info("queued import",
					slog.String("source", sourcePath),
					slog.String("asset", assetID.String()),
				)
			}

			result, err := project.Update(ctx)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			for _, event := range result.ImportEvents {
				logger.Log(ctx, event.Level, event.Message, slog.String("source", event.Path))
			}

			if err := project.SaveAssets(); err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d file(s)\n", len(args))

			return nil
		},
	}

	return cmd
}

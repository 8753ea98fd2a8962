package cli

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/anvilengine/anvil/internal/config"
	"github.com/anvilengine/anvil/internal/storage"
)

func newPruneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove built artifacts no longer referenced by the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			fsys := afero.NewOsFs()

			manifest, err := storage.ReadManifest(fsys, cfg.BuildDataRoot())
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			removed, err := storage.PruneArtifacts(fsys, cfg.BuildDataRoot(), manifest)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d artifact(s)\n", removed)

			return nil
		},
	}
}

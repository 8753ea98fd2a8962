package cli

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/anvilengine/anvil/internal/config"
	"github.com/anvilengine/anvil/internal/schema"
)

func newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and maintain the project schema",
	}

	cmd.AddCommand(newSchemaLintCommand(), newSchemaCacheCommand())

	return cmd
}

func newSchemaLintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Link the schema sources and report the resulting types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			fsys := afero.NewOsFs()

			set, err := linkProjectSchema(fsys, cfg)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			for _, t := range set.All() {
				kind := "record"

				switch t.(type) {
				case *schema.Enum:
					kind = "enum"
				case *schema.Fixed:
					kind = "fixed"
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %-32s %s\n", kind, t.Name(), t.Fingerprint())
			}

			return nil
		},
	}
}

func newSchemaCacheCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cache",
		Short: "Refresh the schema cache from the linked sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			fsys := afero.NewOsFs()

			set, err := linkProjectSchema(fsys, cfg)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			cached, err := schema.LoadCache(fsys, cfg.SchemaCachePath())
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			set.Merge(cached)

			if err := schema.SaveCache(fsys, cfg.SchemaCachePath(), set); err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "cached %d types to %s\n", len(set.All()), cfg.SchemaCachePath())

			return nil
		},
	}
}

// linkProjectSchema links the project's schema sources (plus built-ins).
func linkProjectSchema(fsys afero.Fs, cfg *config.Config) (*schema.Set, error) {
	linker := schema.NewLinker()

	if exists, _ := afero.DirExists(fsys, cfg.SchemaDir()); exists {
		if err := linker.AddSourceDir(fsys, cfg.SchemaDir()); err != nil {
			return nil, err
		}
	}

	return linker.Link()
}

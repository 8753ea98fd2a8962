package engine

import (
	"github.com/anvilengine/anvil/internal/build"
	"github.com/anvilengine/anvil/internal/importer"
	"github.com/anvilengine/anvil/internal/schema"
)

// Plugin contributes schema declarations, importers, builders, and job
// processors to a project. Plugins run at setup, before linking.
type Plugin interface {
	Setup(reg *PluginRegistration) error
}

// PluginRegistration collects contributions from every plugin, then Finish
// resolves them against the linked schema set into immutable registries.
type PluginRegistration struct {
	Linker     *schema.Linker
	Importers  *importer.Registry
	Builders   *build.BuilderRegistry
	Processors *build.ProcessorRegistry
}

// NewPluginRegistration returns an empty registration backed by a fresh
// linker.
func NewPluginRegistration() *PluginRegistration {
	return &PluginRegistration{
		Linker:     schema.NewLinker(),
		Importers:  importer.NewRegistry(),
		Builders:   build.NewBuilderRegistry(),
		Processors: build.NewProcessorRegistry(),
	}
}

// RegisterPlugin runs one plugin's setup.
func (r *PluginRegistration) RegisterPlugin(p Plugin) error {
	return p.Setup(r)
}

// Finish links the schema and binds builders to their asset types. The
// returned schema set feeds the engine and all storage.
func (r *PluginRegistration) Finish() (*schema.Set, error) {
	set, err := r.Linker.Link()
	if err != nil {
		return nil, err
	}

	if err := r.Builders.Finish(set); err != nil {
		return nil, err
	}

	return set, nil
}

package importer

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Registry maps importer type UUIDs to importers and keeps a secondary
// index from file extension to the importers claiming it. Registration
// happens during plugin setup; lookups afterwards are read-only.
type Registry struct {
	importers  map[uuid.UUID]Importer
	extensions map[string][]uuid.UUID
}

// NewRegistry returns an empty importer registry.
func NewRegistry() *Registry {
	return &Registry{
		importers:  map[uuid.UUID]Importer{},
		extensions: map[string][]uuid.UUID{},
	}
}

// Register adds an importer and indexes its extensions.
func (r *Registry) Register(imp Importer) error {
	id := imp.ImporterID()
	if _, exists := r.importers[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateImporter, id)
	}

	r.importers[id] = imp

	for _, ext := range imp.SupportedFileExtensions() {
		ext = strings.ToLower(strings.TrimPrefix(ext, "."))
		r.extensions[ext] = append(r.extensions[ext], id)
	}

	return nil
}

// Importer resolves an importer by type UUID.
func (r *Registry) Importer(id uuid.UUID) (Importer, error) {
	imp, ok := r.importers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImporterNotFound, id)
	}

	return imp, nil
}

// ImportersForExtension lists importer IDs claiming a file extension
// (without dot, case-insensitive).
func (r *Registry) ImportersForExtension(ext string) []uuid.UUID {
	return r.extensions[strings.ToLower(strings.TrimPrefix(ext, "."))]
}

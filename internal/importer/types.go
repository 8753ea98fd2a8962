// Package importer implements the import half of the pipeline: the
// importer registry, recursive scan-and-create of assets from source files,
// and the queued import jobs that extract canonical import data off the
// main thread.
package importer

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/schema"
)

// ReferencedSourceFile is a path-style reference from one source file to
// another (e.g. a material referencing a texture) that must resolve to an
// asset before building.
type ReferencedSourceFile struct {
	// ImporterID selects the importer for the referenced file.
	ImporterID uuid.UUID
	// Path is the reference as written in the source file, usually
	// relative to it.
	Path string
}

// ScannedImportable is one importable discovered by a cheap scan. A file
// may hold several (one mesh, many materials); the default importable has
// an empty name.
type ScannedImportable struct {
	Name           string
	AssetType      *schema.Record
	FileReferences []ReferencedSourceFile
}

// ImportableAsset hands an importer the asset an importable maps to plus
// the resolved targets of its path references.
type ImportableAsset struct {
	ID              dataset.AssetID
	ReferencedPaths map[string]dataset.AssetID
}

// ImportedImportable is the product of importing one importable: an
// optional default asset record (for newly generated assets) and the
// canonical import data payload.
type ImportedImportable struct {
	DefaultAsset *dataset.SingleObject
	ImportData   *dataset.SingleObject
}

// ScanContext carries what scan_file may consult.
type ScanContext struct {
	Fs        afero.Fs
	Path      string
	SchemaSet *schema.Set
	Registry  *Registry
}

// ImportContext carries what import_file may consult. Importables lists
// the assets confirmed for import, keyed by importable name.
type ImportContext struct {
	Fs          afero.Fs
	Path        string
	SchemaSet   *schema.Set
	Importables map[string]ImportableAsset
}

// Importer extracts importables from one family of source file formats.
// Implementations are registered under a stable type UUID.
type Importer interface {
	// ImporterID is the stable identity of this importer.
	ImporterID() uuid.UUID

	// SupportedFileExtensions lists extensions (without dot) this importer
	// handles.
	SupportedFileExtensions() []string

	// ScanFile cheaply lists the importables available in a file.
	ScanFile(ctx context.Context, scan ScanContext) ([]ScannedImportable, error)

	// ImportFile extracts asset defaults and import data for the
	// confirmed importables, keyed by importable name.
	ImportFile(ctx context.Context, imp ImportContext) (map[string]ImportedImportable, error)
}

package importer

import (
	"context"
	"fmt"
	"path"

	"github.com/spf13/afero"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/anvilengine/anvil/internal/dataset"
)

// QueuedImport is one pending import operation: a source file, the importer
// to run, and the assets its importables map onto.
type QueuedImport struct {
	SourceFilePath string
	ImporterID     uuid.UUID
	// RequestedImportables maps importable name (empty for the default)
	// to the destination asset.
	RequestedImportables map[string]dataset.AssetID
	// AssetsToRegenerate are newly created assets whose default overrides
	// should be populated from the import result.
	AssetsToRegenerate mapset.Set[dataset.AssetID]
}

// RecursiveImport scans a source file, creates (or finds) an asset per
// importable at the destination location, recursively processes referenced
// source files first, and appends the import operations to queue. It
// returns the asset of the file's default importable, if any.
//
// inFlight holds the source paths currently being processed so reference
// cycles terminate; pass a fresh set at the root call.
func RecursiveImport(
	ctx context.Context,
	sourceFs afero.Fs,
	ec *dataset.EditContext,
	registry *Registry,
	importerID uuid.UUID,
	sourcePath string,
	location dataset.Location,
	queue *[]QueuedImport,
	inFlight mapset.Set[string],
) (dataset.AssetID, error) {
	if !inFlight.Add(sourcePath) {
		// Already being processed higher up the recursion; the reference
		// resolves once that import lands.
		return uuid.Nil, nil
	}
	defer inFlight.Remove(sourcePath)

	imp, err := registry.Importer(importerID)
	if err != nil {
		return uuid.Nil, err
	}

	scanned, err := imp.ScanFile(ctx, ScanContext{Fs: sourceFs, Path: sourcePath, SchemaSet: ec.SchemaSet(), Registry: registry})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: scanning %s: %v", ErrSourceFileUnreadable, sourcePath, err)
	}

	op := QueuedImport{
		SourceFilePath:       sourcePath,
		ImporterID:           importerID,
		RequestedImportables: map[string]dataset.AssetID{},
		AssetsToRegenerate:   mapset.NewThreadUnsafeSet[dataset.AssetID](),
	}

	defaultAsset := uuid.Nil

	for _, importable := range scanned {
		refs := make([]string, 0, len(importable.FileReferences))
		refTargets := map[string]dataset.AssetID{}

		for _, ref := range importable.FileReferences {
			refs = append(refs, ref.Path)

			refAbsolute := ref.Path
			if !path.IsAbs(refAbsolute) {
				refAbsolute = path.Join(path.Dir(sourcePath), refAbsolute)
			}

			// An existing asset already imported from the referenced file
			// (as its default importable) wins; otherwise import it now.
			target := findExistingImport(ec.DataSet(), refAbsolute, "")
			if target == uuid.Nil {
				target, err = RecursiveImport(ctx, sourceFs, ec, registry, ref.ImporterID, refAbsolute, location, queue, inFlight)
				if err != nil {
					return uuid.Nil, err
				}
			}

			if target != uuid.Nil {
				refTargets[ref.Path] = target
			}
		}

		assetID := findExistingImport(ec.DataSet(), sourcePath, importable.Name)
		if assetID == uuid.Nil {
			assetID, err = ec.NewAsset(importableAssetName(sourcePath, importable.Name), location, importable.AssetType)
			if err != nil {
				return uuid.Nil, err
			}

			// Freshly created assets get their default overrides from the
			// import result.
			op.AssetsToRegenerate.Add(assetID)
		}

		info := &dataset.ImportInfo{
			ImporterID:     importerID,
			SourceFilePath: sourcePath,
			ImportableName: importable.Name,
			FileReferences: refs,
		}
		if err := ec.SetImportInfo(assetID, info); err != nil {
			return uuid.Nil, err
		}

		for refPath, target := range refTargets {
			if err := ec.SetFileReferenceOverride(assetID, refPath, target); err != nil {
				return uuid.Nil, err
			}
		}

		op.RequestedImportables[importable.Name] = assetID

		if importable.Name == "" {
			defaultAsset = assetID
		}
	}

	*queue = append(*queue, op)

	return defaultAsset, nil
}

// findExistingImport locates an asset whose import info references the
// given (source file, importable name) pair.
func findExistingImport(ds *dataset.DataSet, sourcePath, importableName string) dataset.AssetID {
	for id, a := range ds.Assets() {
		if a.ImportInfo == nil {
			continue
		}

		if a.ImportInfo.SourceFilePath == sourcePath && a.ImportInfo.ImportableName == importableName {
			return id
		}
	}

	return uuid.Nil
}

// importableAssetName derives the default asset name for an importable:
// the source file name, suffixed with the importable name when present.
func importableAssetName(sourcePath, importableName string) string {
	name := path.Base(sourcePath)
	if importableName != "" {
		name = name + "." + importableName
	}

	return name
}

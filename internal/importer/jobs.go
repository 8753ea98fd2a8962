package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/hashing"
	"github.com/anvilengine/anvil/internal/storage"
)

// LogEvent is one structured import diagnostic, collected per pass.
type LogEvent struct {
	Path    string
	AssetID dataset.AssetID
	Level   slog.Level
	Message string
}

// Jobs runs queued import operations on a bounded worker group and applies
// the results: import data files land on disk before any asset state
// changes, so a crash never leaves the edit context ahead of the store.
type Jobs struct {
	fsys           afero.Fs
	importDataRoot string
	registry       *Registry
	workerCount    int

	queued []QueuedImport

	// metadataHashes mirrors the metadata header of each on-disk import
	// data file, feeding the combined build hash.
	metadataHashes map[dataset.AssetID]hashing.Hash64
}

// NewJobs returns an import job runner.
func NewJobs(fsys afero.Fs, importDataRoot string, registry *Registry, workerCount int) *Jobs {
	if workerCount < 1 {
		workerCount = 1
	}

	return &Jobs{
		fsys:           fsys,
		importDataRoot: importDataRoot,
		registry:       registry,
		workerCount:    workerCount,
		metadataHashes: map[dataset.AssetID]hashing.Hash64{},
	}
}

// Queue appends an import operation for the next Update. Operations for a
// source file already queued under the same importer merge, keeping at
// most one import in flight per asset.
func (j *Jobs) Queue(op QueuedImport) {
	for i := range j.queued {
		queued := &j.queued[i]
		if queued.SourceFilePath != op.SourceFilePath || queued.ImporterID != op.ImporterID {
			continue
		}

		for name, assetID := range op.RequestedImportables {
			queued.RequestedImportables[name] = assetID
		}

		queued.AssetsToRegenerate = queued.AssetsToRegenerate.Union(op.AssetsToRegenerate)

		return
	}

	j.queued = append(j.queued, op)
}

// Pending reports whether operations are waiting.
func (j *Jobs) Pending() bool { return len(j.queued) > 0 }

// MetadataHashes returns a copy of the per-asset import metadata hashes.
func (j *Jobs) MetadataHashes() map[dataset.AssetID]hashing.Hash64 {
	out := make(map[dataset.AssetID]hashing.Hash64, len(j.metadataHashes))
	for k, v := range j.metadataHashes {
		out[k] = v
	}

	return out
}

// RefreshMetadata loads the metadata headers of every import data file
// referenced by assets in the data set. Missing files queue no error; the
// rebuild decision treats them as out of date.
func (j *Jobs) RefreshMetadata(ds *dataset.DataSet) {
	for id, a := range ds.Assets() {
		if a.ImportInfo == nil {
			continue
		}

		meta, err := storage.ReadImportMetadata(j.fsys, storage.ImportDataPath(j.importDataRoot, id))
		if err != nil {
			delete(j.metadataHashes, id)
			continue
		}

		j.metadataHashes[id] = meta.Hash()
	}
}

// QueueOutOfDateImports compares each imported asset's source file mtime
// and size against the stored import-data metadata and queues re-imports
// for mismatches. A changed contents hash alone never re-imports; that is
// the build layer's signal.
func (j *Jobs) QueueOutOfDateImports(sourceFs afero.Fs, ds *dataset.DataSet) error {
	type group struct {
		op QueuedImport
	}

	groups := map[string]*group{}

	for id, a := range ds.Assets() {
		if a.ImportInfo == nil {
			continue
		}

		stat, err := sourceFs.Stat(a.ImportInfo.SourceFilePath)
		if err != nil {
			// Unreadable source files surface as log events at run time.
			continue
		}

		meta, err := storage.ReadImportMetadata(j.fsys, storage.ImportDataPath(j.importDataRoot, id))
		upToDate := err == nil &&
			meta.SourceFileModified == uint64(stat.ModTime().UnixNano()) &&
			meta.SourceFileSize == uint64(stat.Size())

		if upToDate {
			continue
		}

		key := a.ImportInfo.ImporterID.String() + ":" + a.ImportInfo.SourceFilePath

		g, ok := groups[key]
		if !ok {
			g = &group{op: QueuedImport{
				SourceFilePath:       a.ImportInfo.SourceFilePath,
				ImporterID:           a.ImportInfo.ImporterID,
				RequestedImportables: map[string]dataset.AssetID{},
				AssetsToRegenerate:   newAssetIDSet(),
			}}
			groups[key] = g
		}

		g.op.RequestedImportables[a.ImportInfo.ImportableName] = id
	}

	for _, g := range groups {
		j.Queue(g.op)
	}

	return nil
}

// importOutcome carries one worker's result back to the applying thread.
type importOutcome struct {
	op      QueuedImport
	results map[string]ImportedImportable
	err     error
}

// Update drains the queue: workers run import_file and write import data
// files; the calling goroutine then merges results into the edit context
// (default overrides for regenerated assets, metadata hash bookkeeping).
// Per-operation failures become log events; the pass continues.
func (j *Jobs) Update(ctx context.Context, sourceFs afero.Fs, ec *dataset.EditContext) []LogEvent {
	if len(j.queued) == 0 {
		return nil
	}

	ops := j.queued
	j.queued = nil

	requests := make(chan QueuedImport)
	outcomes := make(chan importOutcome, len(ops))

	var workers sync.WaitGroup

	for i := 0; i < j.workerCount; i++ {
		workers.Add(1)

		go func() {
			defer workers.Done()

			for op := range requests {
				outcomes <- j.runImport(ctx, sourceFs, ec.DataSet(), op)
			}
		}()
	}

	for _, op := range ops {
		requests <- op
	}

	close(requests)
	workers.Wait()
	close(outcomes)

	var events []LogEvent

	for outcome := range outcomes {
		if outcome.err != nil {
			events = append(events, LogEvent{
				Path:    outcome.op.SourceFilePath,
				Level:   slog.LevelError,
				Message: outcome.err.Error(),
			})

			continue
		}

		events = append(events, j.applyOutcome(ec, outcome)...)
	}

	return events
}

// runImport executes one import operation on a worker: calls the importer
// and writes each produced import data file.
func (j *Jobs) runImport(ctx context.Context, sourceFs afero.Fs, ds *dataset.DataSet, op QueuedImport) importOutcome {
	imp, err := j.registry.Importer(op.ImporterID)
	if err != nil {
		return importOutcome{op: op, err: err}
	}

	stat, err := sourceFs.Stat(op.SourceFilePath)
	if err != nil {
		return importOutcome{op: op, err: fmt.Errorf("%w: %s: %v", ErrSourceFileUnreadable, op.SourceFilePath, err)}
	}

	importables := map[string]ImportableAsset{}

	for name, assetID := range op.RequestedImportables {
		refs := map[string]dataset.AssetID{}

		if a, assetErr := ds.Asset(assetID); assetErr == nil {
			for refPath, target := range a.FileReferenceOverrides {
				refs[refPath] = target
			}
		}

		importables[name] = ImportableAsset{ID: assetID, ReferencedPaths: refs}
	}

	results, err := imp.ImportFile(ctx, ImportContext{
		Fs:          sourceFs,
		Path:        op.SourceFilePath,
		SchemaSet:   ds.SchemaSet(),
		Importables: importables,
	})
	if err != nil {
		return importOutcome{op: op, err: fmt.Errorf("importing %s: %w", op.SourceFilePath, err)}
	}

	// Import data hits disk before the outcome is applied.
	for name, result := range results {
		assetID, requested := op.RequestedImportables[name]
		if !requested || result.ImportData == nil {
			continue
		}

		meta := storage.ImportMetadata{
			SourceFileModified: uint64(stat.ModTime().UnixNano()),
			SourceFileSize:     uint64(stat.Size()),
			ContentsHash:       result.ImportData.ContentsHash(),
		}

		path := storage.ImportDataPath(j.importDataRoot, assetID)
		if writeErr := storage.WriteImportData(j.fsys, path, result.ImportData, meta); writeErr != nil {
			return importOutcome{op: op, err: writeErr}
		}
	}

	return importOutcome{op: op, results: results}
}

// applyOutcome merges one import result into the edit context on the
// calling thread.
func (j *Jobs) applyOutcome(ec *dataset.EditContext, outcome importOutcome) []LogEvent {
	var events []LogEvent

	for name, assetID := range outcome.op.RequestedImportables {
		result, ok := outcome.results[name]
		if !ok {
			events = append(events, LogEvent{
				Path:    outcome.op.SourceFilePath,
				AssetID: assetID,
				Level:   slog.LevelWarn,
				Message: fmt.Sprintf("%v: %q", ErrImportableMissing, name),
			})

			continue
		}

		if result.ImportData != nil {
			meta, err := storage.ReadImportMetadata(j.fsys, storage.ImportDataPath(j.importDataRoot, assetID))
			if err == nil {
				j.metadataHashes[assetID] = meta.Hash()
			}
		}

		if result.DefaultAsset != nil && outcome.op.AssetsToRegenerate.Contains(assetID) {
			if err := applyDefaultAsset(ec, assetID, result.DefaultAsset); err != nil {
				events = append(events, LogEvent{
					Path:    outcome.op.SourceFilePath,
					AssetID: assetID,
					Level:   slog.LevelError,
					Message: err.Error(),
				})
			}
		}
	}

	return events
}

// applyDefaultAsset copies importer-produced default overrides onto a
// freshly generated asset.
func applyDefaultAsset(ec *dataset.EditContext, assetID dataset.AssetID, defaults *dataset.SingleObject) error {
	return ec.WithUndoContext("import", func(tc *dataset.EditContext) error {
		a, err := tc.DataSet().Asset(assetID)
		if err != nil {
			return err
		}

		// Entry lists first so property paths through containers validate.
		for path, entries := range defaults.DynamicArrayEntries {
			a.DynamicArrayEntries[path] = append([]uuid.UUID(nil), entries...)
		}

		for path, entries := range defaults.MapEntries {
			a.MapEntries[path] = entries.Clone()
		}

		for path, state := range defaults.NullOverrides {
			a.NullOverrides[path] = state
		}

		for path, value := range defaults.Properties {
			if err := tc.SetProperty(assetID, path, value.Clone()); err != nil {
				return fmt.Errorf("default override %q: %w", path, err)
			}
		}

		return nil
	})
}

func newAssetIDSet() mapset.Set[dataset.AssetID] {
	return mapset.NewThreadUnsafeSet[dataset.AssetID]()
}

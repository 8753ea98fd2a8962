// Package engine ties the pipeline together: one AssetEngine owns the
// importer and builder registries, the import job runner, and the build
// executor, and drives the import-then-build cycle with the combined
// build-hash rebuild decision.
package engine

import (
	"context"
	"fmt"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"

	"github.com/anvilengine/anvil/internal/build"
	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/hashing"
	"github.com/anvilengine/anvil/internal/importer"
	"github.com/anvilengine/anvil/internal/schema"
	"github.com/anvilengine/anvil/internal/storage"
)

// Config carries the explicit roots and sizes an engine needs; there is no
// global state.
type Config struct {
	Fs             afero.Fs
	SourceFs       afero.Fs // where importers read source files; defaults to Fs
	ImportDataRoot string
	JobDataRoot    string
	BuildDataRoot  string
	WorkerCount    int

	// LockPath, when set, takes an advisory file lock for the lifetime of
	// the engine so two processes cannot build one project concurrently.
	// Only meaningful on an OS filesystem.
	LockPath string
}

// UpdateResult reports what one engine tick did.
type UpdateResult struct {
	ImportedAnything  bool
	BuildRan          bool
	CombinedBuildHash hashing.Hash64
	Manifest          *storage.Manifest
	ImportEvents      []importer.LogEvent
	BuildEvents       []build.LogEvent
}

// AssetEngine owns the pipeline registries and job state for one project.
type AssetEngine struct {
	cfg       Config
	schemaSet *schema.Set

	importers  *importer.Registry
	importJobs *importer.Jobs
	builders   *build.BuilderRegistry
	executor   *build.Executor

	previousCombinedBuildHash hashing.Hash64
	hasPreviousBuild          bool

	lock *flock.Flock
}

// New constructs an engine from finished registries.
func New(cfg Config, schemaSet *schema.Set, importers *importer.Registry, builders *build.BuilderRegistry, processors *build.ProcessorRegistry) (*AssetEngine, error) {
	if cfg.SourceFs == nil {
		cfg.SourceFs = cfg.Fs
	}

	e := &AssetEngine{
		cfg:       cfg,
		schemaSet: schemaSet,
		importers: importers,
		importJobs: importer.NewJobs(cfg.Fs, cfg.ImportDataRoot, importers, cfg.WorkerCount),
		builders:  builders,
		executor: build.NewExecutor(build.ExecutorConfig{
			Fs:             cfg.Fs,
			JobDataRoot:    cfg.JobDataRoot,
			BuildDataRoot:  cfg.BuildDataRoot,
			ImportDataRoot: cfg.ImportDataRoot,
			Processors:     processors,
			SchemaSet:      schemaSet,
			WorkerCount:    cfg.WorkerCount,
		}),
	}

	if cfg.LockPath != "" {
		e.lock = flock.New(cfg.LockPath)

		locked, err := e.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("locking project: %w", err)
		}

		if !locked {
			return nil, fmt.Errorf("project is locked by another process (%s)", cfg.LockPath)
		}
	}

	// Resuming the last completed build's combined hash avoids a full
	// rebuild on every process start.
	if state, err := readBuildState(cfg.Fs, cfg.BuildDataRoot); err == nil && state != nil {
		e.previousCombinedBuildHash = state.CombinedBuildHash
		e.hasPreviousBuild = true
	}

	return e, nil
}

// Close stops the worker pools and releases the project lock.
func (e *AssetEngine) Close() {
	e.executor.Close()

	if e.lock != nil {
		_ = e.lock.Unlock()
	}
}

// Importers exposes the importer registry.
func (e *AssetEngine) Importers() *importer.Registry { return e.importers }

// QueueImport enqueues a pending import operation.
func (e *AssetEngine) QueueImport(op importer.QueuedImport) {
	e.importJobs.Queue(op)
}

// QueueOutOfDateImports schedules re-imports for assets whose source files
// changed since their import data was written.
func (e *AssetEngine) QueueOutOfDateImports(ec *dataset.EditContext) error {
	return e.importJobs.QueueOutOfDateImports(e.cfg.SourceFs, ec.DataSet())
}

// RefreshImportMetadata reloads the on-disk import metadata hashes.
func (e *AssetEngine) RefreshImportMetadata(ec *dataset.EditContext) {
	e.importJobs.RefreshMetadata(ec.DataSet())
}

// Update runs one engine tick: drain pending imports, recompute the
// combined build hash, and run a build pass when it moved. The edit
// context is only mutated on the calling goroutine.
func (e *AssetEngine) Update(ctx context.Context, ec *dataset.EditContext) (*UpdateResult, error) {
	result := &UpdateResult{}

	// Pending imports invalidate any in-flight build pass.
	if e.importJobs.Pending() {
		e.executor.CancelPass()

		result.ImportEvents = e.importJobs.Update(ctx, e.cfg.SourceFs, ec)
		result.ImportedAnything = true

		for id := range ec.DataSet().Assets() {
			e.executor.InvalidateImportData(id)
		}
	}

	// Hash everything a build could consume.
	assetHashes := map[dataset.AssetID]hashing.Hash64{}

	for id := range ec.DataSet().Assets() {
		h, err := ec.DataSet().HashProperties(id)
		if err != nil {
			return nil, err
		}

		assetHashes[id] = h
	}

	importHashes := e.importJobs.MetadataHashes()
	combined := build.CombinedBuildHash(assetHashes, importHashes)
	result.CombinedBuildHash = combined

	if e.hasPreviousBuild && combined == e.previousCombinedBuildHash {
		return result, nil
	}

	manifest, buildEvents, err := e.runBuildPass(ctx, ec)
	if err != nil {
		return nil, err
	}

	result.BuildRan = true
	result.Manifest = manifest
	result.BuildEvents = buildEvents
	e.previousCombinedBuildHash = combined
	e.hasPreviousBuild = true

	if err := writeBuildState(e.cfg.Fs, e.cfg.BuildDataRoot, &buildState{CombinedBuildHash: combined}); err != nil {
		return nil, err
	}

	return result, nil
}

// runBuildPass starts jobs for every buildable asset against a data set
// snapshot, runs the graph to completion, and atomically publishes the
// manifest. A failed pass leaves the previous manifest untouched.
func (e *AssetEngine) runBuildPass(ctx context.Context, ec *dataset.EditContext) (*storage.Manifest, []build.LogEvent, error) {
	snapshot := ec.DataSet().Clone()
	e.executor.StartPass(snapshot)

	for id, a := range snapshot.Assets() {
		fp := a.Schema.Fingerprint()
		if !e.builders.HasBuilder(fp) {
			continue
		}

		builder, err := e.builders.BuilderForAsset(fp)
		if err != nil {
			return nil, nil, err
		}

		if err := builder.StartJobs(build.NewBuilderContext(id, snapshot, e.schemaSet, e.executor)); err != nil {
			return nil, e.executor.LogEvents(), fmt.Errorf("starting jobs for %s: %w", id, err)
		}
	}

	written, err := e.executor.RunToCompletion(ctx)
	events := e.executor.LogEvents()

	if err != nil {
		return nil, events, err
	}

	manifest := &storage.Manifest{}
	seen := map[storage.ArtifactID]bool{}

	for _, artifact := range written {
		if seen[artifact.ArtifactID] {
			continue
		}

		seen[artifact.ArtifactID] = true
		manifest.Entries = append(manifest.Entries, storage.ManifestEntry{
			ArtifactID:   artifact.ArtifactID,
			BuildHash:    artifact.BuildHash,
			SymbolHash:   symbolHash(artifact.DebugName),
			ArtifactType: artifact.AssetType,
			DebugName:    artifact.DebugName,
		})
	}

	if err := storage.WriteManifests(e.cfg.Fs, e.cfg.BuildDataRoot, manifest); err != nil {
		return nil, events, err
	}

	return manifest, events, nil
}

// symbolHash derives the symbol hash of an artifact from its debug name;
// unnamed artifacts are not symbol-addressable.
func symbolHash(debugName string) hashing.Hash64 {
	if debugName == "" {
		return 0
	}

	return hashing.Sum64([]byte(debugName))
}

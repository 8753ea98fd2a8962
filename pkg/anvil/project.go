// Package anvil exposes the asset pipeline as a library: open a project,
// import source files, run build passes, and read the published manifest,
// without going through the CLI.
//
// Basic usage:
//
//	project, err := anvil.Open(ctx, "path/to/project")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer project.Close()
//
//	if _, err := project.ImportFile(ctx, "textures/stone.sd"); err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := project.Build(ctx)
package anvil

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/anvilengine/anvil/internal/build"
	"github.com/anvilengine/anvil/internal/config"
	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/engine"
	"github.com/anvilengine/anvil/internal/importer"
	"github.com/anvilengine/anvil/internal/schema"
	"github.com/anvilengine/anvil/internal/simpledata"
	"github.com/anvilengine/anvil/internal/storage"
)

// pathBasedSourceNamespace seeds the deterministic source ID of the
// path-based asset store.
var pathBasedSourceNamespace = uuid.MustParse("0d1cb3cf-9c36-46a6-b1fb-4b5cfd3f1bfc")

// Option customizes Open.
type Option func(*options)

type options struct {
	fs       afero.Fs
	sourceFs afero.Fs
	plugins  []engine.Plugin
	workers  int
	noLock   bool
}

// WithFs replaces the project filesystem (tests use afero memfs).
func WithFs(fsys afero.Fs) Option {
	return func(o *options) { o.fs = fsys }
}

// WithSourceFs replaces the filesystem importers read source files from.
func WithSourceFs(fsys afero.Fs) Option {
	return func(o *options) { o.sourceFs = fsys }
}

// WithPlugin registers an additional asset plugin.
func WithPlugin(p engine.Plugin) Option {
	return func(o *options) { o.plugins = append(o.plugins, p) }
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithoutLock disables the advisory project lock (required on non-OS
// filesystems).
func WithoutLock() Option {
	return func(o *options) { o.noLock = true }
}

// Project is an opened asset pipeline project.
type Project struct {
	cfg       *config.Config
	fs        afero.Fs
	sourceFs  afero.Fs
	schemaSet *schema.Set
	editCtx   *dataset.EditContext
	engine    *engine.AssetEngine
	sourceID  uuid.UUID
}

// Open loads a project: plugins register, schema sources link, the schema
// cache merges and refreshes, stored assets load, and the engine locks the
// project directory.
func Open(ctx context.Context, dir string, opts ...Option) (*Project, error) {
	o := options{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.sourceFs == nil {
		o.sourceFs = o.fs
	}

	cfg := config.Default()
	cfg.Project = dir
	cfg.Workers = o.workers

	// Plugins first, then file-authored schema sources.
	reg := engine.NewPluginRegistration()

	plugins := append([]engine.Plugin{simpledata.Plugin{}}, o.plugins...)
	for _, p := range plugins {
		if err := reg.RegisterPlugin(p); err != nil {
			return nil, fmt.Errorf("registering plugin: %w", err)
		}
	}

	if exists, _ := afero.DirExists(o.fs, cfg.SchemaDir()); exists {
		if err := reg.Linker.AddSourceDir(o.fs, cfg.SchemaDir()); err != nil {
			return nil, err
		}
	}

	schemaSet, err := reg.Finish()
	if err != nil {
		return nil, err
	}

	// Merge the cached schema so data written against older structural
	// versions still loads, then refresh the cache with the live set.
	cached, err := schema.LoadCache(o.fs, cfg.SchemaCachePath())
	if err != nil {
		return nil, err
	}

	schemaSet.Merge(cached)

	if err := schema.SaveCache(o.fs, cfg.SchemaCachePath(), schemaSet); err != nil {
		return nil, err
	}

	// Load stored assets from both stores.
	ds := dataset.New(schemaSet)

	idBased, err := storage.LoadAllAssets(o.fs, cfg.AssetsIDRoot(), schemaSet)
	if err != nil {
		return nil, err
	}

	sourceID := uuid.NewSHA1(pathBasedSourceNamespace, []byte(filepath.Clean(dir)))

	pathBased, err := storage.LoadPathBased(o.fs, cfg.AssetsPathRoot(), sourceID, schemaSet)
	if err != nil {
		return nil, err
	}

	for _, a := range append(idBased, pathBased...) {
		if err := ds.InsertAsset(a); err != nil {
			return nil, err
		}
	}

	engineCfg := engine.Config{
		Fs:             o.fs,
		SourceFs:       o.sourceFs,
		ImportDataRoot: cfg.ImportDataRoot(),
		JobDataRoot:    cfg.JobDataRoot(),
		BuildDataRoot:  cfg.BuildDataRoot(),
		WorkerCount:    cfg.EffectiveWorkers(),
	}
	if !o.noLock {
		engineCfg.LockPath = cfg.LockPath()
	}

	eng, err := engine.New(engineCfg, schemaSet, reg.Importers, reg.Builders, reg.Processors)
	if err != nil {
		return nil, err
	}

	return &Project{
		cfg:       cfg,
		fs:        o.fs,
		sourceFs:  o.sourceFs,
		schemaSet: schemaSet,
		editCtx:   dataset.NewEditContext(ds),
		engine:    eng,
		sourceID:  sourceID,
	}, nil
}

// Close releases the engine's worker pools and project lock.
func (p *Project) Close() {
	p.engine.Close()
}

// SchemaSet returns the linked schema set.
func (p *Project) SchemaSet() *schema.Set { return p.schemaSet }

// EditContext returns the project's main edit context.
func (p *Project) EditContext() *dataset.EditContext { return p.editCtx }

// Engine returns the underlying asset engine.
func (p *Project) Engine() *engine.AssetEngine { return p.engine }

// ImportFile scans a source file, creates assets for its importables at the
// project root, queues the import operations (including recursively
// referenced files), and returns the default importable's asset.
func (p *Project) ImportFile(ctx context.Context, sourcePath string) (dataset.AssetID, error) {
	ext := strings.TrimPrefix(filepath.Ext(sourcePath), ".")

	candidates := p.engine.Importers().ImportersForExtension(ext)
	if len(candidates) == 0 {
		return uuid.Nil, fmt.Errorf("no importer registered for extension %q", ext)
	}

	var queue []importer.QueuedImport

	location := dataset.Location{SourceID: p.sourceID}

	assetID, err := importer.RecursiveImport(
		ctx, p.sourceFs, p.editCtx, p.engine.Importers(),
		candidates[0], sourcePath, location,
		&queue, mapset.NewThreadUnsafeSet[string](),
	)
	if err != nil {
		return uuid.Nil, err
	}

	for _, op := range queue {
		p.engine.QueueImport(op)
	}

	return assetID, nil
}

// Update runs one engine tick (pending imports, rebuild decision, build).
func (p *Project) Update(ctx context.Context) (*engine.UpdateResult, error) {
	return p.engine.Update(ctx, p.editCtx)
}

// Build refreshes import metadata, queues re-imports for changed source
// files, and pumps the engine until no more work is produced.
func (p *Project) Build(ctx context.Context) (*engine.UpdateResult, error) {
	p.engine.RefreshImportMetadata(p.editCtx)

	if err := p.engine.QueueOutOfDateImports(p.editCtx); err != nil {
		return nil, err
	}

	result, err := p.engine.Update(ctx, p.editCtx)
	if err != nil {
		return nil, err
	}

	// An import that somehow left the combined hash unmoved still deserves
	// one more tick so its data is considered for building.
	if result.ImportedAnything && !result.BuildRan {
		buildResult, buildErr := p.engine.Update(ctx, p.editCtx)
		if buildErr != nil {
			return nil, buildErr
		}

		buildResult.ImportedAnything = true
		buildResult.ImportEvents = append(result.ImportEvents, buildResult.ImportEvents...)

		return buildResult, nil
	}

	return result, nil
}

// SaveAssets writes every modified asset to the id-based store and clears
// the modified flags.
func (p *Project) SaveAssets() error {
	p.editCtx.CommitPendingUndoContext()

	modified := p.editCtx.ModifiedAssets()
	for _, id := range modified.ToSlice() {
		a, err := p.editCtx.DataSet().Asset(id)
		if err != nil {
			// Deleted assets lose their file.
			if removeErr := storage.DeleteAssetFile(p.fs, p.cfg.AssetsIDRoot(), id); removeErr != nil {
				return removeErr
			}

			p.editCtx.ClearModifiedFlag(id)

			continue
		}

		if err := storage.SaveAssetFile(p.fs, p.cfg.AssetsIDRoot(), p.schemaSet, a); err != nil {
			return err
		}

		p.editCtx.ClearModifiedFlag(id)
	}

	return nil
}

// Manifest reads the currently published manifest.
func (p *Project) Manifest() (*storage.Manifest, error) {
	return storage.ReadManifest(p.fs, p.cfg.BuildDataRoot())
}

// BuildEventSummary renders build log events for display.
func BuildEventSummary(events []build.LogEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, fmt.Sprintf("[%s] %s", e.Level, e.Message))
	}

	return out
}

package build

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/hashing"
	"github.com/anvilengine/anvil/internal/schema"
	"github.com/anvilengine/anvil/internal/storage"
)

// jobStatus is the lifecycle state of one job record.
type jobStatus uint8

const (
	statusPending jobStatus = iota
	statusInProgress
	statusCompleted
	statusFailed
)

// jobRecord tracks one job for the duration of a pass. Concurrent enqueues
// of the same JobID join the same record; at most one execution per JobID
// is ever in flight.
type jobRecord struct {
	id        JobID
	processor Processor
	input     []byte
	debugName string

	status     jobStatus
	enumerated bool
	deps       Dependencies
	cacheKey   hashing.Hash128

	output    []byte
	artifacts []WrittenArtifact
	errMsg    string
}

// Executor runs the job graph for one build pass at a time: it memoizes by
// JobID within the pass and by cache key across passes, dispatches ready
// jobs to the worker pool, writes artifacts before recording completion,
// and buffers manifest entries until the pass ends.
type Executor struct {
	fsys           afero.Fs
	jobDataRoot    string
	buildDataRoot  string
	importDataRoot string
	processors     *ProcessorRegistry
	schemaSet      *schema.Set
	pool           *workerPool

	generation uint64
	dataSet    *dataset.DataSet

	jobs        map[JobID]*jobRecord
	toEnumerate []JobID
	inFlight    int

	manifest  []WrittenArtifact
	logEvents []LogEvent

	// importContentsHashes memoizes the contents-hash header reads used in
	// cache keys. Only the contents hash participates; mtime and size are
	// the import layer's concern, so touching a source file without
	// changing it cannot invalidate builds.
	importContentsHashes map[dataset.AssetID]hashing.Hash64
}

// ExecutorConfig carries the explicit paths and sizes an executor needs.
type ExecutorConfig struct {
	Fs             afero.Fs
	JobDataRoot    string
	BuildDataRoot  string
	ImportDataRoot string
	Processors     *ProcessorRegistry
	SchemaSet      *schema.Set
	WorkerCount    int
}

// NewExecutor constructs an executor and starts its worker pool.
func NewExecutor(cfg ExecutorConfig) *Executor {
	return &Executor{
		fsys:                 cfg.Fs,
		jobDataRoot:          cfg.JobDataRoot,
		buildDataRoot:        cfg.BuildDataRoot,
		importDataRoot:       cfg.ImportDataRoot,
		processors:           cfg.Processors,
		schemaSet:            cfg.SchemaSet,
		pool:                 newWorkerPool(cfg.Fs, cfg.ImportDataRoot, cfg.SchemaSet, cfg.WorkerCount),
		jobs:                 map[JobID]*jobRecord{},
		importContentsHashes: map[dataset.AssetID]hashing.Hash64{},
	}
}

// Close drains and stops the worker pool.
func (e *Executor) Close() {
	e.pool.finish()
}

// StartPass resets per-pass state against a data set snapshot. Outcomes
// still in flight from an earlier pass carry an older generation and are
// discarded on arrival.
func (e *Executor) StartPass(snapshot *dataset.DataSet) {
	e.generation++
	e.dataSet = snapshot
	e.jobs = map[JobID]*jobRecord{}
	e.toEnumerate = nil
	e.manifest = nil
	e.logEvents = nil
	e.importContentsHashes = map[dataset.AssetID]hashing.Hash64{}
}

// CancelPass abandons the current pass; in-flight results will be ignored.
func (e *Executor) CancelPass() {
	e.generation++
	e.jobs = map[JobID]*jobRecord{}
	e.toEnumerate = nil
	e.manifest = nil
}

// InvalidateImportData drops cached import data after a re-import.
func (e *Executor) InvalidateImportData(id dataset.AssetID) {
	e.pool.invalidateImportData(id)
	delete(e.importContentsHashes, id)
}

// LogEvents returns the events collected so far this pass.
func (e *Executor) LogEvents() []LogEvent { return e.logEvents }

// EnqueueJob registers a job for this pass and returns its JobID. Repeat
// enqueues of the same identity join the existing record.
func (e *Executor) EnqueueJob(processorID uuid.UUID, input []byte, debugName string) (JobID, error) {
	processor, err := e.processors.Processor(processorID)
	if err != nil {
		return JobID{}, err
	}

	id := ComputeJobID(processorID, processor.Version(), input)
	if _, exists := e.jobs[id]; exists {
		return id, nil
	}

	record := &jobRecord{
		id:        id,
		processor: processor,
		input:     input,
		debugName: debugName,
	}
	if record.debugName == "" {
		record.debugName = fmt.Sprintf("%s:%s", processorID, id.UUID())
	}

	e.jobs[id] = record
	e.toEnumerate = append(e.toEnumerate, id)

	return id, nil
}

// RunToCompletion pumps the executor until every job of the pass has
// completed or failed, then returns the manifest entries.
func (e *Executor) RunToCompletion(ctx context.Context) ([]WrittenArtifact, error) {
	for {
		progressed, err := e.pump(ctx)
		if err != nil {
			return nil, err
		}

		if e.idle() {
			return e.manifest, nil
		}

		if e.inFlight > 0 {
			e.applyOutcome(e.pool.waitOne())
			continue
		}

		if !progressed {
			// Nothing runnable, nothing in flight: the remaining pending
			// jobs wait on each other. Fail them rather than spin.
			for _, record := range e.jobs {
				if record.status == statusPending {
					e.failJob(record, "unsatisfiable job dependencies")
				}
			}
		}
	}
}

// idle reports whether every job reached a terminal state.
func (e *Executor) idle() bool {
	if len(e.toEnumerate) > 0 || e.inFlight > 0 {
		return false
	}

	for _, record := range e.jobs {
		if record.status == statusPending || record.status == statusInProgress {
			return false
		}
	}

	return true
}

// pump performs one scheduling iteration: enumerate newly enqueued jobs,
// dispatch ready ones, and drain available outcomes.
func (e *Executor) pump(ctx context.Context) (bool, error) {
	progressed := false

	// 1. Enumerate dependencies of newly enqueued jobs.
	pending := e.toEnumerate
	e.toEnumerate = nil

	for _, id := range pending {
		record := e.jobs[id]
		if record.enumerated || record.status != statusPending {
			continue
		}

		progressed = true

		deps, err := record.processor.EnumerateDependencies(&EnumerateContext{
			Context:   ctx,
			DataSet:   e.dataSet,
			SchemaSet: e.schemaSet,
		}, record.input)
		if err != nil {
			e.failJob(record, err.Error())
			continue
		}

		missing := false

		for _, upstream := range deps.UpstreamJobs {
			if _, ok := e.jobs[upstream]; !ok {
				e.failJob(record, fmt.Sprintf("%v: %s", ErrDependencyNotEnqueued, upstream.UUID()))

				missing = true

				break
			}
		}

		if missing {
			continue
		}

		record.deps = deps
		record.enumerated = true
		record.cacheKey = ComputeJobCacheKey(id, e.importHashes(deps.ImportData), deps.UpstreamJobs)
	}

	// 2. Dispatch pending jobs whose upstreams completed.
	for _, record := range e.jobs {
		if record.status != statusPending || !record.enumerated {
			continue
		}

		ready := true

		for _, upstream := range record.deps.UpstreamJobs {
			up := e.jobs[upstream]
			if up == nil || up.status == statusFailed {
				e.failJob(record, fmt.Sprintf("upstream job %s failed", upstream.UUID()))

				ready = false

				break
			}

			if up.status != statusCompleted {
				ready = false
				break
			}
		}

		if !ready || record.status == statusFailed {
			continue
		}

		progressed = true

		// Cross-pass memoization: a cache hit skips the run entirely and
		// replays the recorded artifacts and child enqueues.
		if cached, hit := ReadJobCache(e.fsys, e.jobDataRoot, record.cacheKey); hit {
			record.status = statusCompleted
			record.output = cached.Output
			record.artifacts = cached.Artifacts
			e.manifest = append(e.manifest, cached.Artifacts...)

			for _, child := range cached.Enqueued {
				if _, err := e.EnqueueJob(child.ProcessorID, child.Input, child.DebugName); err != nil {
					e.failJob(record, err.Error())
					break
				}
			}

			continue
		}

		record.status = statusInProgress
		e.inFlight++
		e.pool.submit(runRequest{
			generation: e.generation,
			jobID:      record.id,
			processor:  record.processor,
			input:      record.input,
			debugName:  record.debugName,
			dataSet:    e.dataSet,
			schemaSet:  e.schemaSet,
		})
	}

	// 3. Drain outcomes that are already available.
	for _, outcome := range e.pool.drain() {
		progressed = true

		e.applyOutcome(outcome)
	}

	return progressed, nil
}

// applyOutcome records one worker result on the pump thread. Artifacts hit
// disk before the job is marked complete, so the store is never behind a
// completed job.
func (e *Executor) applyOutcome(outcome runOutcome) {
	if outcome.generation != e.generation {
		// Stale result from a cancelled pass.
		if e.inFlight > 0 {
			e.inFlight--
		}

		return
	}

	e.inFlight--
	e.logEvents = append(e.logEvents, outcome.logEvents...)

	record, ok := e.jobs[outcome.jobID]
	if !ok {
		return
	}

	if outcome.err != nil {
		e.failJob(record, outcome.err.Error())
		return
	}

	written := make([]WrittenArtifact, 0, len(outcome.artifacts))

	for _, artifact := range outcome.artifacts {
		buildHash, _, err := storage.WriteArtifact(e.fsys, e.buildDataRoot, artifact.ArtifactID, storage.ArtifactMetadata{
			Dependencies: artifact.Dependencies,
			AssetType:    artifact.AssetType,
		}, artifact.Data)
		if err != nil {
			e.failJob(record, err.Error())
			return
		}

		written = append(written, WrittenArtifact{
			AssetID:      artifact.AssetID,
			ArtifactID:   artifact.ArtifactID,
			AssetType:    artifact.AssetType,
			Dependencies: artifact.Dependencies,
			BuildHash:    buildHash,
			DebugName:    artifact.DebugName,
		})
	}

	if err := WriteJobCache(e.fsys, e.jobDataRoot, record.cacheKey, &CachedJob{
		Output:    outcome.output,
		Artifacts: written,
		Enqueued:  outcome.enqueued,
	}); err != nil {
		// A cache write failure costs a future rebuild, not this pass.
		e.logEvents = append(e.logEvents, LogEvent{
			JobID:   record.id,
			Level:   slog.LevelWarn,
			Message: err.Error(),
		})
	}

	for _, child := range outcome.enqueued {
		if _, err := e.EnqueueJob(child.ProcessorID, child.Input, child.DebugName); err != nil {
			e.failJob(record, err.Error())
			return
		}
	}

	record.status = statusCompleted
	record.output = outcome.output
	record.artifacts = written
	e.manifest = append(e.manifest, written...)
}

// failJob marks a job failed and records the failure as a log event.
// Dependents discover the failure at dispatch time and fail without
// running.
func (e *Executor) failJob(record *jobRecord, message string) {
	record.status = statusFailed
	record.errMsg = message
	e.logEvents = append(e.logEvents, LogEvent{
		JobID:   record.id,
		Level:   slog.LevelError,
		Message: message,
	})
}

// importHashes resolves the contents hashes of enumerated import data,
// reading headers on first use. Missing import data hashes as zero; the
// run will surface the real error when it fetches.
func (e *Executor) importHashes(ids []dataset.AssetID) []hashing.Hash64 {
	out := make([]hashing.Hash64, 0, len(ids))

	for _, id := range ids {
		if h, ok := e.importContentsHashes[id]; ok {
			out = append(out, h)
			continue
		}

		meta, err := storage.ReadImportMetadata(e.fsys, storage.ImportDataPath(e.importDataRoot, id))
		if err != nil {
			out = append(out, 0)
			continue
		}

		e.importContentsHashes[id] = meta.ContentsHash
		out = append(out, meta.ContentsHash)
	}

	return out
}

package build

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"

	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/schema"
	"github.com/anvilengine/anvil/internal/storage"
)

// importDataCacheSize bounds the worker-shared LRU of loaded import data.
const importDataCacheSize = 256

// runRequest asks a worker to execute one job.
type runRequest struct {
	generation uint64
	jobID      JobID
	processor  Processor
	input      []byte
	debugName  string
	dataSet    *dataset.DataSet
	schemaSet  *schema.Set
}

// runOutcome carries a finished job back to the pump thread.
type runOutcome struct {
	generation uint64
	jobID      JobID
	output     []byte
	artifacts  []ProducedArtifact
	enqueued   []EnqueuedJob
	logEvents  []LogEvent
	err        error
}

// workerPool is a fixed-size set of goroutines executing jobs. Workers
// never touch shared mutable state; requests and outcomes flow over
// channels and import data loads go through a thread-safe LRU. Closing the
// request channel drains and stops the workers.
type workerPool struct {
	fsys           afero.Fs
	importDataRoot string

	requests chan runRequest
	outcomes chan runOutcome
	wg       sync.WaitGroup

	finishOnce sync.Once

	importCache *lru.Cache[dataset.AssetID, *dataset.SingleObject]
	schemaSet   *schema.Set
}

// newWorkerPool spins up workerCount workers.
func newWorkerPool(fsys afero.Fs, importDataRoot string, schemaSet *schema.Set, workerCount int) *workerPool {
	if workerCount < 1 {
		workerCount = 1
	}

	cache, _ := lru.New[dataset.AssetID, *dataset.SingleObject](importDataCacheSize)

	p := &workerPool{
		fsys:           fsys,
		importDataRoot: importDataRoot,
		requests:       make(chan runRequest),
		outcomes:       make(chan runOutcome, workerCount*4),
		importCache:    cache,
		schemaSet:      schemaSet,
	}

	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)

		go func() {
			defer p.wg.Done()

			for req := range p.requests {
				p.outcomes <- p.runJob(context.Background(), req)
			}
		}()
	}

	return p
}

// submit hands a job to the pool; blocks when all workers are busy.
func (p *workerPool) submit(req runRequest) {
	p.requests <- req
}

// drain returns any outcomes available without blocking.
func (p *workerPool) drain() []runOutcome {
	var out []runOutcome

	for {
		select {
		case outcome := <-p.outcomes:
			out = append(out, outcome)
		default:
			return out
		}
	}
}

// waitOne blocks for a single outcome.
func (p *workerPool) waitOne() runOutcome {
	return <-p.outcomes
}

// finish stops the workers after the in-flight requests complete. Calling
// it again is a no-op.
func (p *workerPool) finish() {
	p.finishOnce.Do(func() { close(p.requests) })
	p.wg.Wait()
}

// invalidateImportData drops a cached import data entry after a re-import.
func (p *workerPool) invalidateImportData(id dataset.AssetID) {
	p.importCache.Remove(id)
}

func (p *workerPool) runJob(ctx context.Context, req runRequest) runOutcome {
	runCtx := &RunContext{
		Context:         ctx,
		JobID:           req.jobID,
		DataSet:         req.dataSet,
		SchemaSet:       req.schemaSet,
		fetchImportData: p.fetchImportData,
	}

	output, err := req.processor.Run(runCtx, req.input)
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrJobFailed, req.debugName, err)
	}

	return runOutcome{
		generation: req.generation,
		jobID:      req.jobID,
		output:     output,
		artifacts:  runCtx.artifacts,
		enqueued:   runCtx.enqueued,
		logEvents:  runCtx.logEvents,
		err:        err,
	}
}

// fetchImportData loads import data from the shared LRU or disk.
func (p *workerPool) fetchImportData(id dataset.AssetID) (*dataset.SingleObject, error) {
	if obj, ok := p.importCache.Get(id); ok {
		return obj, nil
	}

	// Single-flight per call site is not needed; duplicate loads are
	// harmless and the LRU converges.
	obj, _, err := storage.ReadImportData(p.fsys, p.schemaSet, storage.ImportDataPath(p.importDataRoot, id))
	if err != nil {
		return nil, fmt.Errorf("fetching import data for %s: %w", id, err)
	}

	p.importCache.Add(id, obj)

	return obj, nil
}

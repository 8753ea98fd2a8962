package build

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/schema"
	"github.com/anvilengine/anvil/internal/storage"
)

var (
	countingProcessorID = uuid.MustParse("e31f24a1-7f3f-4a3f-9b1f-77a58e68a001")
	parentProcessorID   = uuid.MustParse("e31f24a1-7f3f-4a3f-9b1f-77a58e68a002")
	failingProcessorID  = uuid.MustParse("e31f24a1-7f3f-4a3f-9b1f-77a58e68a003")
	spawningProcessorID = uuid.MustParse("e31f24a1-7f3f-4a3f-9b1f-77a58e68a004")
)

type countInput struct {
	Label string `json:"label"`
}

type countOutput struct {
	Label string `json:"label"`
}

// testHarness bundles an executor over a memfs with a run counter.
type testHarness struct {
	fsys      afero.Fs
	processors *ProcessorRegistry
	schemaSet *schema.Set
	runs      *atomic.Int64
}

func newHarness(t *testing.T, version uint32) *testHarness {
	t.Helper()

	set, err := schema.NewLinker().Link()
	require.NoError(t, err)

	h := &testHarness{
		fsys:       afero.NewMemMapFs(),
		processors: NewProcessorRegistry(),
		schemaSet:  set,
		runs:       &atomic.Int64{},
	}

	counting := NewProcessor(countingProcessorID, version, nil,
		func(ctx *RunContext, input countInput) (countOutput, error) {
			h.runs.Add(1)
			ctx.ProduceArtifact(uuid.Nil, countingProcessorID, nil, []byte("artifact:"+input.Label), input.Label)

			return countOutput{Label: input.Label}, nil
		})
	require.NoError(t, h.processors.Register(counting))

	parent := NewProcessor(parentProcessorID, version,
		func(_ *EnumerateContext, input countInput) (Dependencies, error) {
			upstream := ComputeJobID(countingProcessorID, version, mustMarshal(countInput{Label: input.Label}))
			return Dependencies{UpstreamJobs: []JobID{upstream}}, nil
		},
		func(_ *RunContext, input countInput) (countOutput, error) {
			h.runs.Add(1)
			return countOutput{Label: "parent:" + input.Label}, nil
		})
	require.NoError(t, h.processors.Register(parent))

	failing := NewProcessor(failingProcessorID, version, nil,
		func(*RunContext, countInput) (countOutput, error) {
			return countOutput{}, errors.New("boom")
		})
	require.NoError(t, h.processors.Register(failing))

	spawning := NewProcessor(spawningProcessorID, version, nil,
		func(ctx *RunContext, input countInput) (countOutput, error) {
			h.runs.Add(1)

			child, err := ctx.EnqueueJob(counting, countInput{Label: input.Label + "-child"})
			if err != nil {
				return countOutput{}, err
			}

			_ = child

			return countOutput{Label: input.Label}, nil
		})
	require.NoError(t, h.processors.Register(spawning))

	return h
}

func (h *testHarness) newExecutor() *Executor {
	return NewExecutor(ExecutorConfig{
		Fs:             h.fsys,
		JobDataRoot:    "job_data",
		BuildDataRoot:  "build_data",
		ImportDataRoot: "import_data",
		Processors:     h.processors,
		SchemaSet:      h.schemaSet,
		WorkerCount:    2,
	})
}

func mustMarshal(v any) []byte {
	data, err := MarshalJobInput(v)
	if err != nil {
		panic(err)
	}

	return data
}

func runPass(t *testing.T, h *testHarness, enqueue func(*Executor)) []WrittenArtifact {
	t.Helper()

	executor := h.newExecutor()
	defer executor.Close()

	executor.StartPass(dataset.New(h.schemaSet))
	enqueue(executor)

	written, err := executor.RunToCompletion(context.Background())
	require.NoError(t, err)

	return written
}

// Enqueuing the same JobID twice in one pass runs it once; an identical
// second pass hits the cache and runs nothing; bumping the processor
// version forces one more run.
func TestExecutor_Memoization(t *testing.T) {
	h := newHarness(t, 1)

	enqueueTwice := func(executor *Executor) {
		first, err := executor.EnqueueJob(countingProcessorID, mustMarshal(countInput{Label: "a"}), "a")
		require.NoError(t, err)

		second, err := executor.EnqueueJob(countingProcessorID, mustMarshal(countInput{Label: "a"}), "a")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}

	artifacts := runPass(t, h, enqueueTwice)
	assert.Equal(t, int64(1), h.runs.Load())
	require.Len(t, artifacts, 1)

	// Second pass with identical inputs: cache hit, zero additional runs,
	// identical build hash.
	rerun := runPass(t, h, enqueueTwice)
	assert.Equal(t, int64(1), h.runs.Load())
	require.Len(t, rerun, 1)
	assert.Equal(t, artifacts[0].BuildHash, rerun[0].BuildHash)
	assert.Equal(t, artifacts[0].ArtifactID, rerun[0].ArtifactID)

	// Bumping version() changes the JobID and forces a rebuild.
	bumped := newHarness(t, 2)
	bumped.fsys = h.fsys

	runPass(t, bumped, func(executor *Executor) {
		_, err := executor.EnqueueJob(countingProcessorID, mustMarshal(countInput{Label: "a"}), "a")
		require.NoError(t, err)
	})
	assert.Equal(t, int64(1), bumped.runs.Load())
}

// Upstream jobs must be enqueued before dependents reference them.
func TestExecutor_DependencyNotEnqueued(t *testing.T) {
	h := newHarness(t, 1)

	executor := h.newExecutor()
	defer executor.Close()

	executor.StartPass(dataset.New(h.schemaSet))

	_, err := executor.EnqueueJob(parentProcessorID, mustMarshal(countInput{Label: "solo"}), "parent")
	require.NoError(t, err)

	_, err = executor.RunToCompletion(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, executor.LogEvents())
	assert.Contains(t, executor.LogEvents()[0].Message, ErrDependencyNotEnqueued.Error())
	assert.Zero(t, h.runs.Load())
}

// Dependents run after their upstream completes; the upstream is enqueued
// first so the reference resolves.
func TestExecutor_UpstreamOrdering(t *testing.T) {
	h := newHarness(t, 1)

	runPass(t, h, func(executor *Executor) {
		_, err := executor.EnqueueJob(countingProcessorID, mustMarshal(countInput{Label: "up"}), "up")
		require.NoError(t, err)

		_, err = executor.EnqueueJob(parentProcessorID, mustMarshal(countInput{Label: "up"}), "down")
		require.NoError(t, err)
	})

	assert.Equal(t, int64(2), h.runs.Load())
}

// A failed job marks its dependents failed without running them, and the
// failure surfaces as a log event.
func TestExecutor_FailureCascades(t *testing.T) {
	h := newHarness(t, 1)

	executor := h.newExecutor()
	defer executor.Close()

	executor.StartPass(dataset.New(h.schemaSet))

	failedID, err := executor.EnqueueJob(failingProcessorID, mustMarshal(countInput{Label: "x"}), "failing")
	require.NoError(t, err)

	dependent := NewProcessor(uuid.New(), 1,
		func(*EnumerateContext, countInput) (Dependencies, error) {
			return Dependencies{UpstreamJobs: []JobID{failedID}}, nil
		},
		func(*RunContext, countInput) (countOutput, error) {
			h.runs.Add(1)
			return countOutput{}, nil
		})
	require.NoError(t, h.processors.Register(dependent))

	_, err = executor.EnqueueJob(dependent.ProcessorID(), mustMarshal(countInput{Label: "y"}), "dependent")
	require.NoError(t, err)

	_, err = executor.RunToCompletion(context.Background())
	require.NoError(t, err)

	assert.Zero(t, h.runs.Load())
	assert.GreaterOrEqual(t, len(executor.LogEvents()), 2)
}

// Jobs spawned from within a run execute in the same pass, and a cache hit
// on the spawner replays them.
func TestExecutor_JobSpawnsJobs(t *testing.T) {
	h := newHarness(t, 1)

	spawn := func(executor *Executor) {
		_, err := executor.EnqueueJob(spawningProcessorID, mustMarshal(countInput{Label: "root"}), "root")
		require.NoError(t, err)
	}

	artifacts := runPass(t, h, spawn)
	// Spawner plus spawned child.
	assert.Equal(t, int64(2), h.runs.Load())
	require.Len(t, artifacts, 1)

	// Cached rerun replays the child enqueue; the child also cache-hits.
	rerun := runPass(t, h, spawn)
	assert.Equal(t, int64(2), h.runs.Load())
	require.Len(t, rerun, 1)
	assert.Equal(t, artifacts[0].BuildHash, rerun[0].BuildHash)
}

// Every artifact written in a pass is on disk at its content-addressed
// path with its header intact.
func TestExecutor_ArtifactsOnDisk(t *testing.T) {
	h := newHarness(t, 1)

	artifacts := runPass(t, h, func(executor *Executor) {
		for _, label := range []string{"a", "b", "c"} {
			_, err := executor.EnqueueJob(countingProcessorID, mustMarshal(countInput{Label: label}), label)
			require.NoError(t, err)
		}
	})

	require.Len(t, artifacts, 3)

	for _, artifact := range artifacts {
		path := storage.UUIDAndHashToPath("build_data", artifact.ArtifactID, artifact.BuildHash, storage.ArtifactFileExtension)

		meta, payload, err := storage.ReadArtifact(h.fsys, path)
		require.NoError(t, err)
		assert.Equal(t, artifact.AssetType, meta.AssetType)
		assert.NotEmpty(t, payload)
	}
}

package build

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/schema"
	"github.com/anvilengine/anvil/internal/storage"
)

// Dependencies is what a processor surfaces before running: the import data
// it will fetch and the upstream jobs whose completion it requires.
type Dependencies struct {
	ImportData   []dataset.AssetID
	UpstreamJobs []JobID
}

// Processor is the erased capability interface the executor dispatches
// over: inputs and outputs travel as canonical serialized bytes. Use
// NewProcessor for the typed shim.
type Processor interface {
	// ProcessorID is the stable type UUID this processor registers under.
	ProcessorID() uuid.UUID

	// Version forces a rebuild of all jobs of this type when bumped.
	Version() uint32

	// EnumerateDependencies surfaces data that must be available before
	// Run.
	EnumerateDependencies(ctx *EnumerateContext, input []byte) (Dependencies, error)

	// Run executes the job. It may fetch asset/import data, enqueue
	// further jobs, and produce artifacts through the context.
	Run(ctx *RunContext, input []byte) ([]byte, error)
}

// EnumerateContext is what EnumerateDependencies may consult.
type EnumerateContext struct {
	Context   context.Context
	DataSet   *dataset.DataSet
	SchemaSet *schema.Set
}

// EnqueuedJob is a job requested from within another job's run; the
// executor drains these on the pump thread.
type EnqueuedJob struct {
	ProcessorID uuid.UUID
	Input       []byte
	DebugName   string
}

// ProducedArtifact is one artifact emitted by a run, buffered until the
// pump thread writes it.
type ProducedArtifact struct {
	AssetID      dataset.AssetID
	ArtifactID   storage.ArtifactID
	AssetType    uuid.UUID
	Dependencies []storage.ArtifactID
	Data         []byte
	DebugName    string
}

// RunContext is the worker-side API of a running job.
type RunContext struct {
	Context   context.Context
	JobID     JobID
	DataSet   *dataset.DataSet
	SchemaSet *schema.Set

	fetchImportData func(dataset.AssetID) (*dataset.SingleObject, error)

	artifacts     []ProducedArtifact
	artifactCount int
	enqueued      []EnqueuedJob
	logEvents     []LogEvent
}

// FetchImportData loads (and caches) the import data of an asset. Only IDs
// surfaced by EnumerateDependencies are guaranteed to be loadable.
func (c *RunContext) FetchImportData(id dataset.AssetID) (*dataset.SingleObject, error) {
	return c.fetchImportData(id)
}

// ProduceDefaultArtifact emits an asset's primary artifact, whose artifact
// ID is the asset ID.
func (c *RunContext) ProduceDefaultArtifact(assetID dataset.AssetID, assetType uuid.UUID, dependencies []storage.ArtifactID, data []byte, debugName string) storage.ArtifactID {
	return c.produce(assetID, assetID, assetType, dependencies, data, debugName)
}

// ProduceArtifact emits a secondary artifact with a deterministically
// derived ID and returns it.
func (c *RunContext) ProduceArtifact(assetID dataset.AssetID, assetType uuid.UUID, dependencies []storage.ArtifactID, data []byte, debugName string) storage.ArtifactID {
	artifactID := DerivedArtifactID(c.JobID, c.artifactCount)
	return c.produce(assetID, artifactID, assetType, dependencies, data, debugName)
}

func (c *RunContext) produce(assetID dataset.AssetID, artifactID storage.ArtifactID, assetType uuid.UUID, dependencies []storage.ArtifactID, data []byte, debugName string) storage.ArtifactID {
	c.artifacts = append(c.artifacts, ProducedArtifact{
		AssetID:      assetID,
		ArtifactID:   artifactID,
		AssetType:    assetType,
		Dependencies: dependencies,
		Data:         data,
		DebugName:    debugName,
	})
	c.artifactCount++

	return artifactID
}

// EnqueueJob requests another job. The input is serialized canonically; the
// returned JobID is valid for future dependency declarations.
func (c *RunContext) EnqueueJob(processor Processor, input any) (JobID, error) {
	data, err := MarshalJobInput(input)
	if err != nil {
		return JobID{}, err
	}

	c.enqueued = append(c.enqueued, EnqueuedJob{ProcessorID: processor.ProcessorID(), Input: data})

	return ComputeJobID(processor.ProcessorID(), processor.Version(), data), nil
}

// Log records a structured event against the running job.
func (c *RunContext) Log(level slog.Level, message string) {
	c.logEvents = append(c.logEvents, LogEvent{JobID: c.JobID, Level: level, Message: message})
}

// MarshalJobInput canonically serializes a typed job input.
func MarshalJobInput(input any) ([]byte, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("serializing job input: %w", err)
	}

	return data, nil
}

// typedProcessor adapts typed enumerate/run functions to the erased
// Processor interface.
type typedProcessor[In any, Out any] struct {
	id        uuid.UUID
	version   uint32
	enumerate func(*EnumerateContext, In) (Dependencies, error)
	run       func(*RunContext, In) (Out, error)
}

// NewProcessor wraps typed functions into a Processor. enumerate may be nil
// for jobs with no declared dependencies.
func NewProcessor[In any, Out any](
	id uuid.UUID,
	version uint32,
	enumerate func(*EnumerateContext, In) (Dependencies, error),
	run func(*RunContext, In) (Out, error),
) Processor {
	return &typedProcessor[In, Out]{id: id, version: version, enumerate: enumerate, run: run}
}

func (p *typedProcessor[In, Out]) ProcessorID() uuid.UUID { return p.id }

func (p *typedProcessor[In, Out]) Version() uint32 { return p.version }

func (p *typedProcessor[In, Out]) EnumerateDependencies(ctx *EnumerateContext, input []byte) (Dependencies, error) {
	if p.enumerate == nil {
		return Dependencies{}, nil
	}

	var typed In
	if err := json.Unmarshal(input, &typed); err != nil {
		return Dependencies{}, fmt.Errorf("deserializing job input: %w", err)
	}

	return p.enumerate(ctx, typed)
}

func (p *typedProcessor[In, Out]) Run(ctx *RunContext, input []byte) ([]byte, error) {
	var typed In
	if err := json.Unmarshal(input, &typed); err != nil {
		return nil, fmt.Errorf("deserializing job input: %w", err)
	}

	out, err := p.run(ctx, typed)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("serializing job output: %w", err)
	}

	return data, nil
}

// LogEvent is one structured build diagnostic, collected per pass.
type LogEvent struct {
	AssetID dataset.AssetID
	JobID   JobID
	Level   slog.Level
	Message string
}

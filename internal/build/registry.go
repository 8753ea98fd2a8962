package build

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/schema"
)

// ProcessorRegistry maps job processor type UUIDs to processors.
type ProcessorRegistry struct {
	processors map[uuid.UUID]Processor
}

// NewProcessorRegistry returns an empty processor registry.
func NewProcessorRegistry() *ProcessorRegistry {
	return &ProcessorRegistry{processors: map[uuid.UUID]Processor{}}
}

// Register adds a processor.
func (r *ProcessorRegistry) Register(p Processor) error {
	id := p.ProcessorID()
	if _, exists := r.processors[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProcessor, id)
	}

	r.processors[id] = p

	return nil
}

// Processor resolves a processor by type UUID.
func (r *ProcessorRegistry) Processor(id uuid.UUID) (Processor, error) {
	p, ok := r.processors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProcessorNotFound, id)
	}

	return p, nil
}

// BuilderContext is what a builder's StartJobs may consult: the asset being
// built and a way to enqueue its root job(s).
type BuilderContext struct {
	AssetID   dataset.AssetID
	DataSet   *dataset.DataSet
	SchemaSet *schema.Set

	enqueue func(processorID uuid.UUID, input []byte, debugName string) (JobID, error)
}

// NewBuilderContext binds a builder context to an executor for one asset.
func NewBuilderContext(assetID dataset.AssetID, ds *dataset.DataSet, set *schema.Set, executor *Executor) *BuilderContext {
	return &BuilderContext{
		AssetID:   assetID,
		DataSet:   ds,
		SchemaSet: set,
		enqueue:   executor.EnqueueJob,
	}
}

// EnqueueJob enqueues a job with a typed input and returns its JobID.
func (c *BuilderContext) EnqueueJob(processor Processor, input any, debugName string) (JobID, error) {
	data, err := MarshalJobInput(input)
	if err != nil {
		return JobID{}, err
	}

	return c.enqueue(processor.ProcessorID(), data, debugName)
}

// Builder starts the build of one asset record type, typically by enqueuing
// a single root job.
type Builder interface {
	// AssetTypeName is the record type name this builder handles.
	AssetTypeName() string

	// StartJobs enqueues the asset's root job(s).
	StartJobs(ctx *BuilderContext) error
}

// BuilderRegistry maps asset record fingerprints to builders. Builders
// register by type name; Finish resolves names once the schema set is
// linked.
type BuilderRegistry struct {
	pending  []Builder
	bySchema map[schema.Fingerprint]Builder
}

// NewBuilderRegistry returns an empty builder registry.
func NewBuilderRegistry() *BuilderRegistry {
	return &BuilderRegistry{bySchema: map[schema.Fingerprint]Builder{}}
}

// Register adds a builder; its asset type resolves at Finish.
func (r *BuilderRegistry) Register(b Builder) {
	r.pending = append(r.pending, b)
}

// Finish binds registered builders to schema fingerprints.
func (r *BuilderRegistry) Finish(set *schema.Set) error {
	for _, b := range r.pending {
		t, ok := set.FindNamedType(b.AssetTypeName())
		if !ok {
			return fmt.Errorf("%w: builder asset type %q", schema.ErrSchemaNotFound, b.AssetTypeName())
		}

		fp := t.Fingerprint()
		if _, taken := r.bySchema[fp]; taken {
			return fmt.Errorf("%w: %q", ErrDuplicateBuilder, b.AssetTypeName())
		}

		r.bySchema[fp] = b
	}

	r.pending = nil

	return nil
}

// BuilderForAsset resolves the builder for an asset record type.
func (r *BuilderRegistry) BuilderForAsset(fp schema.Fingerprint) (Builder, error) {
	b, ok := r.bySchema[fp]
	if !ok {
		return nil, fmt.Errorf("%w: schema %s", ErrBuilderNotFound, fp)
	}

	return b, nil
}

// HasBuilder reports whether a builder handles the record type.
func (r *BuilderRegistry) HasBuilder(fp schema.Fingerprint) bool {
	_, ok := r.bySchema[fp]
	return ok
}

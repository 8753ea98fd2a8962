// Package build implements the job-graph build system: registered job
// processors with content-hashed identities, a memoizing executor with a
// fixed worker pool, content-addressed artifact output, and the published
// manifest.
package build

import "errors"

// Sentinel errors for the build pipeline.
var (
	// ErrBuilderNotFound indicates an asset type with no registered
	// builder.
	ErrBuilderNotFound = errors.New("builder not found")

	// ErrProcessorNotFound indicates a job referencing an unregistered
	// processor type.
	ErrProcessorNotFound = errors.New("job processor not found")

	// ErrDependencyNotEnqueued indicates a job naming an upstream job that
	// was never enqueued; upstream jobs must be enqueued before dependents
	// reference them.
	ErrDependencyNotEnqueued = errors.New("upstream job not enqueued")

	// ErrJobFailed wraps a processor run failure.
	ErrJobFailed = errors.New("job run failed")

	// ErrDuplicateProcessor indicates two processors registered under one
	// type UUID.
	ErrDuplicateProcessor = errors.New("job processor already registered")

	// ErrDuplicateBuilder indicates two builders claiming one asset type.
	ErrDuplicateBuilder = errors.New("builder already registered for asset type")
)

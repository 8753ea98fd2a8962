package schema

import "errors"

// Sentinel errors for the schema subsystem. Callers match with errors.Is.
var (
	// ErrSchemaNotFound indicates a lookup by name or fingerprint that did
	// not resolve, including property-path segments that name no field.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrUnresolvedReference indicates a type declaration referencing a
	// name that no registered type (or alias) provides.
	ErrUnresolvedReference = errors.New("unresolved type reference")

	// ErrDuplicateTypeName indicates two declarations claiming the same
	// canonical name or alias.
	ErrDuplicateTypeName = errors.New("duplicate type name")

	// ErrTypeUUIDCollision indicates two non-equivalent declarations
	// claiming the same stable type UUID.
	ErrTypeUUIDCollision = errors.New("type uuid collision")

	// ErrInvalidSchemaFile indicates a schema source or cache file that
	// could not be parsed.
	ErrInvalidSchemaFile = errors.New("invalid schema file")
)

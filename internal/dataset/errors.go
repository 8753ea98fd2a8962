package dataset

import "errors"

// Sentinel errors for the data model. Callers match with errors.Is.
var (
	// ErrPathParentIsNull indicates a read through a nullable ancestor
	// that resolves to null.
	ErrPathParentIsNull = errors.New("path parent is null")

	// ErrEntryNotFound indicates a dynamic-array or map entry UUID that is
	// not present in the resolved entry list at its container path.
	ErrEntryNotFound = errors.New("container entry not found")

	// ErrDuplicateEntry indicates inserting an entry UUID that already
	// exists at its container path.
	ErrDuplicateEntry = errors.New("container entry already exists")

	// ErrValueDoesNotMatchSchema indicates a value whose variant differs
	// from the schema-resolved type at its path.
	ErrValueDoesNotMatchSchema = errors.New("value does not match schema")

	// ErrDuplicateAssetID indicates registering an asset under an ID that
	// is already taken.
	ErrDuplicateAssetID = errors.New("duplicate asset id")

	// ErrAssetNotFound indicates an operation on an unknown asset ID.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrLocationCycle indicates a location chain that does not terminate
	// at a root.
	ErrLocationCycle = errors.New("location cycle detected")

	// ErrLocationParentNotFound indicates a location referencing a path
	// node that does not exist.
	ErrLocationParentNotFound = errors.New("location parent not found")

	// ErrNewLocationIsChildOfCurrentAsset indicates relocating a path node
	// underneath itself.
	ErrNewLocationIsChildOfCurrentAsset = errors.New("new location is a child of the current asset")

	// ErrInvalidSchema indicates a schema mismatch, e.g. attaching a
	// prototype of a different record type or reading data whose stored
	// schema disagrees with the live one.
	ErrInvalidSchema = errors.New("invalid schema for operation")

	// ErrPrototypeCycle indicates a prototype chain that loops.
	ErrPrototypeCycle = errors.New("prototype cycle detected")
)

package importer

import "errors"

// Sentinel errors for the import pipeline.
var (
	// ErrImporterNotFound indicates a lookup of an unregistered importer.
	ErrImporterNotFound = errors.New("importer not found")

	// ErrSourceFileUnreadable indicates a source file that is missing or
	// cannot be read.
	ErrSourceFileUnreadable = errors.New("source file not found or unreadable")

	// ErrImportableMissing indicates a referenced importable the importer
	// did not produce.
	ErrImportableMissing = errors.New("referenced importable missing")

	// ErrDuplicateImporter indicates two importers registered under one
	// type UUID.
	ErrDuplicateImporter = errors.New("importer already registered")
)

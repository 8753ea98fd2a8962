// Package simpledata is the built-in reference asset plugin: JSON source
// files import into a small record type and build into a header-prefixed
// artifact whose payload is JSON. It exercises the full pipeline (schema, import, jobs,
// artifacts) and anchors the integration tests.
package simpledata

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/anvilengine/anvil/internal/build"
	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/engine"
	"github.com/anvilengine/anvil/internal/importer"
	"github.com/anvilengine/anvil/internal/schema"
)

// TypeName is the record type simple data assets use.
const TypeName = "SimpleData"

// SourceExtension is the source file extension the importer claims.
const SourceExtension = "sd"

// Stable identities.
var (
	TypeUUID      = uuid.MustParse("5f9f4912-7b39-4cf8-8e1f-4bb3b7a1d2c6")
	ImporterUUID  = uuid.MustParse("2f1e17c6-2c4a-4a40-9c9f-76f0b1f6de58")
	ProcessorUUID = uuid.MustParse("8d4e11cb-bd8a-4f84-9a07-90c0a1c8b21f")
)

// Plugin registers the simple data schema, importer, builder, and job
// processor.
type Plugin struct{}

// Setup implements engine.Plugin.
func (Plugin) Setup(reg *engine.PluginRegistration) error {
	def := schema.RecordDef{Name: TypeName, TypeUUID: TypeUUID}
	def.AddField("name", uuid.MustParse("9a7c7bb7-2a10-4e3f-87c1-3a8f0d3dd631"), schema.DefString())
	def.AddField("value", uuid.MustParse("6a4de2cf-0f0d-4fd8-9f5a-b0b8ce74a2d1"), schema.DefF64())
	def.AddField("payload", uuid.MustParse("b66cc07f-43c8-4af5-9d38-0a9f2a2a3f44"), schema.DefBytes())
	reg.Linker.RegisterRecord(def)

	if err := reg.Importers.Register(Importer{}); err != nil {
		return err
	}

	reg.Builders.Register(Builder{})

	return reg.Processors.Register(NewProcessor())
}

// sourceFileJSON is the shape of a .sd source file.
type sourceFileJSON struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Payload []byte  `json:"payload,omitempty"`
}

// Importer imports .sd JSON files as single default importables.
type Importer struct{}

// ImporterID implements importer.Importer.
func (Importer) ImporterID() uuid.UUID { return ImporterUUID }

// SupportedFileExtensions implements importer.Importer.
func (Importer) SupportedFileExtensions() []string { return []string{SourceExtension} }

// ScanFile implements importer.Importer: every .sd file holds exactly one
// default importable of the SimpleData type.
func (Importer) ScanFile(_ context.Context, scan importer.ScanContext) ([]importer.ScannedImportable, error) {
	if _, err := scan.Fs.Stat(scan.Path); err != nil {
		return nil, err
	}

	t, ok := scan.SchemaSet.FindNamedType(TypeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrSchemaNotFound, TypeName)
	}

	record, ok := t.(*schema.Record)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a record", schema.ErrSchemaNotFound, TypeName)
	}

	return []importer.ScannedImportable{{AssetType: record}}, nil
}

// ImportFile implements importer.Importer: the file's fields become both
// the default asset overrides and the canonical import data.
func (Importer) ImportFile(_ context.Context, imp importer.ImportContext) (map[string]importer.ImportedImportable, error) {
	data, err := afero.ReadFile(imp.Fs, imp.Path)
	if err != nil {
		return nil, err
	}

	var src sourceFileJSON
	if err := json.Unmarshal(data, &src); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", imp.Path, err)
	}

	t, _ := imp.SchemaSet.FindNamedType(TypeName)
	record := t.(*schema.Record)

	makeObject := func() (*dataset.SingleObject, error) {
		obj := dataset.NewSingleObject(imp.SchemaSet, record)
		if err := obj.SetProperty("name", dataset.StringValue(src.Name)); err != nil {
			return nil, err
		}

		if err := obj.SetProperty("value", dataset.F64Value(src.Value)); err != nil {
			return nil, err
		}

		if err := obj.SetProperty("payload", dataset.BytesValue(src.Payload)); err != nil {
			return nil, err
		}

		return obj, nil
	}

	defaults, err := makeObject()
	if err != nil {
		return nil, err
	}

	importData, err := makeObject()
	if err != nil {
		return nil, err
	}

	return map[string]importer.ImportedImportable{
		"": {DefaultAsset: defaults, ImportData: importData},
	}, nil
}

// jobInput is the build job's input. AssetHash folds the asset's resolved
// property state into the job identity so edits invalidate the cache.
type jobInput struct {
	AssetID   uuid.UUID `json:"asset_id"`
	AssetHash uint64    `json:"asset_hash"`
}

// jobOutput is the build job's serialized result.
type jobOutput struct {
	BuiltName string `json:"built_name"`
	DataSize  int    `json:"data_size"`
}

// artifactPayload is the shipped artifact's byte layout (JSON for the
// reference plugin; real plugins emit whatever their runtime loads).
type artifactPayload struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Payload []byte  `json:"payload,omitempty"`
}

// NewProcessor returns the simple data build job processor.
func NewProcessor() build.Processor {
	return build.NewProcessor(
		ProcessorUUID,
		1,
		func(_ *build.EnumerateContext, input jobInput) (build.Dependencies, error) {
			return build.Dependencies{ImportData: []dataset.AssetID{input.AssetID}}, nil
		},
		func(ctx *build.RunContext, input jobInput) (jobOutput, error) {
			importData, err := ctx.FetchImportData(input.AssetID)
			if err != nil {
				return jobOutput{}, err
			}

			// Editable asset overrides win over the imported values.
			payload := artifactPayload{}

			if v, resolveErr := resolveWithFallback(ctx.DataSet, importData, input.AssetID, "name"); resolveErr == nil {
				payload.Name = v.Str
			}

			if v, resolveErr := resolveWithFallback(ctx.DataSet, importData, input.AssetID, "value"); resolveErr == nil {
				payload.Value = v.F64
			}

			if v, resolveErr := resolveWithFallback(ctx.DataSet, importData, input.AssetID, "payload"); resolveErr == nil {
				payload.Payload = v.Bytes
			}

			data, err := json.Marshal(&payload)
			if err != nil {
				return jobOutput{}, err
			}

			ctx.ProduceDefaultArtifact(input.AssetID, TypeUUID, nil, data, payload.Name)

			return jobOutput{BuiltName: payload.Name, DataSize: len(data)}, nil
		},
	)
}

// resolveWithFallback prefers the asset's resolved property and falls back
// to the import data when the asset has no override anywhere in its chain.
func resolveWithFallback(ds *dataset.DataSet, importData *dataset.SingleObject, assetID dataset.AssetID, path string) (dataset.Value, error) {
	a, err := ds.Asset(assetID)
	if err != nil {
		return dataset.Value{}, err
	}

	if _, hasOverride := a.Properties[path]; hasOverride {
		return ds.ResolveProperty(assetID, path)
	}

	return importData.ResolveProperty(path)
}

// Builder starts one build job per simple data asset.
type Builder struct{}

// AssetTypeName implements build.Builder.
func (Builder) AssetTypeName() string { return TypeName }

// StartJobs implements build.Builder.
func (Builder) StartJobs(ctx *build.BuilderContext) error {
	assetHash, err := ctx.DataSet.HashProperties(ctx.AssetID)
	if err != nil {
		return err
	}

	input := jobInput{AssetID: ctx.AssetID, AssetHash: assetHash}
	_, err = ctx.EnqueueJob(NewProcessor(), input, "simple_data:"+ctx.AssetID.String())

	return err
}

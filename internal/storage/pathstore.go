package storage

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/schema"
)

// The path-based store shadows the in-memory path-node hierarchy with the
// on-disk directory tree: each directory is a path node, each .af file an
// asset located by its path-node chain plus name. Path-node assets are not
// serialized; they are reconstructed deterministically from directory
// paths, so the same tree always yields the same node IDs.

// pathNodeNamespace seeds the deterministic UUIDs of reconstructed path
// nodes.
var pathNodeNamespace = uuid.MustParse("9ae45717-9e1c-40bd-8cc6-96f2ed5bd17c")

// PathNodeID derives the stable asset ID of the path node for dirPath
// within a source.
func PathNodeID(sourceID uuid.UUID, dirPath string) dataset.AssetID {
	return uuid.NewSHA1(pathNodeNamespace, []byte(sourceID.String()+":"+path.Clean(dirPath)))
}

// LoadPathBased reads an assets_path_based tree: directories become path
// node assets, .af files become assets parented to their directory's node.
func LoadPathBased(fsys afero.Fs, root string, sourceID uuid.UUID, set *schema.Set) ([]*dataset.Asset, error) {
	exists, err := afero.DirExists(fsys, root)
	if err != nil || !exists {
		return nil, err
	}

	pathNodeRecord := set.PathNodeRecord()
	nodes := map[string]*dataset.Asset{}

	// ensureNode builds the chain of path nodes for a directory path
	// relative to root ("" is the source root and has no node).
	var ensureNode func(dir string) dataset.AssetID

	ensureNode = func(dir string) dataset.AssetID {
		if dir == "" || dir == "." {
			return uuid.Nil
		}

		if node, ok := nodes[dir]; ok {
			return node.ID
		}

		parent := ensureNode(parentOf(dir))
		node := dataset.NewAssetForLoad(
			PathNodeID(sourceID, dir),
			path.Base(dir),
			dataset.Location{SourceID: sourceID, PathNodeID: parent},
			pathNodeRecord,
		)
		nodes[dir] = node

		return node.ID
	}

	var assets []*dataset.Asset

	err = afero.Walk(fsys, root, func(filePath string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(filePath, path.Clean(root)), "/")

		if info.IsDir() {
			if rel != "" && rel != "." {
				ensureNode(rel)
			}

			return nil
		}

		if !strings.HasSuffix(rel, "."+AssetFileExtension) {
			return nil
		}

		data, readErr := afero.ReadFile(fsys, filePath)
		if readErr != nil {
			return fmt.Errorf("reading asset %s: %w", filePath, readErr)
		}

		a, decodeErr := DecodeAsset(set, data)
		if decodeErr != nil {
			return fmt.Errorf("asset %s: %w", filePath, decodeErr)
		}

		// The directory, not the stored location, is authoritative here.
		a.Location = dataset.Location{SourceID: sourceID, PathNodeID: ensureNode(parentOf(rel))}
		assets = append(assets, a)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking path-based root %s: %w", root, err)
	}

	nodePaths := make([]string, 0, len(nodes))
	for dir := range nodes {
		nodePaths = append(nodePaths, dir)
	}

	sort.Strings(nodePaths)

	out := make([]*dataset.Asset, 0, len(nodes)+len(assets))
	for _, dir := range nodePaths {
		out = append(out, nodes[dir])
	}

	return append(out, assets...), nil
}

// SavePathBased writes every non-path-node asset of ds whose location chain
// resolves through path nodes into the directory tree under root. Path
// nodes themselves materialize as directories only.
func SavePathBased(fsys afero.Fs, root string, set *schema.Set, ds *dataset.DataSet) error {
	for _, a := range ds.Assets() {
		if a.IsPathNode() {
			continue
		}

		dir, ok := assetDirectory(ds, a)
		if !ok {
			continue
		}

		data, err := EncodeAsset(set, a)
		if err != nil {
			return fmt.Errorf("encoding asset %s: %w", a.ID, err)
		}

		filePath := path.Join(root, dir, a.Name+"."+AssetFileExtension)
		if err := ensureParentDir(fsys, filePath); err != nil {
			return err
		}

		if err := afero.WriteFile(fsys, filePath, data, 0o644); err != nil {
			return fmt.Errorf("writing asset %s: %w", filePath, err)
		}
	}

	return nil
}

// assetDirectory renders an asset's path-node chain as a directory path.
func assetDirectory(ds *dataset.DataSet, a *dataset.Asset) (string, bool) {
	var segments []string

	for cur := a.Location.PathNodeID; cur != uuid.Nil; {
		node, err := ds.Asset(cur)
		if err != nil || !node.IsPathNode() {
			return "", false
		}

		segments = append([]string{node.Name}, segments...)
		cur = node.Location.PathNodeID
	}

	return path.Join(segments...), true
}

func parentOf(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i]
	}

	return ""
}

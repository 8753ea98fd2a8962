package storage

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/schema"
)

// The id-based tree store keeps one .af JSON file per asset located by UUID
// fanout under a root directory. It is the canonical store for assets that
// have no meaningful human-facing path (generated assets, import products).

// loadConcurrency bounds parallel asset-file decodes.
const loadConcurrency = 8

// SaveAssetFile writes one asset to its fanout path under root.
func SaveAssetFile(fsys afero.Fs, root string, set *schema.Set, a *dataset.Asset) error {
	data, err := EncodeAsset(set, a)
	if err != nil {
		return fmt.Errorf("encoding asset %s: %w", a.ID, err)
	}

	path := UUIDToPath(root, a.ID, AssetFileExtension)
	if err := ensureParentDir(fsys, path); err != nil {
		return err
	}

	if err := afero.WriteFile(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("writing asset %s: %w", path, err)
	}

	return nil
}

// DeleteAssetFile removes one asset's file under root. Missing files are
// not an error.
func DeleteAssetFile(fsys afero.Fs, root string, id dataset.AssetID) error {
	path := UUIDToPath(root, id, AssetFileExtension)

	if err := fsys.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing asset %s: %w", path, err)
	}

	return nil
}

// LoadAllAssets reads every .af file under root, decoding in parallel.
// Files whose names do not match the fanout layout are skipped.
func LoadAllAssets(fsys afero.Fs, root string, set *schema.Set) ([]*dataset.Asset, error) {
	exists, err := afero.DirExists(fsys, root)
	if err != nil || !exists {
		return nil, err
	}

	var paths []string

	err = afero.Walk(fsys, root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if info.IsDir() || !strings.HasSuffix(path, "."+AssetFileExtension) {
			return nil
		}

		if _, pathErr := PathToUUID(root, path); pathErr != nil {
			return nil
		}

		paths = append(paths, path)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking asset root %s: %w", root, err)
	}

	assets := make([]*dataset.Asset, len(paths))

	var group errgroup.Group
	group.SetLimit(loadConcurrency)

	for i, path := range paths {
		group.Go(func() error {
			data, readErr := afero.ReadFile(fsys, path)
			if readErr != nil {
				return fmt.Errorf("reading asset %s: %w", path, readErr)
			}

			a, decodeErr := DecodeAsset(set, data)
			if decodeErr != nil {
				return fmt.Errorf("asset %s: %w", path, decodeErr)
			}

			assets[i] = a

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return assets, nil
}

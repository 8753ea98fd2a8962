package storage

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// PruneArtifacts removes artifact files under the build root that no entry
// of the given manifests references. The artifact store is append-only
// during builds; this is the separate maintenance pass that reclaims
// superseded content. It returns the number of files removed.
func PruneArtifacts(fsys afero.Fs, buildRoot string, keep ...*Manifest) (int, error) {
	referenced := map[string]bool{}

	for _, m := range keep {
		if m == nil {
			continue
		}

		for _, entry := range m.Entries {
			referenced[UUIDAndHashToPath(buildRoot, entry.ArtifactID, entry.BuildHash, ArtifactFileExtension)] = true
		}
	}

	var toRemove []string

	err := afero.Walk(fsys, buildRoot, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if info.IsDir() || !strings.HasSuffix(path, "."+ArtifactFileExtension) {
			return nil
		}

		// Only fanout-shaped artifact files are candidates.
		if _, _, parseErr := PathToUUIDAndHash(buildRoot, path); parseErr != nil {
			return nil
		}

		if !referenced[path] {
			toRemove = append(toRemove, path)
		}

		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("walking build root %s: %w", buildRoot, err)
	}

	for _, path := range toRemove {
		if err := fsys.Remove(path); err != nil {
			return 0, fmt.Errorf("removing artifact %s: %w", path, err)
		}
	}

	return len(toRemove), nil
}

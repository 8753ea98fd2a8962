package engine

import (
	"fmt"
	"path"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"

	"github.com/anvilengine/anvil/internal/hashing"
)

// buildStateFileName records the last completed build's combined hash under
// the build data root.
const buildStateFileName = "build_state.json"

type buildState struct {
	CombinedBuildHash hashing.Hash64
}

type buildStateJSON struct {
	CombinedBuildHash string `json:"combined_build_hash"`
}

func readBuildState(fsys afero.Fs, buildRoot string) (*buildState, error) {
	data, err := afero.ReadFile(fsys, path.Join(buildRoot, buildStateFileName))
	if err != nil {
		return nil, err
	}

	var wire buildStateJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}

	combined, err := strconv.ParseUint(wire.CombinedBuildHash, 16, 64)
	if err != nil {
		return nil, err
	}

	return &buildState{CombinedBuildHash: combined}, nil
}

func writeBuildState(fsys afero.Fs, buildRoot string, state *buildState) error {
	data, err := json.MarshalIndent(&buildStateJSON{
		CombinedBuildHash: fmt.Sprintf("%016x", state.CombinedBuildHash),
	}, "", "  ")
	if err != nil {
		return err
	}

	if err := fsys.MkdirAll(buildRoot, 0o750); err != nil {
		return err
	}

	return afero.WriteFile(fsys, path.Join(buildRoot, buildStateFileName), data, 0o644)
}

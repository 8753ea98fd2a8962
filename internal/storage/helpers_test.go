package storage

import "github.com/spf13/afero"

func newMemFs() afero.Fs {
	return afero.NewMemMapFs()
}

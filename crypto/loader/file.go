package loader

import (
	"io"
	"os"

	"golang.org/x/xerrors"
)

// keyFilePerm only lets the owner read the key.
const keyFilePerm = 0400

// keyFile stores a key in a single file of the disk.
//
// - implements loader.Loader
type keyFile struct {
	path string

	openFn     func(path string) (*os.File, error)
	openFileFn func(path string, flags int, perms os.FileMode) (*os.File, error)
	statFn     func(path string) (os.FileInfo, error)
	removeFn   func(path string) error
}

// NewFileLoader returns a loader for the key file at the given path.
func NewFileLoader(path string) Loader {
	return keyFile{
		path:       path,
		openFn:     os.Open,
		openFileFn: os.OpenFile,
		statFn:     os.Stat,
		removeFn:   os.Remove,
	}
}

// LoadOrCreate implements loader.Loader. A new key file is created exclusively
// so that two processes cannot both write one, and it is removed again when
// the write fails.
func (f keyFile) LoadOrCreate(g Generator) ([]byte, error) {
	_, err := f.statFn(f.path)
	if !os.IsNotExist(err) {
		return f.Load()
	}

	key, err := g.Generate()
	if err != nil {
		return nil, xerrors.Errorf("failed to generate key: %v", err)
	}

	file, err := f.openFileFn(f.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, keyFilePerm)
	if err != nil {
		return nil, xerrors.Errorf("failed to create key file '%s': %v", f.path, err)
	}

	_, err = file.Write(key)
	file.Close()

	if err != nil {
		f.removeFn(f.path)

		return nil, xerrors.Errorf("failed to write key: %v", err)
	}

	return key, nil
}

// Load implements loader.Loader.
func (f keyFile) Load() ([]byte, error) {
	file, err := f.openFn(f.path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open key file: %v", err)
	}

	defer file.Close()

	key, err := io.ReadAll(file)
	if err != nil {
		return nil, xerrors.Errorf("failed to read key file: %v", err)
	}

	if len(key) == 0 {
		return nil, xerrors.Errorf("key file '%s' is empty", f.path)
	}

	return key, nil
}

package consent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"assent/pkg/platform/sentinel"
)

const (
	stateFileName    = "consent.state"
	languageFileName = "consent.lang"
)

// FileStore persists one visitor's state under a directory, sealed at rest
// when a sealer is supplied. Writes go through temp+rename so a crashed write
// never leaves a half-written state behind.
type FileStore struct {
	dir    string
	sealer *Sealer
}

// NewFileStore creates the directory if needed. A nil sealer stores plain
// JSON; embedded hosts that own their disk may choose that.
func NewFileStore(dir string, sealer *Sealer) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create consent dir: %v", sentinel.ErrUnavailable, err)
	}
	return &FileStore{dir: dir, sealer: sealer}, nil
}

func (f *FileStore) LoadState(_ context.Context, websiteID string) (*State, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, stateFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read consent state: %v", sentinel.ErrUnavailable, err)
	}
	if f.sealer != nil {
		data, err = f.sealer.Open(data)
		if err != nil {
			// Broken seals read as absent: a corrupted file is a fresh visit.
			return nil, nil
		}
	}
	return DecodeOwned(data, websiteID), nil
}

func (f *FileStore) SaveState(_ context.Context, state *State) error {
	data, err := EncodeState(state)
	if err != nil {
		return err
	}
	if f.sealer != nil {
		data, err = f.sealer.Seal(data)
		if err != nil {
			return fmt.Errorf("seal consent state: %w", err)
		}
	}
	return f.writeAtomic(stateFileName, data)
}

func (f *FileStore) ClearState(_ context.Context) error {
	err := os.Remove(filepath.Join(f.dir, stateFileName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: clear consent state: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (f *FileStore) LoadLanguage(_ context.Context) (string, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, languageFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read language: %v", sentinel.ErrUnavailable, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *FileStore) SaveLanguage(_ context.Context, code string) error {
	return f.writeAtomic(languageFileName, []byte(code))
}

func (f *FileStore) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(f.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", sentinel.ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write temp file: %v", sentinel.ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close temp file: %v", sentinel.ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, filepath.Join(f.dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: promote temp file: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

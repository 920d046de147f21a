package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File is a single-file JSON store, the default backend for one user on one
// machine. The whole map is rewritten on every Set; the state is a handful of
// small values so this stays cheap.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile opens or creates a file store at path. Parent directories are
// created as needed. The file is written with 0600 because it holds session
// tokens.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("storage: file path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("storage: create state dir: %w", err)
	}
	return &File{path: path}, nil
}

func (f *File) load() (map[string]json.RawMessage, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, err
	}
	state := map[string]json.RawMessage{}
	if len(raw) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("storage: corrupt state file: %w", err)
	}
	return state, nil
}

func (f *File) save(state map[string]json.RawMessage) error {
	encoded, err := json.Marshal(state)
	if err != nil {
		return err
	}
	// Write-then-rename so a crash mid-write cannot truncate the live file.
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Get implements Store.
func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.load()
	if err != nil {
		return nil, err
	}
	value, ok := state[key]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(value), nil
}

// Set implements Store. Values must be JSON documents; the SDK only ever
// writes encoded JSON, and keeping the file itself valid JSON keeps it
// inspectable.
func (f *File) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("storage: value for %q is not valid JSON", key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.load()
	if err != nil {
		return err
	}
	state[key] = json.RawMessage(value)
	return f.save(state)
}

// Delete implements Store. Deleting an absent key is a no-op.
func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := state[key]; !ok {
		return nil
	}
	delete(state, key)
	return f.save(state)
}

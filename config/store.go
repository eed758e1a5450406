package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is the durable home of the RootConfig document. Load returns a
// private copy; Save replaces the whole document.
type Store interface {
	Load() (*RootConfig, error)
	Save(*RootConfig) error
}

// FileStore keeps the document as a JSON file. Writes go through a
// temp file and rename so readers never observe a torn document.
type FileStore struct {
	path string

	mu sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Init writes the default document if the file does not exist yet.
func (f *FileStore) Init() error {
	if _, err := os.Stat(f.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("unable to stat config file, %s, %w", f.path, err)
	}
	return f.Save(DefaultRootConfig())
}

func (f *FileStore) Load() (*RootConfig, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file, %s, %w", f.path, err)
	}

	cfg := DefaultRootConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unable to parse config file, %s, %w", f.path, err)
	}
	if cfg.Displays == nil {
		cfg.Displays = map[string]DisplayConfig{}
	}
	return cfg, nil
}

func (f *FileStore) Save(cfg *RootConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to marshal config, %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".config-*.json")
	if err != nil {
		return fmt.Errorf("unable to create temp config file, %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("unable to write temp config file, %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("unable to close temp config file, %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("unable to replace config file, %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu  sync.Mutex
	cfg *RootConfig
}

func NewMemStore(cfg *RootConfig) *MemStore {
	if cfg == nil {
		cfg = DefaultRootConfig()
	}
	m := &MemStore{}
	m.cfg = clone(cfg)
	return m
}

func (m *MemStore) Load() (*RootConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.cfg), nil
}

func (m *MemStore) Save(cfg *RootConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = clone(cfg)
	return nil
}

func clone(cfg *RootConfig) *RootConfig {
	data, _ := json.Marshal(cfg)
	out := DefaultRootConfig()
	_ = json.Unmarshal(data, out)
	return out
}

package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-remedy/internal/models"
)

type fileDocument struct {
	Version int                   `yaml:"version"`
	Actions []models.ActionRecord `yaml:"actions"`
}

const fileVersion = 1

// FileStore keeps records in a YAML file, replaced atomically on save.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the file. A missing file yields no records.
func (s *FileStore) Load(context.Context) ([]models.ActionRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if doc.Version > fileVersion {
		return nil, fmt.Errorf("%s: unsupported state version %d", s.path, doc.Version)
	}
	return doc.Actions, nil
}

// Save writes records through a temp file in the same directory.
func (s *FileStore) Save(_ context.Context, records []models.ActionRecord) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	payload, err := yaml.Marshal(fileDocument{Version: fileVersion, Actions: records})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}

// Package registry discovers model files on disk.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"llmhost/internal/common/fsutil"
	"llmhost/pkg/types"
)

// ModelExt is the file extension recognized as a model.
const ModelExt = ".gguf"

// GGUFScanner lists *.gguf files in a directory.
type GGUFScanner struct{}

// NewGGUFScanner returns a scanner for GGUF model files.
func NewGGUFScanner() *GGUFScanner { return &GGUFScanner{} }

// Scan returns the models in dir sorted by ID. ID is the full filename
// (including extension), Name the filename without it and Path the absolute
// file path. Subdirectories are not descended into.
func (s *GGUFScanner) Scan(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.EqualFold(filepath.Ext(name), ModelExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		models = append(models, types.Model{
			ID:        name,
			Name:      strings.TrimSuffix(name, filepath.Ext(name)),
			Path:      filepath.Join(abs, name),
			SizeBytes: info.Size(),
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// LoadDir scans dir with a GGUFScanner.
func LoadDir(dir string) ([]types.Model, error) {
	return NewGGUFScanner().Scan(dir)
}

// Find returns the model in dir whose ID or Name equals name.
func Find(dir, name string) (types.Model, error) {
	models, err := LoadDir(dir)
	if err != nil {
		return types.Model{}, err
	}
	for _, m := range models {
		if m.ID == name || m.Name == name {
			return m, nil
		}
	}
	return types.Model{}, fmt.Errorf("model %q not found in %s", name, dir)
}

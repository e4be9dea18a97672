// Package artifacts loads the trained model, its encoders and the training
// column list, and checks that they agree with each other and with the
// patient schema before anything is served.
package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact file names inside a bundle.
const (
	ModelFile    = "model.json"
	EncodersFile = "encoders.json"
	ColumnsFile  = "feature_names.json"
	ManifestFile = "manifest.json"
)

// RequiredFiles are the artifacts every bundle must contain.
var RequiredFiles = []string{ModelFile, EncodersFile, ColumnsFile}

// Bundle is the raw content of one artifact set, keyed by file name.
type Bundle struct {
	Origin string
	Files  map[string][]byte
}

func (b *Bundle) file(name string) ([]byte, bool) {
	data, ok := b.Files[name]
	return data, ok && len(data) > 0
}

type Source interface {
	Load(ctx context.Context) (*Bundle, error)
}

// Manifest describes the training run that produced a bundle. Checksums, when
// present, are sha256 hex digests keyed by artifact file name.
type Manifest struct {
	Name        string             `json:"name"`
	Version     string             `json:"version"`
	Algorithm   string             `json:"algorithm"`
	TrainedAt   string             `json:"trained_at,omitempty"`
	Description string             `json:"description,omitempty"`
	Parameters  map[string]any     `json:"parameters,omitempty"`
	Training    map[string]any     `json:"training,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Checksums   map[string]string  `json:"checksums,omitempty"`
}

// DirSource reads a bundle from a directory of JSON files.
type DirSource struct {
	Dir string
}

func (s DirSource) Load(ctx context.Context) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bundle := &Bundle{Origin: s.Dir, Files: map[string][]byte{}}
	for _, name := range append(append([]string(nil), RequiredFiles...), ManifestFile) {
		data, err := os.ReadFile(filepath.Join(s.Dir, name))
		if err != nil {
			if name == ManifestFile && errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read artifact %s: %w", name, err)
		}
		bundle.Files[name] = data
	}
	return bundle, nil
}

// ModelVersion returns the manifest version of a bundle, or "" when it has
// no readable manifest.
func (b *Bundle) ModelVersion() string {
	data, ok := b.file(ManifestFile)
	if !ok {
		return ""
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return ""
	}
	return m.Version
}

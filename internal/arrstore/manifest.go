package arrstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const manifestName = "manifest.json"

// manifest is the store-level registry: which datasets exist, where their
// chunk files live, and the root attributes.
type manifest struct {
	Version  int             `json:"version"`
	Attrs    map[string]any  `json:"attrs"`
	Datasets []datasetRecord `json:"datasets"`
}

type datasetRecord struct {
	Group       string `json:"group"`
	Name        string `json:"name"`
	File        string `json:"file"`
	Dtype       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	Chunks      []int  `json:"chunks"`
	Compression string `json:"compression"`
}

func writeManifest(dir string, m *manifest) error {
	f, err := os.Create(filepath.Join(dir, manifestName))
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func readManifest(dir string) (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadManifest, err)
	}
	if m.Version != 1 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadManifest, m.Version)
	}
	if m.Attrs == nil {
		m.Attrs = make(map[string]any)
	}
	return &m, nil
}

// AttrInt reads an integer attribute, tolerating the float64 that JSON
// round-tripping produces.
func AttrInt(s Store, name string) (int, bool) {
	v, ok := s.Attr(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// AttrString reads a text attribute.
func AttrString(s Store, name string) (string, bool) {
	v, ok := s.Attr(name)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

package prerendered

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Manifest is the deploy-time artifact the runtime loads to find
// prerendered pages.
type Manifest struct {
	Base       string      `json:"base"`
	Prefix     string      `json:"prefix"`
	Files      []string    `json:"files"`
	Mappings   Table       `json:"mappings"`
	Collisions []Collision `json:"collisions,omitempty"`
}

// NewManifest builds a manifest for files under prefix.
func NewManifest(files []string, prefix, base string) *Manifest {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	table, collisions := BuildTable(sorted, prefix)
	return &Manifest{
		Base:       base,
		Prefix:     prefix,
		Files:      sorted,
		Mappings:   table,
		Collisions: collisions,
	}
}

// EdgeTable returns the mappings without the prefix, as used when rewriting
// URIs at the edge.
func (m *Manifest) EdgeTable() Table {
	table, _ := BuildTable(m.Files, "")
	return table
}

// WriteManifest encodes m as indented JSON.
func WriteManifest(w io.Writer, m *Manifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode prerendered manifest: %w", err)
	}
	return nil
}

// ReadManifest decodes a manifest.
func ReadManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode prerendered manifest: %w", err)
	}
	if m.Mappings == nil {
		m.Mappings = Table{}
	}
	return &m, nil
}

// LoadManifest reads a manifest file. A missing file yields an empty
// manifest, since an app without prerendered pages has nothing to write.
func LoadManifest(name string) (*Manifest, error) {
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{Mappings: Table{}}, nil
		}
		return nil, fmt.Errorf("failed to open prerendered manifest: %w", err)
	}
	defer f.Close()

	return ReadManifest(f)
}

// ScanDir lists every regular file under dir as a slash-separated path
// relative to dir.
func ScanDir(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan prerendered directory %s: %w", dir, err)
	}

	sort.Strings(files)
	return files, nil
}

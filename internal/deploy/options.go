// Package deploy prepares build output for a deployment: the prerendered
// manifest and the upload of static assets.
package deploy

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Options describe a build and where it is published. They are read from a
// YAML file; every field has a default.
type Options struct {
	BuildDir       string `yaml:"buildDir" validate:"required"`
	PrerenderedDir string `yaml:"prerenderedDir" validate:"required"`
	Manifest       string `yaml:"manifest" validate:"required"`
	AppPath        string `yaml:"appPath" validate:"required"`
	Base           string `yaml:"base,omitempty"`
	DomainName     string `yaml:"domainName,omitempty" validate:"omitempty,hostname"`

	Bucket    string `yaml:"bucket,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Overwrite bool   `yaml:"overwrite,omitempty"`
	Prune     bool   `yaml:"prune,omitempty"`
}

// DefaultOptions returns the options used when no file is given
func DefaultOptions() *Options {
	return &Options{
		BuildDir:       "build",
		PrerenderedDir: "prerendered",
		Manifest:       filepath.Join("build", "manifest.json"),
		AppPath:        "_app",
	}
}

// LoadOptions reads options from path. An empty path yields the defaults.
func LoadOptions(path string) (*Options, error) {
	if path == "" {
		return DefaultOptions(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open options file: %w", err)
	}
	defer f.Close()

	return ParseOptions(f)
}

// ParseOptions decodes YAML options over the defaults and validates them
func ParseOptions(r io.Reader) (*Options, error) {
	opts := DefaultOptions()

	if err := yaml.NewDecoder(r).Decode(opts); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse options: %w", err)
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Validate checks the struct tags
func (o *Options) Validate() error {
	if err := validator.New().Struct(o); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

// PrerenderedPath is the directory holding prerendered pages
func (o *Options) PrerenderedPath() string {
	return filepath.Join(o.BuildDir, o.PrerenderedDir)
}

// ManifestKey is the storage key the manifest is published under
func (o *Options) ManifestKey() string {
	return path.Base(filepath.ToSlash(o.Manifest))
}

// ExampleYAML returns a documented options file
func ExampleYAML() string {
	return `# Build output produced by the framework
buildDir: build
prerenderedDir: prerendered
manifest: build/manifest.json
appPath: _app

# Redirect every other host to this one at the edge
domainName: www.example.com

# Where publish uploads assets
bucket: my-site-assets
region: us-east-1
prefix: ""
overwrite: false
# Delete objects that are not part of this build
prune: false
`
}

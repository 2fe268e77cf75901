package deploy

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"lambda-web-adapter/internal/adapters/storage"
	"lambda-web-adapter/internal/prerendered"
	"lambda-web-adapter/pkg/lambda"
)

// ImmutableCacheControl is sent with fingerprinted client assets
const ImmutableCacheControl = "public,max-age=31536000,immutable"

// PublishReport summarizes a publish run
type PublishReport struct {
	Uploaded []string `json:"uploaded"`
	Skipped  []string `json:"skipped,omitempty"`
	Deleted  []string `json:"deleted,omitempty"`
	Bytes    int64    `json:"bytes"`
}

// Publisher uploads build output to a FileStorage
type Publisher struct {
	dst  storage.FileStorage
	opts *Options
}

// NewPublisher creates a Publisher
func NewPublisher(dst storage.FileStorage, opts *Options) *Publisher {
	return &Publisher{dst: dst, opts: opts}
}

// Publish uploads the client and static directories to the root of the
// storage, prerendered pages under PrerenderedDir and the manifest next to
// them, matching the keys the runtime reads. Without Overwrite existing
// objects are left alone and reported as skipped. With Prune every other
// object in the storage is deleted afterwards. Missing directories are
// ignored.
func (p *Publisher) Publish(ctx context.Context) (*PublishReport, error) {
	report := &PublishReport{}
	published := map[string]struct{}{}

	for _, set := range p.fileSets() {
		if info, err := os.Stat(set.dir); err != nil || !info.IsDir() {
			logrus.WithField("dir", set.dir).Debug("Nothing to publish")
			continue
		}

		files, err := prerendered.ScanDir(set.dir)
		if err != nil {
			return report, fmt.Errorf("failed to scan %s: %w", set.dir, err)
		}

		for _, file := range files {
			key := file
			if set.keyPrefix != "" {
				key = path.Join(set.keyPrefix, file)
			}
			published[key] = struct{}{}

			err := p.upload(ctx, report, key, filepath.Join(set.dir, filepath.FromSlash(file)), &storage.StoreOptions{
				ContentType:  set.contentType(file),
				CacheControl: set.cacheControl(file),
				Overwrite:    p.opts.Overwrite,
			})
			if err != nil {
				return report, err
			}
		}
	}

	if _, err := os.Stat(p.opts.Manifest); err == nil {
		key := p.opts.ManifestKey()
		published[key] = struct{}{}

		// The manifest changes with every build, so it is always replaced.
		err := p.upload(ctx, report, key, p.opts.Manifest, &storage.StoreOptions{
			ContentType:  "application/json",
			CacheControl: "no-cache",
			Overwrite:    true,
		})
		if err != nil {
			return report, err
		}
	}

	if p.opts.Prune {
		if err := p.prune(ctx, report, published); err != nil {
			return report, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"uploaded": len(report.Uploaded),
		"skipped":  len(report.Skipped),
		"deleted":  len(report.Deleted),
		"bytes":    report.Bytes,
	}).Info("Publish finished")

	return report, nil
}

type fileSet struct {
	dir          string
	keyPrefix    string
	contentType  func(key string) string
	cacheControl func(key string) string
}

func (p *Publisher) fileSets() []fileSet {
	immutable := path.Join(p.opts.AppPath, "immutable") + "/"

	return []fileSet{
		{
			dir:         filepath.Join(p.opts.BuildDir, "client"),
			contentType: storage.ContentTypeFor,
			cacheControl: func(key string) string {
				if strings.HasPrefix(key, immutable) {
					return ImmutableCacheControl
				}
				return ""
			},
		},
		{
			dir:          filepath.Join(p.opts.BuildDir, "static"),
			contentType:  storage.ContentTypeFor,
			cacheControl: func(string) string { return "" },
		},
		{
			dir:       p.opts.PrerenderedPath(),
			keyPrefix: p.opts.PrerenderedDir,
			contentType: func(key string) string {
				if strings.HasSuffix(key, ".html") {
					return lambda.PrerenderedFileHeaders["content-type"]
				}
				return storage.ContentTypeFor(key)
			},
			cacheControl: func(string) string { return lambda.PrerenderedFileHeaders["cache-control"] },
		},
	}
}

// upload stores one file under key. Existing objects are skipped without
// reading the file unless opts.Overwrite is set.
func (p *Publisher) upload(ctx context.Context, report *PublishReport, key, name string, opts *storage.StoreOptions) error {
	if !opts.Overwrite {
		exists, err := p.dst.Exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			report.Skipped = append(report.Skipped, key)
			return nil
		}
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}

	err = p.dst.Store(ctx, key, data, opts)
	switch {
	case err == nil:
		report.Uploaded = append(report.Uploaded, key)
		report.Bytes += int64(len(data))
		return nil
	case storage.IsAlreadyExists(err):
		// Created by someone else between Exists and Store.
		report.Skipped = append(report.Skipped, key)
		return nil
	default:
		return err
	}
}

// prune deletes every stored object that this run did not publish.
func (p *Publisher) prune(ctx context.Context, report *PublishReport, keep map[string]struct{}) error {
	var stale []string

	marker := ""
	for {
		page, err := p.dst.List(ctx, &storage.ListOptions{Marker: marker})
		if err != nil {
			return fmt.Errorf("failed to list published files: %w", err)
		}
		for _, file := range page.Files {
			if _, ok := keep[file.Key]; !ok {
				stale = append(stale, file.Key)
			}
		}
		if !page.IsTruncated || page.NextMarker == "" {
			break
		}
		marker = page.NextMarker
	}

	for _, key := range stale {
		if err := p.dst.Delete(ctx, key); err != nil && !storage.IsNotFound(err) {
			return err
		}
		logrus.WithField("key", key).Debug("Deleted stale file")
		report.Deleted = append(report.Deleted, key)
	}

	return nil
}

// BuildManifest scans the prerendered directory and builds its manifest
func BuildManifest(opts *Options) (*prerendered.Manifest, error) {
	dir := opts.PrerenderedPath()

	var files []string
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		files, err = prerendered.ScanDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
		}
	}

	return prerendered.NewManifest(files, opts.PrerenderedDir, opts.Base), nil
}
